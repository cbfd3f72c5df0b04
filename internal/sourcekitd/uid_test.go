package sourcekitd

import "testing"

// countingInterner hands out sequential handles and records names.
func countingInterner() (func(string) UID, map[string]UID) {
	seen := make(map[string]UID)
	return func(name string) UID {
		if id, ok := seen[name]; ok {
			return id
		}
		id := UID(len(seen) + 1)
		seen[name] = id
		return id
	}, seen
}

func TestKeyTableInternsDistinctNames(t *testing.T) {
	intern, seen := countingInterner()
	k := newKeys(intern)

	if k.Request == 0 || k.SourceFile == 0 || k.SourceText == 0 {
		t.Fatal("key table left zero handles")
	}
	if k.Request == k.SourceFile {
		t.Fatal("distinct keys share a handle")
	}
	if _, ok := seen["key.request"]; !ok {
		t.Fatal("key.request not interned")
	}
	if _, ok := seen["key.sourcetext"]; !ok {
		t.Fatal("key.sourcetext not interned")
	}
}

func TestRequestKindRoundTrip(t *testing.T) {
	intern, _ := countingInterner()
	r := newRequests(intern)

	kinds := []RequestKind{
		RequestEditorOpen, RequestEditorClose, RequestEditorReplaceText,
		RequestCodeCompleteOpen, RequestCodeCompleteClose, RequestCodeCompleteUpdate,
		RequestCursorInfo, RequestDocInfo, RequestRelatedIdents,
		RequestDiagnostics, RequestSemanticRefactoring, RequestIndexToStore,
		RequestCrashWithExit,
	}

	seen := make(map[UID]bool)
	for _, k := range kinds {
		id := k.uid(r)
		if id == 0 {
			t.Errorf("%v: zero handle", k)
		}
		if seen[id] {
			t.Errorf("%v: handle %d reused", k, id)
		}
		seen[id] = true
		if k.String() == "source.request.unknown" {
			t.Errorf("%v: no dotted name", k)
		}
	}
}

func TestRequestKindContext(t *testing.T) {
	if !RequestEditorOpen.opensContext() || !RequestCodeCompleteOpen.opensContext() {
		t.Error("open kinds must open context")
	}
	if !RequestEditorClose.closesContext() || !RequestCodeCompleteClose.closesContext() {
		t.Error("close kinds must close context")
	}
	if RequestCursorInfo.opensContext() || RequestCursorInfo.closesContext() {
		t.Error("cursor info must not touch context")
	}
	if RequestEditorOpen.closesContext() {
		t.Error("editor open must not close context")
	}
}

func TestParseRequestKind(t *testing.T) {
	k, ok := ParseRequestKind("source.request.cursorinfo")
	if !ok || k != RequestCursorInfo {
		t.Fatalf("got %v ok=%v", k, ok)
	}
	if _, ok := ParseRequestKind("source.request.bogus"); ok {
		t.Fatal("unknown name parsed")
	}
	for k := RequestEditorOpen; k <= RequestCrashWithExit; k++ {
		got, ok := ParseRequestKind(k.String())
		if !ok || got != k {
			t.Errorf("%v does not round-trip", k)
		}
	}
}

func TestNotificationValueNames(t *testing.T) {
	intern, seen := countingInterner()
	newValues(intern)

	for _, name := range []string{
		"source.notification.editor.documentupdate",
		"source.notification.sema_enabled",
		"source.notification.sema_disabled",
	} {
		if _, ok := seen[name]; !ok {
			t.Errorf("%s not interned", name)
		}
	}
}
