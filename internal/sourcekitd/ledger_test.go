package sourcekitd

import (
	"reflect"
	"testing"
)

func TestLedgerEditorOpenReplaces(t *testing.T) {
	l := newContextualLedger()
	doc := DocumentURI("file:///a.swift")

	l.record(RequestEditorOpen, doc, "open v1")
	l.record(RequestEditorOpen, doc, "open v2")

	got := l.contextualRequests(doc, "")
	if !reflect.DeepEqual(got, []string{"open v2"}) {
		t.Fatalf("got %v, want the latest open only", got)
	}
}

func TestLedgerCompletionAppendsAndPrunes(t *testing.T) {
	l := newContextualLedger()
	doc := DocumentURI("file:///a.swift")

	l.record(RequestEditorOpen, doc, "open")
	l.record(RequestCodeCompleteOpen, doc, "complete 1")
	l.record(RequestCodeCompleteOpen, doc, "complete 2")

	got := l.contextualRequests(doc, "")
	want := []string{"open", "complete 1", "complete 2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	l.record(RequestCodeCompleteClose, doc, "close completion")
	got = l.contextualRequests(doc, "")
	if !reflect.DeepEqual(got, []string{"open"}) {
		t.Fatalf("after completion close: got %v", got)
	}
}

func TestLedgerEditorCloseDropsDocument(t *testing.T) {
	l := newContextualLedger()
	doc := DocumentURI("file:///a.swift")
	other := DocumentURI("file:///b.swift")

	l.record(RequestEditorOpen, doc, "open a")
	l.record(RequestEditorOpen, other, "open b")
	l.record(RequestEditorClose, doc, "close a")

	if got := l.contextualRequests(doc, ""); got != nil {
		t.Fatalf("closed document still has entries: %v", got)
	}
	if got := l.contextualRequests(other, ""); !reflect.DeepEqual(got, []string{"open b"}) {
		t.Fatalf("unrelated document affected: %v", got)
	}
}

func TestLedgerExcludesCrashingRequest(t *testing.T) {
	l := newContextualLedger()
	doc := DocumentURI("file:///a.swift")

	l.record(RequestEditorOpen, doc, "the crashing open")
	l.record(RequestCodeCompleteOpen, doc, "another request")

	got := l.contextualRequests(doc, "the crashing open")
	if !reflect.DeepEqual(got, []string{"another request"}) {
		t.Fatalf("got %v", got)
	}
}

func TestLedgerIgnoresNonContextKinds(t *testing.T) {
	l := newContextualLedger()
	doc := DocumentURI("file:///a.swift")

	l.record(RequestCursorInfo, doc, "cursor info")
	l.record(RequestDiagnostics, doc, "diagnostics")

	if got := l.contextualRequests(doc, ""); got != nil {
		t.Fatalf("non-context kinds recorded: %v", got)
	}
}
