package sourcekitd

// DocumentURI identifies the document a request operates on.
type DocumentURI string

// contextualRequest is one "open-ish" request recorded for crash diagnosis.
type contextualRequest struct {
	kind        RequestKind
	description string
}

// contextualLedger records, per document, the requests that established
// editor or completion session state on the backend. It exists only to
// enrich crash logs: a crash is frequently caused by stale state from a
// prior request (a dangling editor-open) rather than the crashing request's
// own content. It is never consulted for correctness.
//
// Not safe for concurrent use; the owning session serializes access.
type contextualLedger struct {
	byDocument map[DocumentURI][]contextualRequest
}

func newContextualLedger() *contextualLedger {
	return &contextualLedger{byDocument: make(map[DocumentURI][]contextualRequest)}
}

// record tracks the effect of a request on the document's context: an
// editor-open replaces the document's entries, a completion-open appends,
// an editor-close drops the document entirely, and a completion-close prunes
// the completion entries. Other kinds leave the ledger untouched.
func (l *contextualLedger) record(kind RequestKind, document DocumentURI, description string) {
	switch kind {
	case RequestEditorOpen:
		l.byDocument[document] = []contextualRequest{{kind: kind, description: description}}
	case RequestCodeCompleteOpen:
		l.byDocument[document] = append(l.byDocument[document], contextualRequest{kind: kind, description: description})
	case RequestEditorClose:
		delete(l.byDocument, document)
	case RequestCodeCompleteClose:
		kept := l.byDocument[document][:0]
		for _, r := range l.byDocument[document] {
			if r.kind != RequestCodeCompleteOpen {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(l.byDocument, document)
		} else {
			l.byDocument[document] = kept
		}
	}
}

// contextualRequests returns the descriptions of the still-open requests for
// a document, excluding the crashing request itself.
func (l *contextualLedger) contextualRequests(document DocumentURI, excludeDescription string) []string {
	var out []string
	for _, r := range l.byDocument[document] {
		if r.description == excludeDescription {
			continue
		}
		out = append(out, r.description)
	}
	return out
}
