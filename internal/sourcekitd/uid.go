package sourcekitd

// UID is a backend-interned symbol handle. UIDs are used as dictionary keys
// and request-kind discriminators instead of raw strings for wire efficiency.
// The zero value is never a valid interned symbol.
type UID uint32

// keys holds the interned handles for the well-known dictionary keys.
// Interning is idempotent and side-effect-free on the backend, so table
// construction cannot fail.
type keys struct {
	Request             UID
	CancelRequest       UID
	CompilerArgs        UID
	Offset              UID
	Length              UID
	Line                UID
	Column              UID
	Name                UID
	NameOffset          UID
	NameLength          UID
	SourceFile          UID
	SourceText          UID
	EnableSyntaxMap     UID
	EnableStructure     UID
	EnableDiagnostics   UID
	SyntacticOnly       UID
	RetrieveRefactoring UID
	CodeCompleteOptions UID
	SortByName          UID
	UseImportDepth      UID
	MaxResults          UID
	Results             UID
	Entities            UID
	Diagnostics         UID
	DiagnosticStage     UID
	Description         UID
	Severity            UID
	Kind                UID
	USR                 UID
	TypeName            UID
	TypeUSR             UID
	ContainerTypeUSR    UID
	DocBrief            UID
	AnnotatedDecl       UID
	FullyAnnotatedDecl  UID
	FilePath            UID
	ModuleName          UID
	GroupName           UID
	Notification        UID
	Duration            UID
	UIDs                UID
	SubStructure        UID
	Ranges              UID
	Attributes          UID
	Attribute           UID
	IsSystem            UID
	Text                UID
	VFSName             UID
	Version             UID
}

func newKeys(u func(string) UID) *keys {
	return &keys{
		Request:             u("key.request"),
		CancelRequest:       u("key.cancel_request"),
		CompilerArgs:        u("key.compilerargs"),
		Offset:              u("key.offset"),
		Length:              u("key.length"),
		Line:                u("key.line"),
		Column:              u("key.column"),
		Name:                u("key.name"),
		NameOffset:          u("key.nameoffset"),
		NameLength:          u("key.namelength"),
		SourceFile:          u("key.sourcefile"),
		SourceText:          u("key.sourcetext"),
		EnableSyntaxMap:     u("key.enablesyntaxmap"),
		EnableStructure:     u("key.enablesubstructure"),
		EnableDiagnostics:   u("key.enablediagnostics"),
		SyntacticOnly:       u("key.syntactic_only"),
		RetrieveRefactoring: u("key.retrieve_refactor_actions"),
		CodeCompleteOptions: u("key.codecomplete.options"),
		SortByName:          u("key.codecomplete.sort.byname"),
		UseImportDepth:      u("key.codecomplete.sort.useimportdepth"),
		MaxResults:          u("key.codecomplete.sort.maxresults"),
		Results:             u("key.results"),
		Entities:            u("key.entities"),
		Diagnostics:         u("key.diagnostics"),
		DiagnosticStage:     u("key.diagnostic_stage"),
		Description:         u("key.description"),
		Severity:            u("key.severity"),
		Kind:                u("key.kind"),
		USR:                 u("key.usr"),
		TypeName:            u("key.typename"),
		TypeUSR:             u("key.typeusr"),
		ContainerTypeUSR:    u("key.containertypeusr"),
		DocBrief:            u("key.doc.brief"),
		AnnotatedDecl:       u("key.annotated_decl"),
		FullyAnnotatedDecl:  u("key.fully_annotated_decl"),
		FilePath:            u("key.filepath"),
		ModuleName:          u("key.modulename"),
		GroupName:           u("key.groupname"),
		Notification:        u("key.notification"),
		Duration:            u("key.duration"),
		UIDs:                u("key.uids"),
		SubStructure:        u("key.substructure"),
		Ranges:              u("key.ranges"),
		Attributes:          u("key.attributes"),
		Attribute:           u("key.attribute"),
		IsSystem:            u("key.is_system"),
		Text:                u("key.text"),
		VFSName:             u("key.vfs.name"),
		Version:             u("key.version"),
	}
}

// requests holds the interned handles for the request-kind discriminators.
type requests struct {
	EditorOpen          UID
	EditorClose         UID
	EditorReplaceText   UID
	CodeCompleteOpen    UID
	CodeCompleteClose   UID
	CodeCompleteUpdate  UID
	CursorInfo          UID
	DocInfo             UID
	RelatedIdents       UID
	Diagnostics         UID
	SemanticRefactoring UID
	IndexToStore        UID
	CrashWithExit       UID
}

func newRequests(u func(string) UID) *requests {
	return &requests{
		EditorOpen:          u("source.request.editor.open"),
		EditorClose:         u("source.request.editor.close"),
		EditorReplaceText:   u("source.request.editor.replacetext"),
		CodeCompleteOpen:    u("source.request.codecomplete.open"),
		CodeCompleteClose:   u("source.request.codecomplete.close"),
		CodeCompleteUpdate:  u("source.request.codecomplete.update"),
		CursorInfo:          u("source.request.cursorinfo"),
		DocInfo:             u("source.request.docinfo"),
		RelatedIdents:       u("source.request.relatedidents"),
		Diagnostics:         u("source.request.diagnostics"),
		SemanticRefactoring: u("source.request.semantic.refactoring"),
		IndexToStore:        u("source.request.index_to_store"),
		CrashWithExit:       u("source.request.crash_exit"),
	}
}

// values holds the interned handles for well-known dictionary values,
// including the notification kinds pushed by the backend.
type values struct {
	NotificationDocumentUpdate   UID
	NotificationSemaEnabled      UID
	NotificationSemaDisabled     UID
	DiagStageSema                UID
	DiagStageParse               UID
	SeverityNote                 UID
	SeverityWarning              UID
	SeverityError                UID
	KindDeclFunctionFree         UID
	KindDeclVarGlobal            UID
	KindDeclStruct               UID
	KindDeclClass                UID
	KindDeclEnum                 UID
	KindDeclProtocol             UID
	KindRefFunctionFree          UID
	KindRefVarGlobal             UID
	KindCompletion               UID
}

func newValues(u func(string) UID) *values {
	return &values{
		NotificationDocumentUpdate: u("source.notification.editor.documentupdate"),
		NotificationSemaEnabled:    u("source.notification.sema_enabled"),
		NotificationSemaDisabled:   u("source.notification.sema_disabled"),
		DiagStageSema:              u("source.diagnostic.stage.swift.sema"),
		DiagStageParse:             u("source.diagnostic.stage.swift.parse"),
		SeverityNote:               u("source.diagnostic.severity.note"),
		SeverityWarning:            u("source.diagnostic.severity.warning"),
		SeverityError:              u("source.diagnostic.severity.error"),
		KindDeclFunctionFree:       u("source.lang.swift.decl.function.free"),
		KindDeclVarGlobal:          u("source.lang.swift.decl.var.global"),
		KindDeclStruct:             u("source.lang.swift.decl.struct"),
		KindDeclClass:              u("source.lang.swift.decl.class"),
		KindDeclEnum:               u("source.lang.swift.decl.enum"),
		KindDeclProtocol:           u("source.lang.swift.decl.protocol"),
		KindRefFunctionFree:        u("source.lang.swift.ref.function.free"),
		KindRefVarGlobal:           u("source.lang.swift.ref.var.global"),
		KindCompletion:             u("source.lang.swift.completion"),
	}
}

// RequestKind is the closed set of request kinds the session can send.
// Kinds are translated to their interned-symbol representation only at the
// marshalling edge, so adding a kind is a compile-time-checked change.
type RequestKind int

const (
	RequestEditorOpen RequestKind = iota
	RequestEditorClose
	RequestEditorReplaceText
	RequestCodeCompleteOpen
	RequestCodeCompleteClose
	RequestCodeCompleteUpdate
	RequestCursorInfo
	RequestDocInfo
	RequestRelatedIdents
	RequestDiagnostics
	RequestSemanticRefactoring
	RequestIndexToStore
	RequestCrashWithExit
)

// String returns the dotted request name.
func (k RequestKind) String() string {
	switch k {
	case RequestEditorOpen:
		return "source.request.editor.open"
	case RequestEditorClose:
		return "source.request.editor.close"
	case RequestEditorReplaceText:
		return "source.request.editor.replacetext"
	case RequestCodeCompleteOpen:
		return "source.request.codecomplete.open"
	case RequestCodeCompleteClose:
		return "source.request.codecomplete.close"
	case RequestCodeCompleteUpdate:
		return "source.request.codecomplete.update"
	case RequestCursorInfo:
		return "source.request.cursorinfo"
	case RequestDocInfo:
		return "source.request.docinfo"
	case RequestRelatedIdents:
		return "source.request.relatedidents"
	case RequestDiagnostics:
		return "source.request.diagnostics"
	case RequestSemanticRefactoring:
		return "source.request.semantic.refactoring"
	case RequestIndexToStore:
		return "source.request.index_to_store"
	case RequestCrashWithExit:
		return "source.request.crash_exit"
	default:
		return "source.request.unknown"
	}
}

// ParseRequestKind resolves a dotted request name to its kind.
func ParseRequestKind(name string) (RequestKind, bool) {
	for k := RequestEditorOpen; k <= RequestCrashWithExit; k++ {
		if k.String() == name {
			return k, true
		}
	}
	return 0, false
}

// uid returns the interned discriminator for the kind.
func (k RequestKind) uid(r *requests) UID {
	switch k {
	case RequestEditorOpen:
		return r.EditorOpen
	case RequestEditorClose:
		return r.EditorClose
	case RequestEditorReplaceText:
		return r.EditorReplaceText
	case RequestCodeCompleteOpen:
		return r.CodeCompleteOpen
	case RequestCodeCompleteClose:
		return r.CodeCompleteClose
	case RequestCodeCompleteUpdate:
		return r.CodeCompleteUpdate
	case RequestCursorInfo:
		return r.CursorInfo
	case RequestDocInfo:
		return r.DocInfo
	case RequestRelatedIdents:
		return r.RelatedIdents
	case RequestDiagnostics:
		return r.Diagnostics
	case RequestSemanticRefactoring:
		return r.SemanticRefactoring
	case RequestIndexToStore:
		return r.IndexToStore
	case RequestCrashWithExit:
		return r.CrashWithExit
	default:
		panic("sourcekitd: unknown request kind")
	}
}

// opensContext reports whether the kind establishes per-document session
// state on the backend (recorded in the contextual-request ledger).
func (k RequestKind) opensContext() bool {
	return k == RequestEditorOpen || k == RequestCodeCompleteOpen
}

// closesContext reports whether the kind tears down per-document session
// state on the backend.
func (k RequestKind) closesContext() bool {
	return k == RequestEditorClose || k == RequestCodeCompleteClose
}
