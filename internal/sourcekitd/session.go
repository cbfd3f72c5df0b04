package sourcekitd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"
)

// Default timeouts for Send. The restart timeout is deliberately longer than
// any sensible per-request timeout: a slow-but-alive backend must not be
// killed just because the caller is impatient; only a backend that stays
// silent for the full restart timeout is presumed wedged.
const (
	DefaultTimeout        = 30 * time.Second
	DefaultRestartTimeout = 2 * time.Minute

	// crashRequestTimeout bounds the crash-exit request itself. The backend
	// is expected to die rather than reply, so the send resolves by timeout.
	crashRequestTimeout = 1 * time.Minute

	// logMessageLimit is the per-message size ceiling of the logging sink.
	logMessageLimit = 8 * 1024

	// logSummaryLines bounds ordinary request logging; full payloads are
	// reserved for crash logs.
	logSummaryLines = 20
)

// PluginPaths names the client/service plugin pair loaded into the backend.
// Treated as opaque configuration supplied by the toolchain layer.
type PluginPaths struct {
	ClientPlugin  string
	ServicePlugin string
}

// RequestInfo describes an outgoing request to pre/post-send hooks.
type RequestInfo struct {
	Kind        RequestKind
	Handle      RequestHandle
	Description string
}

// SourceKitD is one live connection to a backend service instance. It owns
// the loaded library, the interned-symbol tables, the notification
// subscriber list, and the contextual-request ledger. Obtain instances
// through a Registry; at most one live session may exist per library path.
//
// When the last strong reference to a SourceKitD drops, a runtime cleanup
// shuts the session down and schedules the library close on a background
// goroutine, so in-flight notification work can finish first.
type SourceKitD struct {
	*skd
}

type skd struct {
	id      string
	path    string
	plugins PluginPaths
	lib     Library
	fn      *functions
	log     *slog.Logger

	openLibrary func(path string, plugins PluginPaths) (Library, error)

	// Interned-symbol tables. Built lazily, not at construction: callers
	// may register custom UID handlers on the backend between construction
	// and first use, and eager interning would cache stale identities.
	keysOnce     func() *keys
	requestsOnce func() *requests
	valuesOnce   func() *values

	mu          sync.Mutex
	subscribers []subscriberEntry
	nextToken   uint64
	preHooks    map[uint64]func(*RequestInfo)
	postHooks   map[uint64]func(*RequestInfo)
	ledger      *contextualLedger

	hookSeq    atomic.Uint64
	requestSeq atomic.Uint64
	closed     atomic.Bool

	notifQ *notificationQueue
}

// Option configures a session.
type Option func(*skd)

// WithLogger sets the structured logger for the session.
func WithLogger(log *slog.Logger) Option {
	return func(s *skd) {
		s.log = log
	}
}

// WithLibraryOpener overrides how the backend library is loaded. Used to
// supply in-process libraries.
func WithLibraryOpener(open func(path string, plugins PluginPaths) (Library, error)) Option {
	return func(s *skd) {
		s.openLibrary = open
	}
}

// New loads the backend library at path and constructs a session over it.
// Missing any required entry point fails construction. Direct construction
// bypassing a Registry is unsupported outside of tests: two live sessions
// for the same path would co-own one native resource.
func New(path string, plugins PluginPaths, opts ...Option) (*SourceKitD, error) {
	impl := &skd{
		id:          uuid.NewString(),
		path:        path,
		plugins:     plugins,
		log:         slog.Default(),
		preHooks:    make(map[uint64]func(*RequestInfo)),
		postHooks:   make(map[uint64]func(*RequestInfo)),
		ledger:      newContextualLedger(),
		notifQ:      newNotificationQueue(),
		openLibrary: openDaemonLibrary,
	}
	for _, opt := range opts {
		opt(impl)
	}

	lib, err := impl.openLibrary(path, plugins)
	if err != nil {
		return nil, &LibraryOpenError{Path: path, Err: err}
	}

	fn, err := resolveFunctions(lib)
	if err != nil {
		closeErr := lib.Close()
		if closeErr != nil {
			impl.log.Warn("closing sourcekitd library after failed resolution",
				slog.String("path", path), slog.String("err", closeErr.Error()))
		}
		return nil, err
	}
	impl.lib = lib
	impl.fn = fn

	impl.keysOnce = sync.OnceValue(func() *keys { return newKeys(fn.uidGetFromCStr) })
	impl.requestsOnce = sync.OnceValue(func() *requests { return newRequests(fn.uidGetFromCStr) })
	impl.valuesOnce = sync.OnceValue(func() *values { return newValues(fn.uidGetFromCStr) })

	fn.initialize()
	fn.setNotificationHandler(impl.notifQ.push)
	go impl.drainNotifications()

	impl.log.Info("sourcekitd session started",
		slog.String("session", impl.id), slog.String("path", path))

	sk := &SourceKitD{skd: impl}
	runtime.AddCleanup(sk, func(i *skd) { i.shutdownNow() }, impl)
	return sk, nil
}

// shutdownNow deregisters the notification callback, issues the native
// shutdown, and schedules the library close on a background goroutine so
// already-queued work referencing the function table can finish first.
func (s *skd) shutdownNow() {
	if s.closed.Swap(true) {
		return
	}
	s.fn.setNotificationHandler(nil)
	s.notifQ.close()
	s.fn.shutdown()

	lib := s.lib
	log := s.log
	id := s.id
	go func() {
		if err := lib.Close(); err != nil {
			log.Warn("closing sourcekitd library",
				slog.String("session", id), slog.String("err", err.Error()))
		}
		log.Info("sourcekitd session closed", slog.String("session", id))
	}()
}

// Keys returns the interned dictionary-key table.
func (s *skd) Keys() *keys { return s.keysOnce() }

// Requests returns the interned request-kind table.
func (s *skd) Requests() *requests { return s.requestsOnce() }

// Values returns the interned well-known-value table.
func (s *skd) Values() *values { return s.valuesOnce() }

// Path returns the backend library path this session is bound to.
func (s *skd) Path() string { return s.path }

// Plugins returns the plugin configuration the session was created with.
func (s *skd) Plugins() PluginPaths { return s.plugins }

// UIDName resolves an interned symbol back to its dotted name.
func (s *skd) UIDName(u UID) string {
	return s.fn.uidGetStringPtr(u)
}

// UIDForName interns a dotted name.
func (s *skd) UIDForName(name string) UID {
	return s.fn.uidGetFromCStr(name)
}

// SetUIDHandlers installs custom symbol interning handlers on the backend.
// Only supported by backends that expose the optional entry point; must be
// called before the first request so the interned tables are built against
// the custom handlers.
func (s *skd) SetUIDHandlers(fromString func(string) UID, toString func(UID) string) error {
	fn, err := s.fn.setUIDHandlers()
	if err != nil {
		return err
	}
	fn(fromString, toString)
	return nil
}

// RequestDescription renders a request tree as JSON with symbolic key names.
func (s *skd) RequestDescription(dict *RequestDictionary) string {
	return describeVariant(dict.v, s.fn.uidGetStringPtr)
}

// ResponseDescription renders a response dictionary as JSON.
func (s *skd) ResponseDescription(dict *ResponseDictionary) string {
	return describeVariant(dict.resp.variantOf(dict.v), s.fn.uidGetStringPtr)
}

// Send dispatches a request and waits for the reply, a timeout, or
// cancellation.
//
// Two timeouts race: timeout bounds the whole call; restartTimeout bounds
// only the backend-never-replied case and, on expiry against a restartable
// backend, triggers a hard crash-and-restart of the backend process before
// propagating ErrTimedOut. Cancelling ctx is acknowledged all the way down:
// the native cancel entry point is invoked for the captured handle and the
// call still resolves.
//
// document associates the request with the contextual-request ledger;
// fileContents, if supplied, is included in the crash log should the backend
// die answering this request.
func (s *skd) Send(
	ctx context.Context,
	kind RequestKind,
	dict *RequestDictionary,
	timeout time.Duration,
	restartTimeout time.Duration,
	document DocumentURI,
	fileContents string,
) (*ResponseDictionary, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if restartTimeout <= 0 {
		restartTimeout = DefaultRestartTimeout
	}

	dict.Set(s.Keys().Request, kind.uid(s.Requests()))
	description := s.RequestDescription(dict)

	if document != "" && (kind.opensContext() || kind.closesContext()) {
		s.mu.Lock()
		s.ledger.record(kind, document, description)
		s.mu.Unlock()
	}

	reqID := s.requestSeq.Add(1)
	s.log.Debug("sending sourcekitd request",
		slog.String("session", s.id),
		slog.Uint64("request", reqID),
		slog.String("kind", kind.String()),
		slog.String("summary", abbreviateDescription(description)))

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	replyCh := make(chan *ResponseObject, 1)
	info := &RequestInfo{Kind: kind, Description: description}

	s.runHooks(s.preHooks, info)
	handle := s.fn.sendRequest(dict, func(obj *ResponseObject) {
		replyCh <- obj
	})
	info.Handle = handle
	s.runHooks(s.postHooks, info)

	restartTimer := time.NewTimer(restartTimeout)
	defer restartTimer.Stop()

	var obj *ResponseObject
	select {
	case obj = <-replyCh:
	case <-restartTimer.C:
		if s.lib.CanRestart() {
			if kind == RequestCrashWithExit {
				// The crash request itself went unanswered: the backend is
				// wedged past cooperating with its own demise. Kill the
				// process instead of requesting another crash, so recovery
				// cannot recurse.
				s.log.Error("crash request unanswered; killing backend process",
					slog.String("session", s.id),
					slog.Uint64("request", reqID),
					slog.Duration("restart_timeout", restartTimeout))
				if k, ok := s.lib.(processKiller); ok {
					if err := k.Kill(); err != nil {
						s.log.Warn("killing backend process",
							slog.String("session", s.id), slog.String("err", err.Error()))
					}
				}
			} else {
				s.log.Error("sourcekitd did not respond; triggering crash and restart",
					slog.String("session", s.id),
					slog.Uint64("request", reqID),
					slog.Duration("restart_timeout", restartTimeout))
				go s.Crash(context.WithoutCancel(ctx))
			}
		} else {
			s.log.Error("in-process sourcekitd stalled; no process to restart",
				slog.String("session", s.id),
				slog.Uint64("request", reqID),
				slog.Duration("restart_timeout", restartTimeout))
		}
		return nil, fmt.Errorf("no reply within %v: %w", restartTimeout, ErrTimedOut)
	case <-ctx.Done():
		// Cancellation is not abandonment: the backend must be told to
		// stop, not just ignored.
		if handle != 0 {
			s.fn.cancelRequest(handle)
			s.log.Debug("cancelled sourcekitd request",
				slog.String("session", s.id), slog.Uint64("request", reqID))
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("request timed out after %v: %w", timeout, ErrTimedOut)
		}
		return nil, ErrRequestCancelled
	}

	return s.resolveReply(ctx, timeout, reqID, obj, description, document, fileContents)
}

// resolveReply interprets a backend reply against the request's context.
func (s *skd) resolveReply(
	ctx context.Context,
	timeout time.Duration,
	reqID uint64,
	obj *ResponseObject,
	description string,
	document DocumentURI,
	fileContents string,
) (*ResponseDictionary, error) {
	switch obj.errKind {
	case wireErrNone:
		resp := newResponse(obj.value).Dictionary()
		s.log.Debug("received sourcekitd response",
			slog.String("session", s.id),
			slog.Uint64("request", reqID),
			slog.String("summary", abbreviateDescription(s.ResponseDescription(resp))))
		return resp, nil
	case wireErrConnectionInterrupted:
		s.logCrash(description, document, fileContents)
		return nil, &RequestError{Kind: ErrConnectionInterrupted, Description: obj.errDesc}
	case wireErrRequestInvalid:
		return nil, &RequestError{Kind: ErrRequestInvalid, Description: obj.errDesc}
	case wireErrRequestFailed:
		return nil, &RequestError{Kind: ErrRequestFailed, Description: obj.errDesc}
	case wireErrRequestCancelled:
		// Only the caller's own cancellation surfaces as cancelled. A
		// cancelled reply racing the deadline, or one the backend produced
		// on its own initiative (an internal staleness check), is "no
		// answer arrived", not "I asked to cancel".
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ErrRequestCancelled
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("request timed out after %v: %w", timeout, ErrTimedOut)
		}
		return nil, fmt.Errorf("backend self-cancelled request: %w", ErrTimedOut)
	default:
		return nil, &RequestError{Kind: ErrRequestFailed,
			Description: fmt.Sprintf("unknown error kind %d: %s", obj.errKind, obj.errDesc)}
	}
}

// Crash asks the backend to crash and exit, as an explicit diagnostic tool
// and as the recovery action for a wedged backend. The backend is expected
// to die rather than reply.
func (s *skd) Crash(ctx context.Context) {
	_, err := s.Send(ctx, RequestCrashWithExit, NewRequestDictionary(),
		crashRequestTimeout, crashRequestTimeout, "", "")
	if err != nil && !errors.Is(err, ErrTimedOut) && !errors.Is(err, ErrConnectionInterrupted) {
		s.log.Warn("crash request returned unexpectedly",
			slog.String("session", s.id), slog.String("err", err.Error()))
	}
}

// logCrash emits the full-fidelity crash log: the crashing request, the
// associated file contents, and every still-open contextual request for the
// same document, chunked to the logging sink's per-message ceiling.
func (s *skd) logCrash(description string, document DocumentURI, fileContents string) {
	var b strings.Builder
	b.WriteString("sourcekitd crashed\nRequest:\n")
	b.WriteString(description)
	if fileContents != "" {
		b.WriteString("\nFile contents:\n")
		b.WriteString(fileContents)
	}

	s.mu.Lock()
	contextual := s.ledger.contextualRequests(document, description)
	s.mu.Unlock()
	for i, cr := range contextual {
		fmt.Fprintf(&b, "\nContextual request %d/%d:\n%s", i+1, len(contextual), cr)
	}

	chunks := SplitLongMultilineMessage(b.String(), logMessageLimit)
	for i, chunk := range chunks {
		s.log.Error(fmt.Sprintf("sourcekitd crash (%d/%d)\n%s", i+1, len(chunks), chunk),
			slog.String("session", s.id))
	}
}

// WithPreRequestHandlingHook registers hook for the duration of body. The
// hook observes every outgoing request before it is handed to the backend.
// Test/observability extension point, not production behavior.
func (s *skd) WithPreRequestHandlingHook(hook func(*RequestInfo), body func() error) error {
	id := s.hookSeq.Add(1)
	s.mu.Lock()
	s.preHooks[id] = hook
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.preHooks, id)
		s.mu.Unlock()
	}()
	return body()
}

// WithRequestHandlingHook registers hook for the duration of body. The hook
// observes every outgoing request after its native handle is captured.
func (s *skd) WithRequestHandlingHook(hook func(*RequestInfo), body func() error) error {
	id := s.hookSeq.Add(1)
	s.mu.Lock()
	s.postHooks[id] = hook
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.postHooks, id)
		s.mu.Unlock()
	}()
	return body()
}

func (s *skd) runHooks(hooks map[uint64]func(*RequestInfo), info *RequestInfo) {
	s.mu.Lock()
	snapshot := make([]func(*RequestInfo), 0, len(hooks))
	for _, h := range hooks {
		snapshot = append(snapshot, h)
	}
	s.mu.Unlock()
	for _, h := range snapshot {
		h(info)
	}
}

// abbreviateDescription reduces a request/response description to a short
// summary for high-volume low-severity logging: source text is redacted and
// the rendering is capped to a line count.
func abbreviateDescription(description string) string {
	redacted, err := sjson.Delete(description, "key\\.sourcetext")
	if err == nil {
		description = redacted
	}
	lines := strings.SplitN(description, "\n", logSummaryLines+1)
	if len(lines) > logSummaryLines {
		return strings.Join(lines[:logSummaryLines], "\n") +
			fmt.Sprintf("\n... (%d more lines)", strings.Count(lines[logSummaryLines], "\n")+1)
	}
	return description
}
