package sourcekitd

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Backend answers requests for an in-process library. HandleRequest runs on
// its own goroutine per request; the context is cancelled when the caller
// cancels the request. Returning an error wrapping one of the request
// sentinels (ErrRequestInvalid, ErrRequestFailed, ErrRequestCancelled,
// ErrConnectionInterrupted) selects the response's error kind; any other
// error, including context.Canceled, maps to the nearest kind.
type Backend interface {
	HandleRequest(ctx context.Context, req *RequestDictionary) (*RequestDictionary, error)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, req *RequestDictionary) (*RequestDictionary, error)

func (f BackendFunc) HandleRequest(ctx context.Context, req *RequestDictionary) (*RequestDictionary, error) {
	return f(ctx, req)
}

// InProcessLibrary is a Library backed by a Backend in the same process.
// There is no service to crash or respawn, so CanRestart reports false and a
// stalled request is reported as a stall rather than recovered.
type InProcessLibrary struct {
	backend Backend

	mu       sync.Mutex
	uidNames []string
	uidIDs   map[string]UID
	inflight map[RequestHandle]context.CancelFunc
	omitted  map[string]bool

	nextHandle   atomic.Uint64
	notifHandler atomic.Pointer[func(*ResponseObject)]
	closed       atomic.Bool
}

// InProcessOption configures an in-process library.
type InProcessOption func(*InProcessLibrary)

// WithoutSymbols makes the library report the named entry points as absent.
func WithoutSymbols(names ...string) InProcessOption {
	return func(l *InProcessLibrary) {
		for _, n := range names {
			l.omitted[n] = true
		}
	}
}

// NewInProcessLibrary creates a Library that dispatches requests to backend.
func NewInProcessLibrary(backend Backend, opts ...InProcessOption) *InProcessLibrary {
	l := &InProcessLibrary{
		backend:  backend,
		uidIDs:   make(map[string]UID),
		inflight: make(map[RequestHandle]context.CancelFunc),
		omitted:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// PostNotification delivers a notification to the registered handler, as the
// backend service would push one.
func (l *InProcessLibrary) PostNotification(dict *RequestDictionary) {
	if h := l.notifHandler.Load(); h != nil && *h != nil {
		(*h)(&ResponseObject{value: dict.v})
	}
}

// Symbol implements Library.
func (l *InProcessLibrary) Symbol(name string) (any, bool) {
	if l.omitted[name] {
		return nil, false
	}

	switch name {
	case symInitialize:
		return func() {}, true
	case symShutdown:
		return func() {}, true
	case symUIDGetFromCStr:
		return func(s string) UID { return l.internUID(s) }, true
	case symUIDGetStringPtr:
		return func(u UID) string { return l.uidString(u) }, true
	case symSendRequest:
		return func(req *RequestDictionary, receiver func(*ResponseObject)) RequestHandle {
			return l.sendRequest(req, receiver)
		}, true
	case symCancelRequest:
		return func(h RequestHandle) { l.cancelRequest(h) }, true
	case symSetNotificationHandler:
		return func(h func(*ResponseObject)) { l.notifHandler.Store(&h) }, true
	case symSetUIDHandlers:
		return func(fromStr func(string) UID, toStr func(UID) string) {}, true
	default:
		return nil, false
	}
}

func (l *InProcessLibrary) internUID(name string) UID {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id, ok := l.uidIDs[name]; ok {
		return id
	}
	id, err := safeUID(len(l.uidNames) + 1)
	if err != nil {
		return 0
	}
	l.uidNames = append(l.uidNames, name)
	l.uidIDs[name] = id
	return id
}

func (l *InProcessLibrary) uidString(u UID) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := int(u) - 1
	if i < 0 || i >= len(l.uidNames) {
		return ""
	}
	return l.uidNames[i]
}

func (l *InProcessLibrary) sendRequest(req *RequestDictionary, receiver func(*ResponseObject)) RequestHandle {
	handle := RequestHandle(l.nextHandle.Add(1))

	if l.closed.Load() {
		go receiver(&ResponseObject{errKind: wireErrConnectionInterrupted, errDesc: "library closed"})
		return handle
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.mu.Lock()
	l.inflight[handle] = cancel
	l.mu.Unlock()

	go func() {
		defer func() {
			l.mu.Lock()
			delete(l.inflight, handle)
			l.mu.Unlock()
			cancel()
		}()

		result, err := l.backend.HandleRequest(ctx, req)
		if err != nil {
			receiver(&ResponseObject{errKind: errKindOf(err), errDesc: err.Error()})
			return
		}
		var value *variant
		if result != nil {
			value = result.v
		}
		receiver(&ResponseObject{value: value})
	}()

	return handle
}

func (l *InProcessLibrary) cancelRequest(h RequestHandle) {
	l.mu.Lock()
	cancel, ok := l.inflight[h]
	l.mu.Unlock()
	if ok {
		cancel()
	}
}

// errKindOf maps a backend error to a wire error kind.
func errKindOf(err error) uint8 {
	switch {
	case errors.Is(err, ErrRequestCancelled) || errors.Is(err, context.Canceled):
		return wireErrRequestCancelled
	case errors.Is(err, ErrRequestInvalid):
		return wireErrRequestInvalid
	case errors.Is(err, ErrConnectionInterrupted):
		return wireErrConnectionInterrupted
	default:
		return wireErrRequestFailed
	}
}

// Close implements Library. Calling Close twice is a programming error.
func (l *InProcessLibrary) Close() error {
	if l.closed.Swap(true) {
		panic("sourcekitd: in-process library closed twice")
	}
	l.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(l.inflight))
	for _, c := range l.inflight {
		cancels = append(cancels, c)
	}
	l.mu.Unlock()
	for _, c := range cancels {
		c()
	}
	return nil
}

// CanRestart implements Library: there is no process to restart.
func (l *InProcessLibrary) CanRestart() bool {
	return false
}
