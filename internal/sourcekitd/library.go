package sourcekitd

import "sync"

// RequestHandle identifies an in-flight request for cancellation. Zero means
// no handle was captured.
type RequestHandle uint64

// Names of the entry points resolved from a loaded backend library.
const (
	symInitialize             = "sourcekitd_initialize"
	symShutdown               = "sourcekitd_shutdown"
	symUIDGetFromCStr         = "sourcekitd_uid_get_from_cstr"
	symUIDGetStringPtr        = "sourcekitd_uid_get_string_ptr"
	symSendRequest            = "sourcekitd_send_request"
	symCancelRequest          = "sourcekitd_cancel_request"
	symSetNotificationHandler = "sourcekitd_set_notification_handler"
	symSetUIDHandlers         = "sourcekitd_set_uid_handlers"
)

// Library is one loaded copy of the backend service. The production
// implementation launches the service binary named by the library path and
// proxies entry points over the dictionary wire protocol; an in-process
// implementation answers directly.
//
// A Library is exclusively owned by one session at a time. Closing a library
// while code still holds resolved entry points is undefined; sessions defer
// the close to a background task after their last strong reference drops.
type Library interface {
	// Symbol resolves a named entry point. The second result is false when
	// the library does not provide the entry point.
	Symbol(name string) (any, bool)

	// Close releases the library. Calling Close twice is a programming
	// error.
	Close() error

	// CanRestart reports whether the backend is an out-of-process service
	// that can be crashed and respawned. In-process libraries have no
	// process to restart.
	CanRestart() bool
}

// processKiller is implemented by libraries whose backend process can be
// forcibly terminated when it no longer answers even a crash request.
type processKiller interface {
	Kill() error
}

// functions is the resolved entry-point table of a Library. Required entries
// are resolved when the owning session is constructed; missing any of them
// fails construction. Optional entries are resolved lazily so that their
// absence only surfaces when exercised.
type functions struct {
	initialize             func()
	shutdown               func()
	uidGetFromCStr         func(string) UID
	uidGetStringPtr        func(UID) string
	sendRequest            func(*RequestDictionary, func(*ResponseObject)) RequestHandle
	cancelRequest          func(RequestHandle)
	setNotificationHandler func(func(*ResponseObject))

	// Optional. Absent on backends without plugin support.
	setUIDHandlers func() (func(func(string) UID, func(UID) string), error)
}

func resolveFunctions(lib Library) (*functions, error) {
	fn := &functions{}
	var err error

	if fn.initialize, err = resolveRequired[func()](lib, symInitialize); err != nil {
		return nil, err
	}
	if fn.shutdown, err = resolveRequired[func()](lib, symShutdown); err != nil {
		return nil, err
	}
	if fn.uidGetFromCStr, err = resolveRequired[func(string) UID](lib, symUIDGetFromCStr); err != nil {
		return nil, err
	}
	if fn.uidGetStringPtr, err = resolveRequired[func(UID) string](lib, symUIDGetStringPtr); err != nil {
		return nil, err
	}
	if fn.sendRequest, err = resolveRequired[func(*RequestDictionary, func(*ResponseObject)) RequestHandle](lib, symSendRequest); err != nil {
		return nil, err
	}
	if fn.cancelRequest, err = resolveRequired[func(RequestHandle)](lib, symCancelRequest); err != nil {
		return nil, err
	}
	if fn.setNotificationHandler, err = resolveRequired[func(func(*ResponseObject))](lib, symSetNotificationHandler); err != nil {
		return nil, err
	}

	fn.setUIDHandlers = resolveOptional[func(func(string) UID, func(UID) string)](lib, symSetUIDHandlers)

	return fn, nil
}

// resolveRequired resolves a required entry point, failing with
// MissingSymbolError if the library lacks it or exposes it with the wrong
// signature.
func resolveRequired[F any](lib Library, name string) (F, error) {
	var zero F
	sym, ok := lib.Symbol(name)
	if !ok {
		return zero, &MissingSymbolError{Name: name}
	}
	fn, ok := sym.(F)
	if !ok {
		return zero, &MissingSymbolError{Name: name}
	}
	return fn, nil
}

// resolveOptional defers resolution of an optional entry point until first
// use. The returned thunk is safe for concurrent callers and resolves at
// most once.
func resolveOptional[F any](lib Library, name string) func() (F, error) {
	return sync.OnceValues(func() (F, error) {
		return resolveRequired[F](lib, name)
	})
}
