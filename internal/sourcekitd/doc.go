// Package sourcekitd manages connections to sourcekitd backend services.
//
// A SourceKitD session owns one loaded backend library, interns the UID
// vocabulary lazily, dispatches key/value dictionary requests, and fans out
// backend notifications to weakly-held subscribers. The Registry guarantees
// at most one live session per library path, resurrecting removed sessions
// that are still referenced rather than opening a second connection.
//
// # Architecture
//
// The package is organized around these core components:
//
//   - SourceKitD: One session over a loaded backend library
//   - Registry: Path-keyed session registry with weak graveyard
//   - Library: Entry-point resolution for a loaded backend
//   - RequestDictionary / ResponseDictionary: Typed views over the
//     backend's variant values
//
// # Quick Start
//
// Obtain a session through a registry and send a request:
//
//	registry := sourcekitd.NewRegistry()
//	sk, err := registry.GetOrCreate(path, plugins, func(path string, plugins sourcekitd.PluginPaths) (*sourcekitd.SourceKitD, error) {
//	    return sourcekitd.New(path, plugins)
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	req := sourcekitd.NewRequestDictionary()
//	req.Set(sk.Keys().SourceFile, "/path/to/file.swift")
//	resp, err := sk.Send(ctx, sourcekitd.RequestEditorOpen, req, 0, 0, doc, contents)
//
// # Crash Recovery
//
// Out-of-process backends are monitored: a dead process fails in-flight
// requests as connection-interrupted, and the service is respawned with
// exponential backoff, replaying the interned UID table. A request that
// produces no reply within the restart timeout deliberately crashes a
// restartable backend to recover it. Crash logs carry the crashing request,
// the file contents, and the still-open contextual requests for the same
// document, split into chunks that never break inside a line.
//
// # Notifications
//
// Backend-pushed notifications are drained by a single consumer goroutine
// and delivered to all subscribers strictly in emission order. Subscribers
// are held weakly; registration never extends a handler's lifetime.
//
// # Thread Safety
//
// SourceKitD and Registry are safe for concurrent use.
package sourcekitd
