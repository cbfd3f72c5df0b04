package sourcekitd

import (
	"log/slog"
	"sync"
	"weak"

	"golang.org/x/sync/singleflight"
)

// Registry guarantees at most one live session per backend library path.
// Opening two connections to the same native resource is unsafe, so removed
// sessions are parked in a graveyard as weak references: if a removed
// session is still referenced by an in-flight caller when the same path is
// requested again, it is resurrected instead of a second connection being
// constructed.
//
// A Registry is an explicit constructed instance passed to every call site
// that needs a session; there is no ambient global.
type Registry struct {
	mu        sync.Mutex
	active    map[string]*registryEntry
	graveyard map[string]*graveyardEntry
	flight    singleflight.Group
	log       *slog.Logger
}

type registryEntry struct {
	session *SourceKitD
	plugins PluginPaths
}

type graveyardEntry struct {
	ref     weak.Pointer[SourceKitD]
	plugins PluginPaths
}

// RegistryOption configures a registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the structured logger for the registry.
func WithRegistryLogger(log *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.log = log
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		active:    make(map[string]*registryEntry),
		graveyard: make(map[string]*graveyardEntry),
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the live session for path, resurrecting a
// still-referenced removed session or constructing a new one via create.
// Construction for a never-before-seen path is serialized per path, so two
// concurrent callers cannot race two library loads for the same backend.
//
// A plugin-configuration mismatch against the stored session is a caller
// bug, but must not take down the editor: it is logged and the existing
// session is returned regardless.
func (r *Registry) GetOrCreate(
	path string,
	plugins PluginPaths,
	create func(path string, plugins PluginPaths) (*SourceKitD, error),
) (*SourceKitD, error) {
	v, err, _ := r.flight.Do(path, func() (any, error) {
		if sk := r.lookup(path, plugins); sk != nil {
			return sk, nil
		}

		sk, err := create(path, plugins)
		if err != nil {
			// No partial registration: the path stays absent from both maps.
			return nil, err
		}

		r.mu.Lock()
		r.active[path] = &registryEntry{session: sk, plugins: plugins}
		r.mu.Unlock()
		return sk, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*SourceKitD), nil
}

// lookup checks active and graveyard for a usable session, handling
// resurrection and the mismatch warning.
func (r *Registry) lookup(path string, plugins PluginPaths) *SourceKitD {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.active[path]; ok {
		r.warnOnMismatch(path, e.plugins, plugins)
		return e.session
	}

	if g, ok := r.graveyard[path]; ok {
		if sk := g.ref.Value(); sk != nil {
			r.warnOnMismatch(path, g.plugins, plugins)
			delete(r.graveyard, path)
			r.active[path] = &registryEntry{session: sk, plugins: g.plugins}
			r.log.Info("resurrected sourcekitd session", slog.String("path", path))
			return sk
		}
		delete(r.graveyard, path)
	}

	return nil
}

func (r *Registry) warnOnMismatch(path string, stored, requested PluginPaths) {
	if stored != requested {
		r.log.Warn("sourcekitd plugin configuration mismatch; returning existing session",
			slog.String("path", path),
			slog.String("stored_client_plugin", stored.ClientPlugin),
			slog.String("requested_client_plugin", requested.ClientPlugin),
			slog.String("stored_service_plugin", stored.ServicePlugin),
			slog.String("requested_service_plugin", requested.ServicePlugin))
	}
}

// Remove moves the session for path from active to the graveyard and
// returns it, still strongly held by the caller. While that reference may
// still be alive, no new connection will be created for the same path.
func (r *Registry) Remove(path string) *SourceKitD {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.active[path]
	if !ok {
		return nil
	}
	delete(r.active, path)
	r.graveyard[path] = &graveyardEntry{ref: weak.Make(e.session), plugins: e.plugins}
	return e.session
}

// ActivePaths returns the paths with live sessions, for introspection.
func (r *Registry) ActivePaths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	paths := make([]string, 0, len(r.active))
	for p := range r.active {
		paths = append(paths, p)
	}
	return paths
}
