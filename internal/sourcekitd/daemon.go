package sourcekitd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"fortio.org/safecast"
)

// RespawnConfig controls automatic respawn of a crashed backend process.
type RespawnConfig struct {
	// MaxRestarts is the maximum number of respawn attempts before the
	// library reports every request as connection-interrupted.
	MaxRestarts int

	// InitialBackoff is the delay before the first respawn attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the respawn delay.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the delay after each failed attempt.
	BackoffMultiplier float64

	// ResetWindow resets the restart count once the backend has stayed up
	// this long.
	ResetWindow time.Duration
}

// DefaultRespawnConfig returns the default respawn configuration.
func DefaultRespawnConfig() RespawnConfig {
	return RespawnConfig{
		MaxRestarts:       5,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        60 * time.Second,
		BackoffMultiplier: 2.0,
		ResetWindow:       5 * time.Minute,
	}
}

// calculateBackoff returns the respawn delay for an attempt. attempt<=1
// returns the initial delay; later attempts grow exponentially up to max.
func calculateBackoff(attempt int, initial, max time.Duration, multiplier float64) time.Duration {
	if attempt <= 1 {
		return initial
	}
	delay := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if delay > float64(max) {
		return max
	}
	return time.Duration(delay)
}

// daemonLibrary is the production Library: it launches the backend service
// binary named by the library path and proxies the entry points over the
// framed dictionary protocol on the child's stdio. The process is monitored;
// if it dies, in-flight requests fail as connection-interrupted and the
// process is respawned with exponential backoff, replaying the interned
// symbol table into the fresh instance.
type daemonLibrary struct {
	path    string
	plugins PluginPaths
	respawn RespawnConfig
	log     *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	reader  *bufio.Reader
	symbols map[string]bool
	pending map[RequestHandle]func(*ResponseObject)
	gen     int

	restartCount int
	lastStart    time.Time

	uidMu    sync.Mutex
	uidNames []string
	uidIDs   map[string]UID

	nextHandle   atomic.Uint64
	notifHandler atomic.Pointer[func(*ResponseObject)]
	closed       atomic.Bool
	failed       atomic.Bool

	wmu sync.Mutex
}

// DaemonOption configures a daemon-backed library.
type DaemonOption func(*daemonLibrary)

// WithRespawnConfig sets the automatic respawn policy.
func WithRespawnConfig(cfg RespawnConfig) DaemonOption {
	return func(l *daemonLibrary) {
		l.respawn = cfg
	}
}

// WithDaemonLogger sets the structured logger for the library.
func WithDaemonLogger(log *slog.Logger) DaemonOption {
	return func(l *daemonLibrary) {
		l.log = log
	}
}

// NewDaemonLibrary spawns the backend service at path and performs the hello
// handshake.
func NewDaemonLibrary(path string, plugins PluginPaths, opts ...DaemonOption) (Library, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	l := newDaemonLibrary(path, plugins, opts...)

	l.mu.Lock()
	err := l.startLocked()
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return l, nil
}

// newDaemonLibrary builds the library without spawning the process.
func newDaemonLibrary(path string, plugins PluginPaths, opts ...DaemonOption) *daemonLibrary {
	l := &daemonLibrary{
		path:    path,
		plugins: plugins,
		respawn: DefaultRespawnConfig(),
		log:     slog.Default(),
		pending: make(map[RequestHandle]func(*ResponseObject)),
		uidIDs:  make(map[string]UID),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// openDaemonLibrary is the default library opener for sessions.
func openDaemonLibrary(path string, plugins PluginPaths) (Library, error) {
	return NewDaemonLibrary(path, plugins)
}

// startLocked spawns the backend process and performs the handshake. Must
// hold mu.
func (l *daemonLibrary) startLocked() error {
	args := []string{"--protocol", "skd1"}
	if l.plugins.ClientPlugin != "" {
		args = append(args, "--client-plugin", l.plugins.ClientPlugin)
	}
	if l.plugins.ServicePlugin != "" {
		args = append(args, "--service-plugin", l.plugins.ServicePlugin)
	}

	cmd := exec.Command(l.path, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start backend: %w", err)
	}

	reader := bufio.NewReaderSize(stdout, 64*1024)

	// The backend leads with a hello advertising its entry points.
	hello, err := readFrame(reader)
	if err != nil || hello.Op != wireOpHello {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		if err == nil {
			err = fmt.Errorf("expected hello, got %q", hello.Op)
		}
		return fmt.Errorf("backend handshake: %w", err)
	}

	l.cmd = cmd
	l.stdin = stdin
	l.reader = reader
	l.symbols = make(map[string]bool, len(hello.Symbols))
	for _, s := range hello.Symbols {
		l.symbols[s] = true
	}
	l.lastStart = time.Now()
	l.gen++

	l.replayUIDsLocked()

	go l.readLoop(l.gen, reader, cmd)
	return nil
}

// replayUIDsLocked re-registers every interned symbol with a fresh backend
// instance so handles stay stable across respawns. Must hold mu.
func (l *daemonLibrary) replayUIDsLocked() {
	l.uidMu.Lock()
	defer l.uidMu.Unlock()
	for i, name := range l.uidNames {
		id, err := safeUID(i + 1)
		if err != nil {
			continue
		}
		_ = l.writeFrameTo(l.stdin, &wireMessage{Op: wireOpUID, UID: id, Name: name})
	}
}

// readLoop reads frames from one process incarnation until it dies.
func (l *daemonLibrary) readLoop(gen int, reader *bufio.Reader, cmd *exec.Cmd) {
	for {
		msg, err := readFrame(reader)
		if err != nil {
			l.handleExit(gen, cmd, err)
			return
		}

		switch msg.Op {
		case wireOpResponse:
			l.mu.Lock()
			receiver, ok := l.pending[RequestHandle(msg.Handle)]
			if ok {
				delete(l.pending, RequestHandle(msg.Handle))
			}
			l.mu.Unlock()
			if ok {
				receiver(&ResponseObject{errKind: msg.ErrKind, errDesc: msg.ErrDesc, value: msg.Value})
			}
		case wireOpNotification:
			if h := l.notifHandler.Load(); h != nil && *h != nil {
				(*h)(&ResponseObject{value: msg.Value})
			}
		default:
			// Unknown frames from newer backends are ignored.
		}
	}
}

// handleExit fails all in-flight requests as connection-interrupted and
// respawns the process with backoff, unless the library was closed or the
// restart budget is exhausted.
func (l *daemonLibrary) handleExit(gen int, cmd *exec.Cmd, cause error) {
	waitErr := cmd.Wait()

	l.mu.Lock()
	if gen != l.gen || l.closed.Load() {
		l.mu.Unlock()
		return
	}

	pending := l.pending
	l.pending = make(map[RequestHandle]func(*ResponseObject))
	l.mu.Unlock()

	desc := "backend process exited"
	if waitErr != nil {
		desc = waitErr.Error()
	} else if cause != nil && !errors.Is(cause, io.EOF) {
		desc = cause.Error()
	}
	for _, receiver := range pending {
		receiver(&ResponseObject{errKind: wireErrConnectionInterrupted, errDesc: desc})
	}
	l.log.Error("sourcekitd backend died",
		slog.String("path", l.path), slog.String("cause", desc),
		slog.Int("in_flight", len(pending)))

	l.respawnLoop(gen)
}

// respawnLoop restarts the backend with exponential backoff.
func (l *daemonLibrary) respawnLoop(gen int) {
	for {
		l.mu.Lock()
		if gen != l.gen || l.closed.Load() {
			l.mu.Unlock()
			return
		}
		if time.Since(l.lastStart) > l.respawn.ResetWindow {
			l.restartCount = 0
		}
		l.restartCount++
		if l.restartCount > l.respawn.MaxRestarts {
			l.failed.Store(true)
			l.mu.Unlock()
			l.log.Error("sourcekitd backend exceeded restart budget",
				slog.String("path", l.path), slog.Int("attempts", l.restartCount-1))
			return
		}
		attempt := l.restartCount
		delay := calculateBackoff(attempt, l.respawn.InitialBackoff,
			l.respawn.MaxBackoff, l.respawn.BackoffMultiplier)
		l.mu.Unlock()

		l.log.Info("respawning sourcekitd backend",
			slog.String("path", l.path), slog.Int("attempt", attempt),
			slog.Duration("backoff", delay))
		time.Sleep(delay)

		l.mu.Lock()
		if l.closed.Load() {
			l.mu.Unlock()
			return
		}
		err := l.startLocked()
		if err == nil {
			gen = l.gen
			l.mu.Unlock()
			l.log.Info("sourcekitd backend recovered",
				slog.String("path", l.path), slog.Int("attempt", attempt))
			return
		}
		l.mu.Unlock()
		l.log.Warn("sourcekitd backend respawn failed",
			slog.String("path", l.path), slog.String("err", err.Error()))
	}
}

// Symbol implements Library. Entry points are backed by the advertised
// symbol set from the handshake; older backends that do not advertise an
// entry point resolve as missing.
func (l *daemonLibrary) Symbol(name string) (any, bool) {
	l.mu.Lock()
	advertised := l.symbols[name]
	l.mu.Unlock()
	if !advertised {
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
		return func(fromStr func(string) UID, toStr func(UID) string) {
			// Custom interning handlers are a plugin concern; the daemon
			// protocol keeps interning binding-local.
		}, true
	default:
		return nil, false
	}
}

// internUID assigns (or returns) the stable handle for a dotted name and
// registers it with the backend. Interning is idempotent and cannot fail.
func (l *daemonLibrary) internUID(name string) UID {
	l.uidMu.Lock()
	if id, ok := l.uidIDs[name]; ok {
		l.uidMu.Unlock()
		return id
	}
	id, err := safeUID(len(l.uidNames) + 1)
	if err != nil {
		l.uidMu.Unlock()
		return 0
	}
	l.uidNames = append(l.uidNames, name)
	l.uidIDs[name] = id
	l.uidMu.Unlock()

	l.mu.Lock()
	stdin := l.stdin
	l.mu.Unlock()
	if stdin != nil {
		_ = l.writeFrameTo(stdin, &wireMessage{Op: wireOpUID, UID: id, Name: name})
	}
	return id
}

func (l *daemonLibrary) uidString(u UID) string {
	l.uidMu.Lock()
	defer l.uidMu.Unlock()
	i := int(u) - 1
	if i < 0 || i >= len(l.uidNames) {
		return ""
	}
	return l.uidNames[i]
}

func (l *daemonLibrary) sendRequest(req *RequestDictionary, receiver func(*ResponseObject)) RequestHandle {
	handle := RequestHandle(l.nextHandle.Add(1))

	l.mu.Lock()
	if l.closed.Load() || l.failed.Load() || l.stdin == nil {
		l.mu.Unlock()
		go receiver(&ResponseObject{errKind: wireErrConnectionInterrupted, errDesc: "backend unavailable"})
		return handle
	}
	l.pending[handle] = receiver
	stdin := l.stdin
	l.mu.Unlock()

	err := l.writeFrameTo(stdin, &wireMessage{Op: wireOpRequest, Handle: uint64(handle), Value: req.v})
	if err != nil {
		l.mu.Lock()
		_, still := l.pending[handle]
		delete(l.pending, handle)
		l.mu.Unlock()
		if still {
			go receiver(&ResponseObject{errKind: wireErrConnectionInterrupted, errDesc: err.Error()})
		}
	}
	return handle
}

func (l *daemonLibrary) cancelRequest(h RequestHandle) {
	l.mu.Lock()
	stdin := l.stdin
	l.mu.Unlock()
	if stdin != nil {
		_ = l.writeFrameTo(stdin, &wireMessage{Op: wireOpCancel, Handle: uint64(h)})
	}
}

// writeFrameTo serializes concurrent writers onto the child's stdin.
func (l *daemonLibrary) writeFrameTo(w io.Writer, msg *wireMessage) error {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	return writeFrame(w, msg)
}

// Close implements Library. Calling Close twice is a programming error.
func (l *daemonLibrary) Close() error {
	if l.closed.Swap(true) {
		panic("sourcekitd: daemon library closed twice")
	}

	l.mu.Lock()
	stdin := l.stdin
	cmd := l.cmd
	l.stdin = nil
	l.mu.Unlock()

	if stdin != nil {
		_ = l.writeFrameTo(stdin, &wireMessage{Op: wireOpShutdown})
		_ = stdin.Close()
	}
	if cmd != nil && cmd.Process != nil {
		done := make(chan struct{})
		go func() {
			_, _ = cmd.Process.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			_ = cmd.Process.Kill()
		}
	}
	return nil
}

// CanRestart implements Library: the backend is an out-of-process service.
func (l *daemonLibrary) CanRestart() bool {
	return true
}

// Kill forcibly terminates the current backend process. The exit monitor
// observes the death, fails in-flight requests, and respawns as usual. Used
// when a crash request itself goes unanswered by a wedged backend.
func (l *daemonLibrary) Kill() error {
	l.mu.Lock()
	cmd := l.cmd
	l.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		return cmd.Process.Kill()
	}
	return nil
}

func safeUID(n int) (UID, error) {
	v, err := safecast.Conv[uint32](n)
	if err != nil {
		return 0, fmt.Errorf("uid handle %d out of range: %w", n, err)
	}
	return UID(v), nil
}
