package kernel

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/joouha/euporie-sub000/internal/notebook"
)

// State is a position in the Kernel Session state machine (spec §4.4):
// stopped → starting → {idle, busy, error, missing}.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateIdle
	StateBusy
	StateError
	StateMissing
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	case StateError:
		return "error"
	case StateMissing:
		return "missing"
	default:
		return "unknown"
	}
}

// running reports whether requests may be issued in this state.
func (s State) running() bool { return s == StateIdle || s == StateBusy }

// CallbackBundle is the set of callbacks a request may receive as the
// reactor dispatches iopub/stdin/shell traffic tagged with its msg_id.
// Every field is optional; nil callbacks are simply not invoked.
type CallbackBundle struct {
	Status            func(State)
	ExecutionCount    func(int)
	Output            func(notebook.Output)
	ClearOutput       func(wait bool)
	UpdateDisplayData func(displayID string, data, metadata map[string]any)
	Input             func(prompt string, password bool) (value string, ok bool)
	Done              func(reply *Message, err error)
}

type pendingRequest struct {
	bundle   CallbackBundle
	reply    *Message
	gotReply bool
	idleSeen bool
}

// CommHandler receives comm_open/comm_msg/comm_close messages forwarded
// from iopub traffic the Comm Manager owns; kind is one of
// "open", "msg", "close".
type CommHandler func(kind, commID, targetName string, data map[string]any)

// Session owns a single kernel's ZMQ channels and reactor. All public
// methods are safe to call from the UI goroutine; the reactor itself
// runs on background goroutines supervised by an errgroup.
type Session struct {
	mu          sync.Mutex
	state       State
	sessionID   string
	execCounter int
	pending     map[string]*pendingRequest
	displayIDs  map[string]bool
	commHandler CommHandler
	onState     func(State)

	ch      *channels
	kernel  *launchedKernel
	cancel  context.CancelFunc
	group   *errgroup.Group
	log     *log.Logger
	stopped chan struct{}
}

// New creates a Session in the stopped state. onState, if non-nil, is
// invoked on every global state transition (used to drive a status
// indicator in the UI).
func New(logger *log.Logger, onState func(State)) *Session {
	if logger == nil {
		logger = log.New(os.Stderr)
	}
	return &Session{
		state:      StateStopped,
		sessionID:  newUUID(),
		pending:    map[string]*pendingRequest{},
		displayIDs: map[string]bool{},
		onState:    onState,
		log:        logger,
	}
}

// SetCommHandler registers the Comm Manager's forwarding callback.
func (s *Session) SetCommHandler(h CommHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commHandler = h
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	cb := s.onState
	s.mu.Unlock()
	if cb != nil {
		cb(state)
	}
}

// Start resolves a kernelspec from names (tried in order, per
// FallbackList), launches the kernel process, dials its channels, and
// starts the reactor. It transitions stopped → starting → {idle,
// missing, error}.
func (s *Session) Start(names []string) error {
	s.setState(StateStarting)

	_, spec, err := ResolveKernelspec(names)
	if err != nil {
		if IsNoSuchKernel(err) {
			s.setState(StateMissing)
			return err
		}
		s.setState(StateError)
		return err
	}

	launched, err := launchKernel(spec)
	if err != nil {
		s.setState(StateError)
		return err
	}

	return s.attach(launched.info, launched)
}

// Attach connects to an already-running kernel (e.g. one launched out
// of band for tests), skipping kernelspec resolution and process
// management entirely.
func (s *Session) Attach(info ConnectionInfo) error {
	s.setState(StateStarting)
	return s.attach(info, nil)
}

func (s *Session) attach(info ConnectionInfo, launched *launchedKernel) error {
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := dialChannels(ctx, info)
	if err != nil {
		cancel()
		s.setState(StateError)
		return err
	}

	s.mu.Lock()
	s.ch = ch
	s.kernel = launched
	s.cancel = cancel
	s.stopped = make(chan struct{})
	s.mu.Unlock()

	group, gctx := errgroup.WithContext(ctx)
	s.group = group
	group.Go(func() error { return s.pollShell(gctx) })
	group.Go(func() error { return s.pollControl(gctx) })
	group.Go(func() error { return s.pollIOPub(gctx) })
	group.Go(func() error { return s.pollStdin(gctx) })

	if err := s.sendKernelInfoProbe(); err != nil {
		s.setState(StateError)
		return err
	}

	s.setState(StateIdle)
	return nil
}

// sendKernelInfoProbe issues a kernel_info_request and waits for its
// reply synchronously, the wait_for_ready step of start(); a transport
// error, or no reply within 30 seconds (the kernel never answers),
// returns an error, which attach turns into the error state.
func (s *Session) sendKernelInfoProbe() error {
	done := make(chan error, 1)
	_, err := s.doRequest(s.ch.shell, "kernel_info_request", struct{}{}, CallbackBundle{
		Done: func(reply *Message, err error) { done <- err },
	})
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-time.After(30 * time.Second):
		return errors.New("kernel: timed out waiting for kernel_info_reply")
	}
}

// IsStopped reports whether the reactor has been torn down.
func (s *Session) IsStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateStopped
}

// Shutdown sends a shutdown_request, then tears down the reactor and
// the kernel process (if one was launched by this session), joining
// all goroutines before returning.
func (s *Session) Shutdown(restart bool) error {
	s.mu.Lock()
	ch := s.ch
	cancel := s.cancel
	group := s.group
	kernel := s.kernel
	stopped := s.stopped
	s.mu.Unlock()

	if ch != nil {
		_, _ = s.doRequest(ch.control, "shutdown_request", shutdownRequestContent{Restart: restart}, CallbackBundle{})
	}
	if cancel != nil {
		cancel()
	}
	if group != nil {
		_ = group.Wait()
	}
	if stopped != nil {
		close(stopped)
	}
	if ch != nil {
		ch.Close()
	}
	if kernel != nil {
		kernel.stop()
	}

	s.mu.Lock()
	s.ch = nil
	s.kernel = nil
	for id, p := range s.pending {
		if p.bundle.Done != nil {
			p.bundle.Done(nil, errors.New("kernel: session shut down"))
		}
		delete(s.pending, id)
	}
	s.mu.Unlock()

	s.setState(StateStopped)
	return nil
}

// Restart is shutdown followed by start against the same kernelspec,
// per the state machine's `restart() = shutdown + start` transition.
// The Comm Manager's registry of live comms is untouched by Restart
// itself (SPEC_FULL §12's restart-preserves-comm-links decision): it is
// the caller's job not to clear that registry across this call.
func (s *Session) Restart(names []string) error {
	if err := s.Shutdown(true); err != nil {
		return err
	}
	return s.Start(names)
}

// Interrupt sends an interrupt_request on the control channel. Per
// spec §4.4 this runs synchronously and is not tracked in the msg_id
// map: it only signals the kernel, and in-flight replies are still
// delivered normally by the reactor.
func (s *Session) Interrupt() error {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()
	if ch == nil {
		return errors.New("kernel: not running")
	}
	msg := &Message{
		Header:  newHeader(s.sessionID, "interrupt_request", Header{}),
		Content: mustJSON(interruptRequestContent{}),
	}
	return ch.send(ch.control, msg)
}

// Change mutates the requested kernelspec and restarts if a kernel is
// currently running, per spec §4.4's `change(name, metadata)`.
func (s *Session) Change(name string, metadata map[string]any, fallbacks []string) error {
	names := FallbackList(name, fallbacks)
	_, spec, err := ResolveKernelspec(names)
	if metadata != nil {
		ks, _ := metadata["kernelspec"].(map[string]any)
		if ks == nil {
			ks = map[string]any{}
			metadata["kernelspec"] = ks
		}
		ks["name"] = name
		if err == nil {
			ks["display_name"] = spec.DisplayName
			ks["language"] = spec.Language
		}
	}
	if s.State() == StateStopped {
		return s.Start(names)
	}
	return s.Restart(names)
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}
