// Package comm implements the Comm Manager (spec §4.5): the client side
// of Jupyter Comms, with the ipywidgets target as the one fully-modeled
// widget protocol.
package comm

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// View is a widget-specific rendering of a Comm's state, installed
// inside a cell output. Update is called whenever process_data or
// set_state changes one or more state keys; Lines renders the view's
// current text.
type View interface {
	Update(state map[string]any, changed []string)
	Lines() []string
}

// Model is the widget-specific behavior behind a Comm: how to build a
// View for it, and which category it belongs to (spec §4.5's
// container/simple-value/bounded-numeric/selection/output taxonomy).
type Model interface {
	Category() Category
	CreateView(state map[string]any) View
}

// Category tags which of the five widget shapes a Model implements.
type Category int

const (
	CategoryContainer Category = iota
	CategorySimpleValue
	CategoryBoundedNumeric
	CategorySelection
	CategoryOutput
)

// SendFunc transmits a comm_msg on the comm channel; wired to the
// Kernel Session by the caller.
type SendFunc func(commID string, data map[string]any) error

// Hijacker lets a widget model borrow the Kernel Session's output
// callbacks for one in-flight execute request, the mechanism the
// ipywidgets Output widget uses to capture a function call's display
// output into its own area instead of the triggering cell's (grounded
// on ipywidgets.py's OutputModel.process_data msg_id swap). restore
// undoes the borrow once the widget stops watching that msg_id.
type Hijacker interface {
	HijackOutput(msgID string, onOutput func(data, metadata map[string]any), onClear func(wait bool)) (restore func())
}

// stateChangeHandler is an optional Model capability: when present,
// Comm.ProcessData calls it with every changed key after merging state,
// letting a model react to a specific key (e.g. OutputModel's msg_id)
// instead of just re-rendering.
type stateChangeHandler interface {
	HandleStateChange(c *Comm, changes map[string]any)
}

// Comm represents the client side of one Jupyter Comm. State is the
// full widget state tree (as last seen from the kernel or applied
// locally); sync controls whether local SetState calls echo back to
// the kernel (disabled for comms reconstructed from a saved notebook
// until the kernel re-links them).
type Comm struct {
	mu         sync.Mutex
	id         string
	targetName string
	state      map[string]any
	model      Model
	views      []View
	send       SendFunc
	sync       bool
	onDirty    func()
	hijacker   Hijacker
}

// SetHijacker wires the Kernel Session's output-callback hijack hook,
// used only by models implementing stateChangeHandler (the Output
// widget).
func (c *Comm) SetHijacker(h Hijacker) {
	c.mu.Lock()
	c.hijacker = h
	c.mu.Unlock()
}

// newComm constructs a linked (sync-enabled) Comm.
func newComm(id, targetName string, state map[string]any, model Model, send SendFunc) *Comm {
	if state == nil {
		state = map[string]any{}
	}
	return &Comm{id: id, targetName: targetName, state: state, model: model, send: send, sync: true}
}

// ID returns the comm's id.
func (c *Comm) ID() string { return c.id }

// TargetName returns the comm_open target_name this comm was created
// for.
func (c *Comm) TargetName() string { return c.targetName }

// OnDirty registers a callback invoked after update_views, so the
// owning cell can be marked for re-render.
func (c *Comm) OnDirty(fn func()) {
	c.mu.Lock()
	c.onDirty = fn
	c.mu.Unlock()
}

// ProcessData implements the comm_msg contract: on method=="update", it
// merges state changes and pushes them to every registered view,
// honoring buffer_paths to re-inject binary buffers into the state
// tree before the merge (spec §4.5 / SPEC_FULL §12).
func (c *Comm) ProcessData(data map[string]any, buffers [][]byte) error {
	if err := spliceBuffers(data, buffers); err != nil {
		return err
	}

	method, _ := data["method"].(string)
	switch method {
	case "", "update":
		changes, _ := data["state"].(map[string]any)
		if changes == nil {
			return nil
		}
		c.mu.Lock()
		stateMap, _ := c.state["state"].(map[string]any)
		if stateMap == nil {
			stateMap = map[string]any{}
			c.state["state"] = stateMap
		}
		keys := make([]string, 0, len(changes))
		for k, v := range changes {
			stateMap[k] = v
			keys = append(keys, k)
		}
		model := c.model
		c.mu.Unlock()
		if handler, ok := model.(stateChangeHandler); ok {
			handler.HandleStateChange(c, changes)
		}
		c.updateViews(keys)
	case "custom":
		// custom messages carry out-of-band events with no state change;
		// nothing in the generic contract handles these, only
		// model-specific code would (none of ours needs to).
	}
	return nil
}

// StateValue reads a single key out of the comm's current state, for
// models that need to inspect state outside of an Update callback
// (e.g. the Output widget appending to its outputs list).
func (c *Comm) StateValue(key string) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	stateMap, _ := c.state["state"].(map[string]any)
	if stateMap == nil {
		return nil
	}
	return stateMap[key]
}

func (c *Comm) hijackerRef() Hijacker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hijacker
}

// SetState applies a local change to a single state key. When the comm
// is sync-enabled, it also sends an update message on the comm channel
// so the kernel's copy stays consistent (spec §4.5).
func (c *Comm) SetState(key string, value any) error {
	c.mu.Lock()
	stateMap, _ := c.state["state"].(map[string]any)
	if stateMap == nil {
		stateMap = map[string]any{}
		c.state["state"] = stateMap
	}
	stateMap[key] = value
	sync := c.sync
	send := c.send
	c.mu.Unlock()

	c.updateViews([]string{key})

	if sync && send != nil {
		return send(c.id, map[string]any{
			"method": "update",
			"state":  map[string]any{key: value},
		})
	}
	return nil
}

// CreateView instantiates the widget-specific view for rendering inside
// a cell output and registers it to receive future updates.
func (c *Comm) CreateView() View {
	c.mu.Lock()
	state, _ := c.state["state"].(map[string]any)
	model := c.model
	c.mu.Unlock()
	if model == nil {
		model = unimplementedModel{}
	}
	view := model.CreateView(state)
	c.mu.Lock()
	c.views = append(c.views, view)
	c.mu.Unlock()
	return view
}

func (c *Comm) updateViews(changed []string) {
	c.mu.Lock()
	state, _ := c.state["state"].(map[string]any)
	views := append([]View(nil), c.views...)
	dirty := c.onDirty
	c.mu.Unlock()
	for _, v := range views {
		v.Update(state, changed)
	}
	if dirty != nil {
		dirty()
	}
}

// Unlink marks a comm reconstructed from saved notebook metadata as not
// talking to a live kernel: SetState still updates views locally but no
// longer sends anything (SPEC_FULL §12's unlinked-on-load semantics).
func (c *Comm) Unlink() {
	c.mu.Lock()
	c.sync = false
	c.send = nil
	c.mu.Unlock()
}

// Link re-enables syncing, e.g. once a restarted kernel re-opens a comm
// with a matching id.
func (c *Comm) Link(send SendFunc) {
	c.mu.Lock()
	c.sync = true
	c.send = send
	c.mu.Unlock()
}

// Factory builds a Model for a comm_open's initial data.
type Factory func(targetName string, data map[string]any) Model

// Manager is the target_name → factory registry plus the live set of
// open comms, multiplexing comm_open/comm_msg/comm_close traffic
// forwarded by the Kernel Session.
type Manager struct {
	mu        sync.Mutex
	factories map[string]Factory
	comms     map[string]*Comm
}

// NewManager returns a Manager pre-registered with the ipywidgets
// target ("jupyter.widget"), per spec §4.5's statement that ipywidgets
// is the core logic this package implements.
func NewManager() *Manager {
	m := &Manager{factories: map[string]Factory{}, comms: map[string]*Comm{}}
	m.Register("jupyter.widget", ipywidgetFactory)
	return m
}

// Register adds or replaces the factory for a target_name.
func (m *Manager) Register(targetName string, factory Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[targetName] = factory
}

// Open handles a comm_open message: unknown targets get the inert
// unimplementedModel per spec §4.5. An existing entry with the same
// comm id is replaced by the new, linked Comm.
func (m *Manager) Open(commID, targetName string, data map[string]any, send SendFunc) *Comm {
	m.mu.Lock()
	factory, ok := m.factories[targetName]
	m.mu.Unlock()

	var model Model
	if ok {
		model = factory(targetName, data)
	} else {
		model = unimplementedModel{}
	}

	c := newComm(commID, targetName, data, model, send)
	m.mu.Lock()
	m.comms[commID] = c
	m.mu.Unlock()
	return c
}

// Message routes a comm_msg to its comm.
func (m *Manager) Message(commID string, data map[string]any, buffers [][]byte) error {
	c := m.Get(commID)
	if c == nil {
		return errors.Errorf("comm: unknown comm_id %q", commID)
	}
	return c.ProcessData(data, buffers)
}

// Close removes a comm, e.g. on comm_close.
func (m *Manager) Close(commID string) {
	m.mu.Lock()
	delete(m.comms, commID)
	m.mu.Unlock()
}

// Get looks a comm up by id.
func (m *Manager) Get(commID string) *Comm {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.comms[commID]
}

// IDs returns every open comm id, for building a comm_info_reply.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Keys(m.comms)
}

// UnlinkAll marks every open comm as disconnected from the kernel. The
// registry itself is kept; a later Open for the same comm id replaces
// the unlinked entry with a new, linked Comm.
func (m *Manager) UnlinkAll() {
	m.mu.Lock()
	comms := lo.Values(m.comms)
	m.mu.Unlock()
	for _, c := range comms {
		c.Unlink()
	}
}
