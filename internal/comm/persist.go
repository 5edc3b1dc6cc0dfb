package comm

import "encoding/base64"

// SavedWidgetState is the application/vnd.jupyter.widget-state+json
// notebook-metadata shape (spec §4.5's Persistence paragraph): a
// version stamp plus one entry per comm id, each carrying its state
// tree and the buffer_paths/base64 pairs needed to restore any binary
// values the tree holds.
type SavedWidgetState struct {
	VersionMajor int                    `json:"version_major"`
	VersionMinor int                    `json:"version_minor"`
	State        map[string]SavedWidget `json:"state"`
}

// SavedWidget is one comm's persisted entry, matching the schema a real
// Jupyter/ipywidgets frontend expects under notebook metadata's
// application/vnd.jupyter.widget-state+json key: the model's own state
// tree plus the three identifying fields every ipywidgets model carries
// inside that tree (_model_name/_model_module/_model_module_version),
// lifted to the top level per the persisted format.
type SavedWidget struct {
	ModelName          string         `json:"model_name"`
	ModelModule        string         `json:"model_module"`
	ModelModuleVersion string         `json:"model_module_version"`
	State              map[string]any `json:"state"`
	Buffers            []SavedBuffer  `json:"buffers,omitempty"`
}

// SavedBuffer records one binary value's location and base64 payload.
type SavedBuffer struct {
	Path []any  `json:"path"`
	Data string `json:"data"`
}

// SaveState serializes every open comm into the widget-state+json
// shape, extracting []byte leaves out of each comm's state tree into
// base64-encoded SavedBuffer entries (the inverse of spliceBuffers).
func (m *Manager) SaveState() SavedWidgetState {
	m.mu.Lock()
	comms := make(map[string]*Comm, len(m.comms))
	for id, c := range m.comms {
		comms[id] = c
	}
	m.mu.Unlock()

	out := SavedWidgetState{VersionMajor: 2, VersionMinor: 0, State: map[string]SavedWidget{}}
	for id, c := range comms {
		c.mu.Lock()
		full := deepCopyAny(c.state).(map[string]any)
		c.mu.Unlock()

		state, _ := full["state"].(map[string]any)
		if state == nil {
			state = map[string]any{}
		}

		var buffers []SavedBuffer
		extractBuffers(state, nil, &buffers)

		out.State[id] = SavedWidget{
			ModelName:          stateString(state, "_model_name"),
			ModelModule:        stateString(state, "_model_module"),
			ModelModuleVersion: stateString(state, "_model_module_version"),
			State:              state,
			Buffers:            buffers,
		}
	}
	return out
}

// LoadState reconstructs comms from saved widget state, registering
// each through the normal factory lookup (so a model gets attached) but
// leaving it unlinked: no kernel has re-opened these comms yet, so
// SetState calls only update local views until Link is called on the
// comm, or a later Open for the same id replaces it with a new, linked
// Comm.
func (m *Manager) LoadState(saved SavedWidgetState) {
	for id, sw := range saved.State {
		state := deepCopyAny(sw.State).(map[string]any)
		for _, b := range sw.Buffers {
			raw, err := base64.StdEncoding.DecodeString(b.Data)
			if err != nil {
				continue
			}
			setAtPath(state, b.Path, raw)
		}

		c := m.Open(id, "jupyter.widget", map[string]any{"state": state}, nil)
		c.Unlink()
	}
}

// extractBuffers walks v, replacing every []byte leaf with nil and
// appending its location (relative to the state tree's root) and
// base64 encoding to *out.
func extractBuffers(v any, path []any, out *[]SavedBuffer) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if b, ok := child.([]byte); ok {
				*out = append(*out, SavedBuffer{Path: append(append([]any(nil), path...), k), Data: base64.StdEncoding.EncodeToString(b)})
				t[k] = nil
				continue
			}
			extractBuffers(child, append(path, k), out)
		}
	case []any:
		for i, child := range t {
			if b, ok := child.([]byte); ok {
				*out = append(*out, SavedBuffer{Path: append(append([]any(nil), path...), i), Data: base64.StdEncoding.EncodeToString(b)})
				t[i] = nil
				continue
			}
			extractBuffers(child, append(path, i), out)
		}
	}
}

// deepCopyAny clones a JSON-shaped value (maps, slices, scalars, and
// []byte leaves) so SaveState never mutates a live comm's state while
// nulling out buffer leaves.
func deepCopyAny(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = deepCopyAny(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = deepCopyAny(child)
		}
		return out
	case []byte:
		out := make([]byte, len(t))
		copy(out, t)
		return out
	default:
		return t
	}
}
