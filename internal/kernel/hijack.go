package kernel

import "github.com/joouha/euporie-sub000/internal/notebook"

// HijackOutput temporarily swaps the Output/ClearOutput callbacks of a
// pending request, so a consumer other than the owning cell observes
// that request's display output. This is the mechanism the ipywidgets
// Output widget uses to capture a function call's output into its own
// area (grounded on original_source/euporie/comm/ipywidgets.py's
// OutputModel.process_data msg_id swap); it satisfies internal/comm's
// Hijacker interface structurally, without this package importing
// internal/comm.
func (s *Session) HijackOutput(msgID string, onOutput func(data, metadata map[string]any), onClear func(wait bool)) func() {
	s.mu.Lock()
	p, ok := s.pending[msgID]
	if !ok {
		s.mu.Unlock()
		return func() {}
	}
	prevOutput := p.bundle.Output
	prevClear := p.bundle.ClearOutput

	p.bundle.Output = func(out notebook.Output) {
		switch out.Kind {
		case notebook.OutputDisplayData, notebook.OutputExecuteResult:
			onOutput(out.Data, out.Metadata)
		}
	}
	p.bundle.ClearOutput = onClear
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		if cur, ok := s.pending[msgID]; ok && cur == p {
			cur.bundle.Output = prevOutput
			cur.bundle.ClearOutput = prevClear
		}
		s.mu.Unlock()
	}
}
