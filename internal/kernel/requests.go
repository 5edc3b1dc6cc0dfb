package kernel

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/sahilm/fuzzy"

	"github.com/joouha/euporie-sub000/internal/notebook"
)

var errNotRunning = errors.New("kernel: session is not running")

func (s *Session) requireRunning() (*channels, error) {
	s.mu.Lock()
	ch := s.ch
	running := s.state.running()
	s.mu.Unlock()
	if !running || ch == nil {
		return nil, errNotRunning
	}
	return ch, nil
}

// ExecuteCallbacks collects the callbacks an Execute caller wants
// invoked as the cell runs; Done receives the decoded execute_reply.
type ExecuteCallbacks struct {
	Output            func(notebook.Output)
	ExecutionCount    func(int)
	ClearOutput       func(wait bool)
	UpdateDisplayData func(displayID string, data, metadata map[string]any)
	Input             func(prompt string, password bool) (string, bool)
	Done              func(*ExecuteReply, error)
}

// Execute issues an execute_request, returning the request's msg_id
// immediately; results stream back through cb as the reactor processes
// iopub/stdin traffic. Done fires once the reply and a matching idle
// status have both been observed, per spec §4.4's ordering guarantee.
func (s *Session) Execute(code string, storeHistory bool, cb ExecuteCallbacks) (string, error) {
	ch, err := s.requireRunning()
	if err != nil {
		return "", err
	}
	bundle := CallbackBundle{
		Output:            cb.Output,
		ExecutionCount:    cb.ExecutionCount,
		ClearOutput:       cb.ClearOutput,
		UpdateDisplayData: cb.UpdateDisplayData,
		Input:             cb.Input,
		Done: func(reply *Message, err error) {
			if cb.Done == nil {
				return
			}
			if err != nil {
				cb.Done(nil, err)
				return
			}
			var r ExecuteReply
			if decodeErr := unmarshalContent(reply, &r); decodeErr != nil {
				cb.Done(nil, decodeErr)
				return
			}
			cb.Done(&r, nil)
		},
	}
	return s.doRequest(ch.shell, "execute_request", executeRequest{
		Code:            code,
		Silent:          false,
		StoreHistory:    storeHistory,
		UserExpressions: map[string]any{},
		AllowStdin:      cb.Input != nil,
		StopOnError:     true,
	}, bundle)
}

// Complete issues a complete_request and delivers ranked Completions to
// done. Jupyter-experimental typed matches are preferred when the
// kernel sends them; otherwise bare matches are used, ranked by
// sahilm/fuzzy against the token ending at cursor_pos.
func (s *Session) Complete(code string, cursorPos int, done func([]Completion, error)) (string, error) {
	ch, err := s.requireRunning()
	if err != nil {
		return "", err
	}
	return s.doRequest(ch.shell, "complete_request", completeRequestContent{
		Code:      code,
		CursorPos: cursorPos,
	}, CallbackBundle{
		Done: func(reply *Message, err error) {
			if done == nil {
				return
			}
			if err != nil {
				done(nil, err)
				return
			}
			var r CompleteReply
			if decodeErr := unmarshalContent(reply, &r); decodeErr != nil {
				done(nil, decodeErr)
				return
			}
			done(completionsFromReply(code, cursorPos, &r), nil)
		},
	})
}

func completionsFromReply(code string, cursorPos int, r *CompleteReply) []Completion {
	if len(r.Metadata.TypedMatches) > 0 {
		out := make([]Completion, len(r.Metadata.TypedMatches))
		for i, m := range r.Metadata.TypedMatches {
			typ := m.Type
			if typ == "<unknown>" {
				typ = ""
			}
			out[i] = Completion{Text: m.Text, Type: typ, Start: m.Start - cursorPos, End: m.End - cursorPos}
		}
		return out
	}

	out := make([]Completion, len(r.Matches))
	for i, m := range r.Matches {
		out[i] = Completion{Text: m, Start: r.CursorStart - cursorPos, End: r.CursorEnd - cursorPos}
	}
	if token := tokenBefore(code, cursorPos); token != "" {
		rankCompletionsByToken(out, token)
	}
	return out
}

// tokenBefore returns the identifier-ish token immediately before
// cursorPos, the fragment fuzzy-ranking matches against.
func tokenBefore(code string, cursorPos int) string {
	if cursorPos > len(code) {
		cursorPos = len(code)
	}
	i := cursorPos
	for i > 0 {
		c := code[i-1]
		if !(c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			break
		}
		i--
	}
	return code[i:cursorPos]
}

func rankCompletionsByToken(completions []Completion, token string) {
	texts := make([]string, len(completions))
	for i, c := range completions {
		texts[i] = c.Text
	}
	matches := fuzzy.Find(token, texts)
	sort.Stable(matches)
	rank := make(map[int]int, len(matches))
	for i, m := range matches {
		rank[m.Index] = i
	}
	sort.SliceStable(completions, func(i, j int) bool {
		ri, iok := rank[i]
		rj, jok := rank[j]
		if iok && jok {
			return ri < rj
		}
		return iok && !jok
	})
}

// Inspect issues an inspect_request for contextual help/type information
// under the cursor.
func (s *Session) Inspect(code string, cursorPos, detailLevel int, done func(*InspectReply, error)) (string, error) {
	ch, err := s.requireRunning()
	if err != nil {
		return "", err
	}
	return s.doRequest(ch.shell, "inspect_request", inspectRequestContent{
		Code: code, CursorPos: cursorPos, DetailLevel: detailLevel,
	}, CallbackBundle{
		Done: func(reply *Message, err error) {
			if done == nil {
				return
			}
			if err != nil {
				done(nil, err)
				return
			}
			var r InspectReply
			done(&r, unmarshalContent(reply, &r))
		},
	})
}

// History issues a history_request in "search" mode and delivers the
// parsed (session, line, text) triples to done.
func (s *Session) History(pattern string, n int, done func([]HistoryEntry, error)) (string, error) {
	ch, err := s.requireRunning()
	if err != nil {
		return "", err
	}
	return s.doRequest(ch.shell, "history_request", historyRequestContent{
		HistAccessType: "search",
		Pattern:        pattern,
		Unique:         true,
		N:              n,
		Output:         false,
		Raw:            true,
	}, CallbackBundle{
		Done: func(reply *Message, err error) {
			if done == nil {
				return
			}
			if err != nil {
				done(nil, err)
				return
			}
			var r HistoryReply
			if decodeErr := unmarshalContent(reply, &r); decodeErr != nil {
				done(nil, decodeErr)
				return
			}
			done(historyEntries(r), nil)
		},
	})
}

func historyEntries(r HistoryReply) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(r.History))
	for _, row := range r.History {
		if len(row) < 3 {
			continue
		}
		session, _ := row[0].(float64)
		line, _ := row[1].(float64)
		text, _ := row[2].(string)
		out = append(out, HistoryEntry{Session: int(session), Line: int(line), Text: text})
	}
	return out
}

// Info issues a kernel_info_request and delivers the decoded reply.
func (s *Session) Info(done func(*KernelInfoReply, error)) (string, error) {
	ch, err := s.requireRunning()
	if err != nil {
		return "", err
	}
	return s.doRequest(ch.shell, "kernel_info_request", struct{}{}, CallbackBundle{
		Done: func(reply *Message, err error) {
			if done == nil {
				return
			}
			if err != nil {
				done(nil, err)
				return
			}
			var r KernelInfoReply
			done(&r, unmarshalContent(reply, &r))
		},
	})
}
