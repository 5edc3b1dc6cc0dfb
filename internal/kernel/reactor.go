package kernel

import (
	"context"

	"github.com/go-zeromq/zmq4"

	"github.com/joouha/euporie-sub000/internal/notebook"
)

// doRequest builds a fresh request message, registers its callback
// bundle under the new msg_id, and sends it on socket. The returned
// msg_id lets a caller correlate later state if needed; the normal way
// to observe the result is through bundle.Done.
func (s *Session) doRequest(socket zmq4.Socket, msgType string, content any, bundle CallbackBundle) (string, error) {
	msg := &Message{
		Header:  newHeader(s.sessionID, msgType, Header{}),
		Content: mustJSON(content),
	}

	s.mu.Lock()
	s.pending[msg.Header.MsgID] = &pendingRequest{bundle: bundle}
	s.mu.Unlock()

	if err := s.ch.send(socket, msg); err != nil {
		s.mu.Lock()
		delete(s.pending, msg.Header.MsgID)
		s.mu.Unlock()
		return "", err
	}
	return msg.Header.MsgID, nil
}

// pollShell reads shell-channel replies (to our own requests) and
// resolves the matching pending entry's reply half.
func (s *Session) pollShell(ctx context.Context) error {
	for {
		msg, err := s.ch.recv(s.ch.shell)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			s.log.Warn("shell recv failed", "err", err)
			continue
		}
		s.handleShellReply(msg)
	}
}

func (s *Session) handleShellReply(msg *Message) {
	id := msg.ParentHeader.MsgID
	s.mu.Lock()
	p, ok := s.pending[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	p.reply = msg
	p.gotReply = true
	done := p.gotReply && p.idleSeen
	s.mu.Unlock()
	if done {
		s.completeRequest(id, p)
	}
}

// pollIOPub reads the broadcast channel: status, stream, display_data,
// execute_result, error, clear_output, update_display_data, and the
// comm_* trio. Messages whose parent msg_id matches a pending request
// are dispatched to that request's bundle; status messages also update
// the session-wide state regardless of whose request they belong to.
func (s *Session) pollIOPub(ctx context.Context) error {
	for {
		msg, err := s.ch.recv(s.ch.iopub)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			s.log.Warn("iopub recv failed", "err", err)
			continue
		}
		s.handleIOPub(msg)
	}
}

func (s *Session) handleIOPub(msg *Message) {
	switch msg.Header.MsgType {
	case "status":
		var content statusContent
		_ = unmarshalContent(msg, &content)
		state := parseExecutionState(content.ExecutionState)
		s.setState(state)
		s.dispatchToPending(msg, func(p *pendingRequest) {
			if p.bundle.Status != nil {
				p.bundle.Status(state)
			}
			if state == StateIdle {
				s.mu.Lock()
				p.idleSeen = true
				done := p.gotReply && p.idleSeen
				s.mu.Unlock()
				if done {
					s.completeRequest(msg.ParentHeader.MsgID, p)
				}
			}
		})

	case "execute_input":
		var content executeInputContent
		_ = unmarshalContent(msg, &content)
		s.dispatchToPending(msg, func(p *pendingRequest) {
			if p.bundle.ExecutionCount != nil {
				p.bundle.ExecutionCount(content.ExecutionCount)
			}
		})

	case "stream":
		var content streamContent
		_ = unmarshalContent(msg, &content)
		s.dispatchToPending(msg, func(p *pendingRequest) {
			if p.bundle.Output != nil {
				p.bundle.Output(notebook.Output{
					Kind:       notebook.OutputStream,
					StreamName: content.Name,
					Text:       content.Text,
				})
			}
		})

	case "display_data":
		var content displayDataContent
		_ = unmarshalContent(msg, &content)
		s.dispatchToPending(msg, func(p *pendingRequest) {
			if p.bundle.Output != nil {
				p.bundle.Output(notebook.Output{
					Kind:       notebook.OutputDisplayData,
					Data:       content.Data,
					Metadata:   content.Metadata,
					DisplayID:  displayIDOf(content.Transient),
				})
			}
		})
		if id := displayIDOf(content.Transient); id != "" {
			s.mu.Lock()
			s.displayIDs[id] = true
			s.mu.Unlock()
		}

	case "execute_result":
		var content executeResultContent
		_ = unmarshalContent(msg, &content)
		s.dispatchToPending(msg, func(p *pendingRequest) {
			if p.bundle.Output != nil {
				p.bundle.Output(notebook.Output{
					Kind:           notebook.OutputExecuteResult,
					Data:           content.Data,
					Metadata:       content.Metadata,
					ExecutionCount: content.ExecutionCount,
				})
			}
		})

	case "error":
		var content errorContent
		_ = unmarshalContent(msg, &content)
		s.dispatchToPending(msg, func(p *pendingRequest) {
			if p.bundle.Output != nil {
				p.bundle.Output(notebook.Output{
					Kind:      notebook.OutputError,
					EName:     content.EName,
					EValue:    content.EValue,
					Traceback: content.Traceback,
				})
			}
		})

	case "clear_output":
		var content clearOutputContent
		_ = unmarshalContent(msg, &content)
		s.dispatchToPending(msg, func(p *pendingRequest) {
			if p.bundle.ClearOutput != nil {
				p.bundle.ClearOutput(content.Wait)
			}
		})

	case "update_display_data":
		var content displayDataContent
		_ = unmarshalContent(msg, &content)
		id := displayIDOf(content.Transient)
		s.dispatchToPending(msg, func(p *pendingRequest) {
			if p.bundle.UpdateDisplayData != nil {
				p.bundle.UpdateDisplayData(id, content.Data, content.Metadata)
			}
		})

	case "comm_open":
		var content commOpenContent
		_ = unmarshalContent(msg, &content)
		s.forwardComm("open", content.CommID, content.TargetName, content.Data)

	case "comm_msg":
		var content commMsgContent
		_ = unmarshalContent(msg, &content)
		s.forwardComm("msg", content.CommID, "", content.Data)

	case "comm_close":
		var content commCloseContent
		_ = unmarshalContent(msg, &content)
		s.forwardComm("close", content.CommID, "", content.Data)
	}
}

func (s *Session) forwardComm(kind, commID, targetName string, data map[string]any) {
	s.mu.Lock()
	h := s.commHandler
	s.mu.Unlock()
	if h != nil {
		h(kind, commID, targetName, data)
	}
}

func displayIDOf(transient map[string]any) string {
	if transient == nil {
		return ""
	}
	id, _ := transient["display_id"].(string)
	return id
}

func parseExecutionState(state string) State {
	switch state {
	case "busy":
		return StateBusy
	case "idle":
		return StateIdle
	case "starting":
		return StateStarting
	default:
		return StateIdle
	}
}

func (s *Session) dispatchToPending(msg *Message, fn func(*pendingRequest)) {
	id := msg.ParentHeader.MsgID
	if id == "" {
		return
	}
	s.mu.Lock()
	p, ok := s.pending[id]
	s.mu.Unlock()
	if ok {
		fn(p)
	}
}

func (s *Session) completeRequest(id string, p *pendingRequest) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
	if p.bundle.Done != nil {
		p.bundle.Done(p.reply, nil)
	}
}

// pollControl mirrors pollShell for the control channel, which carries
// jump-the-queue requests like interrupt_request/shutdown_request and
// their replies.
func (s *Session) pollControl(ctx context.Context) error {
	for {
		msg, err := s.ch.recv(s.ch.control)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			s.log.Warn("control recv failed", "err", err)
			continue
		}
		s.handleShellReply(msg)
	}
}

// pollStdin reads input_request messages and replies with whatever the
// pending request's Input callback returns; if no callback is set (or
// it declines), an empty value is sent so the kernel does not block
// forever.
func (s *Session) pollStdin(ctx context.Context) error {
	for {
		msg, err := s.ch.recv(s.ch.stdin)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			s.log.Warn("stdin recv failed", "err", err)
			continue
		}
		s.handleInputRequest(msg)
	}
}

func (s *Session) handleInputRequest(msg *Message) {
	var content inputRequestContent
	_ = unmarshalContent(msg, &content)

	var reply inputReplyContent
	s.dispatchToPending(msg, func(p *pendingRequest) {
		if p.bundle.Input != nil {
			if value, ok := p.bundle.Input(content.Prompt, content.Password); ok {
				reply.Value = value
			}
		}
	})

	out := &Message{
		Header:       newHeader(s.sessionID, "input_reply", Header{}),
		ParentHeader: msg.Header,
		Content:      mustJSON(reply),
	}
	if err := s.ch.send(s.ch.stdin, out); err != nil {
		s.log.Warn("input_reply send failed", "err", err)
	}
}
