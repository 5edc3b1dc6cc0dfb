package kernel

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/stretchr/testify/require"

	"github.com/joouha/euporie-sub000/internal/notebook"
)

// fakeKernel is a minimal in-process stand-in for a Jupyter kernel,
// bound to zmq4's INPROC transport (per SPEC_FULL §10.4's test-tooling
// decision): it answers kernel_info_request/execute_request on shell
// and publishes the matching status/execute_input/stream/idle sequence
// on iopub, enough to drive the reactor through a full request cycle
// without a real kernel process.
type fakeKernel struct {
	shell, iopub, stdin, control, hb zmq4.Socket
	signer                           *signer
	execCount                        int32
}

func newFakeKernel(t *testing.T, ctx context.Context, info ConnectionInfo) *fakeKernel {
	t.Helper()
	addr := func(port int) string { return fmt.Sprintf("%s://%s:%d", info.Transport, info.IP, port) }

	fk := &fakeKernel{signer: newSigner([]byte(info.Key))}
	fk.shell = zmq4.NewRouter(ctx)
	fk.control = zmq4.NewRouter(ctx)
	fk.stdin = zmq4.NewRouter(ctx)
	fk.iopub = zmq4.NewPub(ctx)
	fk.hb = zmq4.NewRep(ctx)

	require.NoError(t, fk.shell.Listen(addr(info.ShellPort)))
	require.NoError(t, fk.control.Listen(addr(info.ControlPort)))
	require.NoError(t, fk.stdin.Listen(addr(info.StdinPort)))
	require.NoError(t, fk.iopub.Listen(addr(info.IOPubPort)))
	require.NoError(t, fk.hb.Listen(addr(info.HBPort)))

	return fk
}

func inprocConnectionInfo(shell, iopub, stdin, control, hb int, key string) ConnectionInfo {
	return ConnectionInfo{
		Transport: "inproc", IP: "kerneltest", SignatureScheme: "hmac-sha256", Key: key,
		ShellPort: shell, IOPubPort: iopub, StdinPort: stdin, ControlPort: control, HBPort: hb,
	}
}

func (fk *fakeKernel) publish(parent Header, msgType string, content any) {
	msg := &Message{
		Header:       newHeader("fake-session", msgType, parent),
		ParentHeader: parent,
		Content:      mustJSON(content),
	}
	body, err := fk.signer.encode(msg)
	if err != nil {
		return
	}
	_ = fk.iopub.SendMulti(zmq4.NewMsgFrom(buildFrames(nil, body)...))
}

func (fk *fakeKernel) reply(identities [][]byte, parent Header, msgType string, content any) {
	msg := &Message{
		Header:       newHeader("fake-session", msgType, parent),
		ParentHeader: parent,
		Content:      mustJSON(content),
	}
	body, err := fk.signer.encode(msg)
	if err != nil {
		return
	}
	frames := buildFrames(identities, body)
	_ = fk.shell.SendMulti(zmq4.NewMsgFrom(frames...))
}

// serveOne handles a single shell request end to end: busy, the
// request-specific reply and iopub side effects, then idle.
func (fk *fakeKernel) serveOne(t *testing.T) {
	t.Helper()
	raw, err := fk.shell.Recv()
	require.NoError(t, err)
	identities, body, ok := splitFrames(raw.Frames)
	require.True(t, ok)
	msg, err := fk.signer.decode(identities, body)
	require.NoError(t, err)

	fk.publish(msg.Header, "status", statusContent{ExecutionState: "busy"})

	switch msg.Header.MsgType {
	case "kernel_info_request":
		fk.reply(identities, msg.Header, "kernel_info_reply", KernelInfoReply{Status: "ok", ProtocolVersion: ProtocolVersion})

	case "execute_request":
		var req executeRequest
		_ = unmarshalContent(msg, &req)
		n := int(atomic.AddInt32(&fk.execCount, 1))
		fk.publish(msg.Header, "execute_input", executeInputContent{Code: req.Code, ExecutionCount: n})
		fk.publish(msg.Header, "stream", streamContent{Name: "stdout", Text: "hello\n"})
		fk.reply(identities, msg.Header, "execute_reply", ExecuteReply{Status: "ok", ExecutionCount: n})
	}

	fk.publish(msg.Header, "status", statusContent{ExecutionState: "idle"})
}

func setupSession(t *testing.T) (*Session, *fakeKernel, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	shellPort, iopubPort, stdinPort, controlPort, hbPort := 1, 2, 3, 4, 5
	info := inprocConnectionInfo(shellPort, iopubPort, stdinPort, controlPort, hbPort, "test-key")
	fk := newFakeKernel(t, ctx, info)

	go fk.serveOne(t) // answers the Attach() kernel_info_request probe

	s := New(nil, nil)
	require.NoError(t, s.Attach(info))

	cleanup := func() {
		cancel()
	}
	return s, fk, cleanup
}

func TestAttachTransitionsToIdleAfterKernelInfoProbe(t *testing.T) {
	s, _, cleanup := setupSession(t)
	defer cleanup()
	require.Equal(t, StateIdle, s.State())
}

func TestExecuteDeliversOutputsAndExecutionCountThenDone(t *testing.T) {
	s, fk, cleanup := setupSession(t)
	defer cleanup()

	outputs := make(chan notebook.Output, 4)
	execCounts := make(chan int, 4)
	done := make(chan *ExecuteReply, 1)

	go fk.serveOne(t)

	_, err := s.Execute("print('hi')", true, ExecuteCallbacks{
		Output:         func(o notebook.Output) { outputs <- o },
		ExecutionCount: func(n int) { execCounts <- n },
		Done:           func(reply *ExecuteReply, err error) { require.NoError(t, err); done <- reply },
	})
	require.NoError(t, err)

	select {
	case reply := <-done:
		require.Equal(t, "ok", reply.Status)
		require.Equal(t, 1, reply.ExecutionCount)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for execute_reply")
	}

	select {
	case n := <-execCounts:
		require.Equal(t, 1, n)
	default:
		t.Fatal("expected an execution count update")
	}

	select {
	case o := <-outputs:
		require.Equal(t, notebook.OutputStream, o.Kind)
		require.Equal(t, "hello\n", o.Text)
	default:
		t.Fatal("expected a stream output")
	}
}

func TestFallbackListDedupes(t *testing.T) {
	require.Equal(t, []string{"python3", "bash"}, FallbackList("python3", []string{"python3", "bash"}))
}

func TestTokenBeforeExtractsIdentifierPrefix(t *testing.T) {
	require.Equal(t, "pri", tokenBefore("pri", 3))
	require.Equal(t, "foo_bar", tokenBefore("x.foo_bar", 9))
	require.Equal(t, "", tokenBefore("x.", 2))
}

func TestCompletionsFromReplyPrefersTypedMatches(t *testing.T) {
	var r CompleteReply
	r.Matches = []string{"print"}
	r.CursorStart, r.CursorEnd = 0, 3
	r.Metadata.TypedMatches = append(r.Metadata.TypedMatches, struct {
		Text  string `json:"text"`
		Type  string `json:"type"`
		Start int    `json:"start"`
		End   int    `json:"end"`
	}{Text: "printf", Type: "function", Start: 0, End: 3})

	completions := completionsFromReply("pri", 3, &r)
	require.Len(t, completions, 1)
	require.Equal(t, "printf", completions[0].Text)
	require.Equal(t, "function", completions[0].Type)
}

func TestHistoryEntriesParsesRows(t *testing.T) {
	r := HistoryReply{History: [][3]any{{float64(1), float64(2), "x = 1"}}}
	entries := historyEntries(r)
	require.Equal(t, []HistoryEntry{{Session: 1, Line: 2, Text: "x = 1"}}, entries)
}

func TestHijackOutputSwapsAndRestoresCallbacks(t *testing.T) {
	s := New(nil, nil)

	var ownerOutputs, hijackedOutputs int
	s.pending["msg-1"] = &pendingRequest{bundle: CallbackBundle{
		Output: func(notebook.Output) { ownerOutputs++ },
	}}

	restore := s.HijackOutput("msg-1",
		func(data, metadata map[string]any) { hijackedOutputs++ },
		func(wait bool) {},
	)

	s.mu.Lock()
	p := s.pending["msg-1"]
	s.mu.Unlock()
	p.bundle.Output(notebook.Output{Kind: notebook.OutputDisplayData})
	require.Equal(t, 0, ownerOutputs)
	require.Equal(t, 1, hijackedOutputs)

	restore()
	s.mu.Lock()
	p = s.pending["msg-1"]
	s.mu.Unlock()
	p.bundle.Output(notebook.Output{Kind: notebook.OutputDisplayData})
	require.Equal(t, 1, ownerOutputs)
	require.Equal(t, 1, hijackedOutputs)
}
