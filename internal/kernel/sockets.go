package kernel

import (
	"context"
	"fmt"

	"github.com/go-zeromq/zmq4"
	"github.com/pkg/errors"
)

// channels holds the five ZMQ sockets a kernel session dials, plus the
// signer shared across all of them (one signing key per connection).
type channels struct {
	shell   zmq4.Socket
	control zmq4.Socket
	stdin   zmq4.Socket
	iopub   zmq4.Socket
	hb      zmq4.Socket
	signer  *signer
}

// dialChannels connects DEALER sockets to shell/control/stdin, a SUB
// socket to iopub (subscribed to everything), and a REQ socket for
// heartbeat, mirroring the port layout of a Jupyter connection file.
// The client dials rather than binds: the kernel process owns the
// binds, per the standard Jupyter wire topology (inverted from the
// gonb/go-jupyter references, which implement the kernel side and so
// bind).
func dialChannels(ctx context.Context, info ConnectionInfo) (*channels, error) {
	addr := func(port int) string {
		return fmt.Sprintf("%s://%s:%d", info.Transport, info.IP, port)
	}

	ch := &channels{signer: newSigner([]byte(info.Key))}

	ch.shell = zmq4.NewDealer(ctx)
	if err := ch.shell.Dial(addr(info.ShellPort)); err != nil {
		return nil, errors.WithMessage(err, "dial shell socket")
	}

	ch.control = zmq4.NewDealer(ctx)
	if err := ch.control.Dial(addr(info.ControlPort)); err != nil {
		return nil, errors.WithMessage(err, "dial control socket")
	}

	ch.stdin = zmq4.NewDealer(ctx)
	if err := ch.stdin.Dial(addr(info.StdinPort)); err != nil {
		return nil, errors.WithMessage(err, "dial stdin socket")
	}

	ch.iopub = zmq4.NewSub(ctx)
	if err := ch.iopub.Dial(addr(info.IOPubPort)); err != nil {
		return nil, errors.WithMessage(err, "dial iopub socket")
	}
	if err := ch.iopub.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		return nil, errors.WithMessage(err, "subscribe iopub socket")
	}

	ch.hb = zmq4.NewReq(ctx)
	if err := ch.hb.Dial(addr(info.HBPort)); err != nil {
		return nil, errors.WithMessage(err, "dial heartbeat socket")
	}

	return ch, nil
}

func (c *channels) Close() {
	c.shell.Close()
	c.control.Close()
	c.stdin.Close()
	c.iopub.Close()
	c.hb.Close()
}

// send signs and writes msg on socket as "<IDS|MSG>" followed by the
// signed body, with no routing identities (used for DEALER sockets,
// which need no identity frame when talking to a ROUTER: the broker
// tracks the connection itself).
func (c *channels) send(socket zmq4.Socket, msg *Message) error {
	body, err := c.signer.encode(msg)
	if err != nil {
		return err
	}
	return socket.SendMulti(zmq4.NewMsgFrom(buildFrames(nil, body)...))
}

func (c *channels) recv(socket zmq4.Socket) (*Message, error) {
	raw, err := socket.Recv()
	if err != nil {
		return nil, err
	}
	identities, body, ok := splitFrames(raw.Frames)
	if !ok {
		return nil, errors.New("kernel: message missing <IDS|MSG> delimiter")
	}
	return c.signer.decode(identities, body)
}
