// Package kernel implements the Kernel Session (spec §4.4): a reactor
// thread owning the ZeroMQ channels to a single Jupyter kernel, message
// signing/framing, and the msg_id → callback multiplexing that lets the
// UI thread issue requests and receive replies asynchronously.
package kernel

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
)

// ProtocolVersion is the Jupyter messaging protocol version this package
// speaks.
const ProtocolVersion = "5.3"

const delimiter = "<IDS|MSG>"

// Header is the per-message header every Jupyter wire message carries.
type Header struct {
	MsgID    string `json:"msg_id"`
	Username string `json:"username"`
	Session  string `json:"session"`
	MsgType  string `json:"msg_type"`
	Version  string `json:"version"`
	Date     string `json:"date"`
}

// Message is a fully decoded Jupyter message: header, parent header (the
// request this is a reply/publication for), metadata, and typed content.
type Message struct {
	Header       Header
	ParentHeader Header
	Metadata     map[string]any
	Content      json.RawMessage

	// Identities are the ROUTER/DEALER routing-id frames that preceded
	// the delimiter; a reply must be sent back with the same identities
	// prefixed so the broker can route it to the right peer.
	Identities [][]byte
}

// newHeader builds a fresh header for a new outgoing message, either a
// request (parent is zero Header{}) or a reply/publication (parent is
// the message being replied to).
func newHeader(session, msgType string, parent Header) Header {
	return Header{
		MsgID:    newUUID(),
		Username: "euporie",
		Session:  session,
		MsgType:  msgType,
		Version:  ProtocolVersion,
		Date:     time.Now().UTC().Format(time.RFC3339),
	}
}

func newUUID() string {
	u, err := uuid.NewV4()
	if err != nil {
		return "msg-fallback"
	}
	return u.String()
}

// signer computes the HMAC-SHA256 signatures the Jupyter wire protocol
// requires over the four-frame (header, parent_header, metadata,
// content) body when a non-empty signing key is configured.
type signer struct {
	key []byte
}

func newSigner(key []byte) *signer { return &signer{key: key} }

func (s *signer) sign(parts ...[]byte) string {
	if len(s.key) == 0 {
		return ""
	}
	mac := hmac.New(sha256.New, s.key)
	for _, p := range parts {
		mac.Write(p)
	}
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *signer) verify(sig string, parts ...[]byte) bool {
	if len(s.key) == 0 {
		return true
	}
	expected := s.sign(parts...)
	return hmac.Equal([]byte(expected), []byte(sig))
}

// encode serializes msg into the 5-part Jupyter wire body (signature,
// header, parent_header, metadata, content), per the delimiter-framed
// protocol every gonb/go-jupyter reference implements the same way.
func (s *signer) encode(msg *Message) ([][]byte, error) {
	header, err := json.Marshal(msg.Header)
	if err != nil {
		return nil, errors.WithMessage(err, "marshal header")
	}
	parent, err := json.Marshal(msg.ParentHeader)
	if err != nil {
		return nil, errors.WithMessage(err, "marshal parent_header")
	}
	meta := msg.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return nil, errors.WithMessage(err, "marshal metadata")
	}
	content := msg.Content
	if content == nil {
		content = []byte("{}")
	}
	sig := s.sign(header, parent, metaBytes, content)
	return [][]byte{[]byte(sig), header, parent, metaBytes, content}, nil
}

// decode parses the 5-part wire body back into a Message, verifying the
// signature first so a tampered or misconfigured-key frame is rejected
// before any JSON is trusted.
func (s *signer) decode(identities [][]byte, body [][]byte) (*Message, error) {
	if len(body) < 5 {
		return nil, errors.Errorf("kernel: short message body: %d parts", len(body))
	}
	sig, header, parent, meta, content := body[0], body[1], body[2], body[3], body[4]
	if !s.verify(string(sig), header, parent, meta, content) {
		return nil, errInvalidSignature
	}
	msg := &Message{Identities: identities, Content: content}
	if err := json.Unmarshal(header, &msg.Header); err != nil {
		return nil, errors.WithMessage(err, "unmarshal header")
	}
	if len(parent) > 0 && string(parent) != "{}" {
		if err := json.Unmarshal(parent, &msg.ParentHeader); err != nil {
			return nil, errors.WithMessage(err, "unmarshal parent_header")
		}
	}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &msg.Metadata)
	}
	return msg, nil
}

var errInvalidSignature = errors.New("kernel: message had an invalid HMAC signature")

// splitFrames separates the ROUTER/DEALER identity frames from the
// signed body, which begins right after the literal "<IDS|MSG>" frame.
func splitFrames(frames [][]byte) (identities [][]byte, body [][]byte, ok bool) {
	for i, f := range frames {
		if string(f) == delimiter {
			return frames[:i], frames[i+1:], true
		}
	}
	return nil, nil, false
}

// buildFrames re-assembles a full wire message: identities, delimiter,
// then the signed body.
func buildFrames(identities [][]byte, body [][]byte) [][]byte {
	frames := make([][]byte, 0, len(identities)+1+len(body))
	frames = append(frames, identities...)
	frames = append(frames, []byte(delimiter))
	frames = append(frames, body...)
	return frames
}

// unmarshalContent decodes msg.Content into v, the typed struct for the
// message's msg_type (e.g. ExecuteReply, statusContent).
func unmarshalContent(msg *Message, v any) error {
	return json.Unmarshal(msg.Content, v)
}
