package wire

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Chatter/internal/domain"
)

// FrameType is the outer multiplexing discriminator. It is serialized as an
// ordinal integer; both values and order are fixed by the deployed peers.
type FrameType int

const (
	FrameText FrameType = iota
	FrameCall
	FramePresence
)

// Frame is the wire envelope. Content is an independently JSON-encoded
// payload carried as a string (double-encoded), which existing peers expect
// bit-for-bit.
type Frame struct {
	Type    FrameType `json:"type"`
	Content string    `json:"content"`
}

// CallKind discriminates call-signaling messages. Ordinal-coded on the wire.
type CallKind int

const (
	Calling CallKind = iota
	AcceptCall
	Busy
	OfferSDP
	AnswerSDP
	IceSDP
	End
)

func (k CallKind) String() string {
	switch k {
	case Calling:
		return "Calling"
	case AcceptCall:
		return "AcceptCall"
	case Busy:
		return "Busy"
	case OfferSDP:
		return "OfferSDP"
	case AnswerSDP:
		return "AnswerSDP"
	case IceSDP:
		return "IceSDP"
	case End:
		return "End"
	default:
		return fmt.Sprintf("CallKind(%d)", int(k))
	}
}

// hasSDP reports whether the kind carries a mandatory SDP/ICE payload.
func (k CallKind) hasSDP() bool {
	return k == OfferSDP || k == AnswerSDP || k == IceSDP
}

// CallMessage is the payload of a FrameCall envelope. The server only reads
// ConversationID and UserID for routing; SDP stays opaque end to end.
type CallMessage struct {
	UserID         domain.UserID         `json:"userId"`
	ConversationID domain.ConversationID `json:"conversationId"`
	Kind           CallKind              `json:"messageType"`
	SDP            string                `json:"sdp"`
}

// DecodeError reports a malformed envelope or a content body that does not
// match the schema implied by the envelope type. It never tears down the
// connection; the frame is dropped and logged by the caller.
type DecodeError struct {
	What string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return "wire: " + e.What
	}
	return fmt.Sprintf("wire: %s: %v", e.What, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeFrame serializes the envelope. Frame holds only an int and a string,
// so marshalling cannot fail.
func EncodeFrame(f Frame) []byte {
	b, _ := json.Marshal(f)
	return b
}

// NewTextFrame wraps a chat message into a FrameText envelope.
func NewTextFrame(m domain.Message) Frame {
	content, _ := json.Marshal(m)
	return Frame{Type: FrameText, Content: string(content)}
}

// NewCallFrame wraps a call-signaling message into a FrameCall envelope.
func NewCallFrame(cm CallMessage) Frame {
	content, _ := json.Marshal(cm)
	return Frame{Type: FrameCall, Content: string(content)}
}

// DecodeFrame parses and validates an envelope. The content is checked
// against the schema implied by the type: unknown types and mismatched
// content fail with *DecodeError. Presence frames carry no schema and are
// accepted as-is so callers can acknowledge them as a no-op.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, &DecodeError{What: "malformed envelope", Err: err}
	}
	switch f.Type {
	case FrameText:
		if _, err := DecodeTextMessage(f.Content); err != nil {
			return Frame{}, err
		}
	case FrameCall:
		if _, err := DecodeCallMessage(f.Content); err != nil {
			return Frame{}, err
		}
	case FramePresence:
		// Reserved type; accepted without a content schema.
	default:
		return Frame{}, &DecodeError{What: fmt.Sprintf("unknown frame type %d", f.Type)}
	}
	return f, nil
}

// DecodeTextMessage parses the content of a FrameText envelope.
func DecodeTextMessage(content string) (domain.Message, error) {
	var m domain.Message
	if err := json.Unmarshal([]byte(content), &m); err != nil {
		return domain.Message{}, &DecodeError{What: "text message content", Err: err}
	}
	return m, nil
}

// DecodeCallMessage parses the content of a FrameCall envelope and enforces
// the SDP presence rule per kind.
func DecodeCallMessage(content string) (CallMessage, error) {
	var cm CallMessage
	if err := json.Unmarshal([]byte(content), &cm); err != nil {
		return CallMessage{}, &DecodeError{What: "call message content", Err: err}
	}
	if cm.Kind < Calling || cm.Kind > End {
		return CallMessage{}, &DecodeError{What: fmt.Sprintf("unknown call kind %d", cm.Kind)}
	}
	if cm.Kind.hasSDP() && cm.SDP == "" {
		return CallMessage{}, &DecodeError{What: cm.Kind.String() + " without sdp"}
	}
	return cm, nil
}
