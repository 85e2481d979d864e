package wire

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/dkeye/Chatter/internal/domain"
)

func TestFrameRoundTrip(t *testing.T) {
	frames := []Frame{
		NewTextFrame(domain.Message{
			ID:             "9f0c2b7e-1d4a-4a5e-8f3b-0c9a1e2d3f40",
			Text:           "hello",
			SentTime:       1700000000000,
			SenderID:       1,
			ConversationID: 42,
		}),
		NewCallFrame(CallMessage{UserID: 1, ConversationID: 42, Kind: Calling}),
		NewCallFrame(CallMessage{UserID: 2, ConversationID: 42, Kind: OfferSDP, SDP: "v=0..."}),
		NewCallFrame(CallMessage{UserID: 2, ConversationID: 42, Kind: IceSDP, SDP: "candidate:0$0$"}),
		{Type: FramePresence, Content: ""},
	}
	for _, f := range frames {
		got, err := DecodeFrame(EncodeFrame(f))
		if err != nil {
			t.Fatalf("decode(encode(%v)): %v", f.Type, err)
		}
		if got != f {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, f)
		}
	}
}

// The envelope layout is a compatibility contract with already-deployed
// peers: ordinal-coded enums and a double-encoded content string.
func TestFrameWireShape(t *testing.T) {
	f := NewCallFrame(CallMessage{UserID: 1, ConversationID: 42, Kind: AnswerSDP, SDP: "v=0"})
	raw := EncodeFrame(f)

	var envelope map[string]any
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if got := envelope["type"]; got != float64(1) {
		t.Fatalf("envelope type = %v, want 1", got)
	}
	content, ok := envelope["content"].(string)
	if !ok {
		t.Fatalf("content must be a JSON string, got %T", envelope["content"])
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		t.Fatalf("content is not nested JSON: %v", err)
	}
	if got := payload["messageType"]; got != float64(4) {
		t.Fatalf("messageType = %v, want 4", got)
	}
	for _, key := range []string{"userId", "conversationId", "sdp"} {
		if _, ok := payload[key]; !ok {
			t.Fatalf("payload missing %q", key)
		}
	}
}

func TestDecodeFramePeerEncoding(t *testing.T) {
	// Literal frame as the Kotlin client produces it.
	raw := `{"type":1,"content":"{\"userId\":1,\"conversationId\":42,\"messageType\":0,\"sdp\":\"\"}"}`
	f, err := DecodeFrame([]byte(raw))
	if err != nil {
		t.Fatalf("decode peer frame: %v", err)
	}
	cm, err := DecodeCallMessage(f.Content)
	if err != nil {
		t.Fatalf("decode call content: %v", err)
	}
	if cm.UserID != 1 || cm.ConversationID != 42 || cm.Kind != Calling {
		t.Fatalf("unexpected call message: %+v", cm)
	}
}

func TestDecodeFrameRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"garbage", `not json`},
		{"unknown type", `{"type":9,"content":""}`},
		{"text with bad content", `{"type":0,"content":"nope"}`},
		{"call with bad content", `{"type":1,"content":"{"}`},
		{"call with unknown kind", `{"type":1,"content":"{\"userId\":1,\"conversationId\":2,\"messageType\":7,\"sdp\":\"\"}"}`},
		{"offer without sdp", `{"type":1,"content":"{\"userId\":1,\"conversationId\":2,\"messageType\":3,\"sdp\":\"\"}"}`},
	}
	for _, tc := range cases {
		_, err := DecodeFrame([]byte(tc.raw))
		if err == nil {
			t.Fatalf("%s: expected decode error", tc.name)
		}
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("%s: error is %T, want *DecodeError", tc.name, err)
		}
	}
}

func TestDecodeFrameAcceptsPresence(t *testing.T) {
	f, err := DecodeFrame([]byte(`{"type":2,"content":"whatever"}`))
	if err != nil {
		t.Fatalf("presence must decode as a no-op, got %v", err)
	}
	if f.Type != FramePresence {
		t.Fatalf("type = %v, want FramePresence", f.Type)
	}
}
