package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEncodeChunk(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	pair := LanguagePair{Source: "en", Target: "es"}

	data, err := EncodeChunk("session-1", 42, pair, pcm, 1700000000000, true)
	if err != nil {
		t.Fatalf("EncodeChunk failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Encoded chunk is not valid JSON: %v", err)
	}

	if decoded["session_id"] != "session-1" {
		t.Errorf("Expected session_id session-1, got %v", decoded["session_id"])
	}
	if decoded["message_type"] != TypeAudioChunk {
		t.Errorf("Expected message_type %s, got %v", TypeAudioChunk, decoded["message_type"])
	}
	if decoded["sequence_id"] != float64(42) {
		t.Errorf("Expected sequence_id 42, got %v", decoded["sequence_id"])
	}
	if decoded["is_retransmission"] != true {
		t.Errorf("Expected is_retransmission true, got %v", decoded["is_retransmission"])
	}

	// encoding/json base64-encodes []byte fields
	if decoded["audio_chunk"] != "AQIDBA==" {
		t.Errorf("Expected base64 audio AQIDBA==, got %v", decoded["audio_chunk"])
	}

	lp, ok := decoded["language_pair"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected language_pair object")
	}
	if lp["source"] != "en" || lp["target"] != "es" {
		t.Errorf("Expected language pair en/es, got %v/%v", lp["source"], lp["target"])
	}
}

func TestEncodeSessionInit(t *testing.T) {
	data, err := EncodeSessionInit("session-2", LanguagePair{Source: "de", Target: "fr"}, 17, 1700000000000)
	if err != nil {
		t.Fatalf("EncodeSessionInit failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Encoded session_init is not valid JSON: %v", err)
	}

	if decoded["message_type"] != TypeSessionInit {
		t.Errorf("Expected message_type %s, got %v", TypeSessionInit, decoded["message_type"])
	}
	if decoded["last_acked_sequence"] != float64(17) {
		t.Errorf("Expected last_acked_sequence 17, got %v", decoded["last_acked_sequence"])
	}
}

func TestParseInboundAck(t *testing.T) {
	raw := `{"session_id":"s1","message_type":"ack","last_acked_sequence":7,"timestamp":1700000000000}`

	msg, err := ParseInbound([]byte(raw))
	if err != nil {
		t.Fatalf("ParseInbound failed: %v", err)
	}

	if msg.MessageType != TypeAck {
		t.Errorf("Expected type ack, got %s", msg.MessageType)
	}
	if msg.AckedThrough() != 7 {
		t.Errorf("Expected AckedThrough 7, got %d", msg.AckedThrough())
	}
}

func TestParseInboundSingleAck(t *testing.T) {
	raw := `{"session_id":"s1","message_type":"ack","ack_sequence_id":3}`

	msg, err := ParseInbound([]byte(raw))
	if err != nil {
		t.Fatalf("ParseInbound failed: %v", err)
	}

	if msg.AckedThrough() != 3 {
		t.Errorf("Expected AckedThrough 3 from ack_sequence_id, got %d", msg.AckedThrough())
	}
}

func TestParseInboundResult(t *testing.T) {
	raw := `{"session_id":"s1","message_type":"final_transcript","sequence_id":5,"audio_chunk":"AQIDBA==","confidence":0.91}`

	msg, err := ParseInbound([]byte(raw))
	if err != nil {
		t.Fatalf("ParseInbound failed: %v", err)
	}

	if !msg.IsResult() {
		t.Error("Expected final_transcript to classify as result")
	}
	if msg.IsPartial() {
		t.Error("Expected final_transcript not to be partial")
	}
	if msg.SequenceID != 5 {
		t.Errorf("Expected sequence 5, got %d", msg.SequenceID)
	}
	if len(msg.AudioChunk) != 4 {
		t.Errorf("Expected 4 decoded audio bytes, got %d", len(msg.AudioChunk))
	}
}

func TestParseInboundErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		code string
	}{
		{
			name: "invalid json",
			raw:  `{not json`,
			code: ErrCodeJSONParse,
		},
		{
			name: "missing message type",
			raw:  `{"session_id":"s1"}`,
			code: ErrCodeInvalidMessageFormat,
		},
		{
			name: "unknown message type",
			raw:  `{"session_id":"s1","message_type":"bogus"}`,
			code: ErrCodeInvalidMessageFormat,
		},
		{
			name: "result without payload",
			raw:  `{"session_id":"s1","message_type":"partial_transcript","sequence_id":1}`,
			code: ErrCodeInvalidMessageFormat,
		},
		{
			name: "error without code",
			raw:  `{"session_id":"s1","message_type":"error","error_message":"boom"}`,
			code: ErrCodeInvalidMessageFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseInbound([]byte(tt.raw))
			if err == nil {
				t.Fatal("Expected parse error, got nil")
			}

			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("Expected *ParseError, got %T", err)
			}
			if parseErr.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, parseErr.Code)
			}
		})
	}
}

func TestParseInboundKeepaliveAndConnected(t *testing.T) {
	for _, raw := range []string{
		`{"session_id":"s1","message_type":"keepalive","timestamp":1700000000000}`,
		`{"session_id":"s1","message_type":"connected","last_processed_sequence":12}`,
	} {
		msg, err := ParseInbound([]byte(raw))
		if err != nil {
			t.Errorf("ParseInbound(%s) failed: %v", raw, err)
			continue
		}
		if msg.IsResult() {
			t.Errorf("Expected %s not to classify as result", msg.MessageType)
		}
	}
}

func TestInboundString(t *testing.T) {
	msg := &InboundMessage{MessageType: TypeError, ErrorCode: ErrCodeTranslation, ErrorMessage: "model busy"}
	s := msg.String()
	if s == "" {
		t.Error("Expected non-empty String output")
	}
}
