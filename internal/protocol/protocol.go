package protocol

import (
	"encoding/json"
	"fmt"
)

// Message types exchanged over the translation WebSocket
const (
	// Outbound (client -> server)
	TypeAudioChunk  = "audio_chunk"
	TypeSessionInit = "session_init"

	// Inbound (server -> client)
	TypeConnected         = "connected"
	TypeAck               = "ack"
	TypePartialTranscript = "partial_transcript"
	TypeFinalTranscript   = "final_transcript"
	TypeError             = "error"

	// Bidirectional
	TypeKeepalive = "keepalive"
)

// Server error codes carried in error messages
const (
	ErrCodeInvalidMessageFormat = "INVALID_MESSAGE_FORMAT"
	ErrCodeJSONParse            = "JSON_PARSE_ERROR"
	ErrCodeProcessing           = "PROCESSING_ERROR"
	ErrCodeTranslation          = "TRANSLATION_ERROR"
	ErrCodeUnsupportedLanguage  = "UNSUPPORTED_LANGUAGE"
	ErrCodeRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
	ErrCodeConnection           = "CONNECTION_ERROR"
	ErrCodeUnexpected           = "UNEXPECTED_ERROR"
)

// LanguagePair identifies the source and target languages for a session
type LanguagePair struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// OutboundMessage is a client-to-server message. AudioChunk carries
// PCM16 mono audio; encoding/json marshals []byte as base64.
type OutboundMessage struct {
	SessionID        string        `json:"session_id"`
	MessageType      string        `json:"message_type"`
	SequenceID       uint64        `json:"sequence_id,omitempty"`
	LanguagePair     *LanguagePair `json:"language_pair,omitempty"`
	AudioChunk       []byte        `json:"audio_chunk,omitempty"`
	Timestamp        int64         `json:"timestamp"`
	IsRetransmission bool          `json:"is_retransmission,omitempty"`

	// Session establishment: last sequence the client saw acknowledged,
	// 0 for a fresh session.
	LastAckedSequence uint64 `json:"last_acked_sequence,omitempty"`
}

// InboundMessage is a server-to-client message. Which fields are populated
// depends on MessageType.
type InboundMessage struct {
	SessionID   string `json:"session_id"`
	MessageType string `json:"message_type"`

	// Translated audio results
	SequenceID uint64  `json:"sequence_id,omitempty"`
	AudioChunk []byte  `json:"audio_chunk,omitempty"`
	Transcript string  `json:"transcript,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`

	// Acknowledgments
	AckSequenceID     uint64 `json:"ack_sequence_id,omitempty"`
	LastAckedSequence uint64 `json:"last_acked_sequence,omitempty"`

	// Session establishment response
	LastProcessedSequence uint64 `json:"last_processed_sequence,omitempty"`

	// Errors
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	RetryAfterMS int64  `json:"retry_after,omitempty"`

	Timestamp int64 `json:"timestamp,omitempty"`
}

// ParseError reports malformed or unclassifiable inbound data. It is a
// normal, non-fatal outcome: the caller logs it and keeps the connection.
type ParseError struct {
	Code   string
	Detail string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// validInboundTypes lists every message type the client accepts from the server.
var validInboundTypes = map[string]bool{
	TypeConnected:         true,
	TypeAck:               true,
	TypePartialTranscript: true,
	TypeFinalTranscript:   true,
	TypeError:             true,
	TypeKeepalive:         true,
}

// ParseInbound decodes and classifies a server message. A nil error means
// the message type is known and the required fields are present.
func ParseInbound(data []byte) (*InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, &ParseError{Code: ErrCodeJSONParse, Detail: err.Error()}
	}

	if msg.MessageType == "" {
		return nil, &ParseError{Code: ErrCodeInvalidMessageFormat, Detail: "missing message_type"}
	}

	if !validInboundTypes[msg.MessageType] {
		return nil, &ParseError{
			Code:   ErrCodeInvalidMessageFormat,
			Detail: fmt.Sprintf("unknown message type %q", msg.MessageType),
		}
	}

	switch msg.MessageType {
	case TypePartialTranscript, TypeFinalTranscript:
		if len(msg.AudioChunk) == 0 && msg.Transcript == "" {
			return nil, &ParseError{
				Code:   ErrCodeInvalidMessageFormat,
				Detail: fmt.Sprintf("%s message carries neither audio nor text", msg.MessageType),
			}
		}
	case TypeError:
		if msg.ErrorCode == "" {
			return nil, &ParseError{Code: ErrCodeInvalidMessageFormat, Detail: "error message missing error_code"}
		}
	}

	return &msg, nil
}

// IsResult reports whether the message carries translated audio for playout.
func (m *InboundMessage) IsResult() bool {
	return m.MessageType == TypePartialTranscript || m.MessageType == TypeFinalTranscript
}

// IsPartial reports whether a result message is a partial (non-final) one.
func (m *InboundMessage) IsPartial() bool {
	return m.MessageType == TypePartialTranscript
}

// AckedThrough returns the cumulative acknowledged sequence from an ack
// message. The server may send either a cumulative last_acked_sequence or a
// single ack_sequence_id; the cumulative form wins when both are present.
func (m *InboundMessage) AckedThrough() uint64 {
	if m.LastAckedSequence > 0 {
		return m.LastAckedSequence
	}
	return m.AckSequenceID
}

// EncodeChunk builds an outbound audio_chunk message.
func EncodeChunk(sessionID string, seq uint64, pair LanguagePair, pcm []byte, timestampMS int64, retransmit bool) ([]byte, error) {
	msg := OutboundMessage{
		SessionID:        sessionID,
		MessageType:      TypeAudioChunk,
		SequenceID:       seq,
		LanguagePair:     &pair,
		AudioChunk:       pcm,
		Timestamp:        timestampMS,
		IsRetransmission: retransmit,
	}
	return marshal(&msg)
}

// EncodeSessionInit builds the session establishment message carrying the
// last sequence the client knows was acknowledged.
func EncodeSessionInit(sessionID string, pair LanguagePair, lastAcked uint64, timestampMS int64) ([]byte, error) {
	msg := OutboundMessage{
		SessionID:         sessionID,
		MessageType:       TypeSessionInit,
		LanguagePair:      &pair,
		LastAckedSequence: lastAcked,
		Timestamp:         timestampMS,
	}
	return marshal(&msg)
}

// EncodeKeepalive builds a client keepalive ping.
func EncodeKeepalive(sessionID string, timestampMS int64) ([]byte, error) {
	msg := OutboundMessage{
		SessionID:   sessionID,
		MessageType: TypeKeepalive,
		Timestamp:   timestampMS,
	}
	return marshal(&msg)
}

func marshal(msg *OutboundMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s message: %w", msg.MessageType, err)
	}
	return data, nil
}

// String returns a human-readable summary of an inbound message.
func (m *InboundMessage) String() string {
	switch m.MessageType {
	case TypeAck:
		return fmt.Sprintf("InboundMessage{Type:ack, AckedThrough:%d}", m.AckedThrough())
	case TypePartialTranscript, TypeFinalTranscript:
		return fmt.Sprintf("InboundMessage{Type:%s, Seq:%d, AudioLen:%d}",
			m.MessageType, m.SequenceID, len(m.AudioChunk))
	case TypeError:
		return fmt.Sprintf("InboundMessage{Type:error, Code:%s, Message:%q}", m.ErrorCode, m.ErrorMessage)
	default:
		return fmt.Sprintf("InboundMessage{Type:%s}", m.MessageType)
	}
}
