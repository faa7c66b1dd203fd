package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/P-yoganjaneyulu/float/internal/protocol"
)

// Stats are the cumulative per-session counters reported to the host.
type Stats struct {
	ChunksSent        uint64 `json:"chunks_sent"`
	ChunksAcked       uint64 `json:"chunks_acked"`
	Retransmits       uint64 `json:"retransmits"`
	ResultsReceived   uint64 `json:"results_received"`
	PartialResults    uint64 `json:"partial_results"`
	ServerErrors      uint64 `json:"server_errors"`
	ParseErrors       uint64 `json:"parse_errors"`
	Reconnects        uint64 `json:"reconnects"`
	CongestionEvents  uint64 `json:"congestion_events"`
}

// Info is the read-only session view for the host/UI.
type Info struct {
	ID           string                `json:"session_id"`
	LanguagePair protocol.LanguagePair `json:"language_pair"`
	CreatedAt    time.Time             `json:"created_at"`
	Uptime       string                `json:"uptime"`
	Stats        Stats                 `json:"stats"`
}

// Session identifies one streaming conversation with the server. The id is
// minted client-side and echoed on every message; stats accumulate across
// reconnects within the same session.
type Session struct {
	id           string
	languagePair protocol.LanguagePair
	createdAt    time.Time

	mu    sync.Mutex
	stats Stats
}

// New creates a session for the given language pair.
func New(pair protocol.LanguagePair) (*Session, error) {
	if pair.Source == "" || pair.Target == "" {
		return nil, fmt.Errorf("incomplete language pair: %q -> %q", pair.Source, pair.Target)
	}
	return &Session{
		id:           uuid.New().String(),
		languagePair: pair,
		createdAt:    time.Now(),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// LanguagePair returns the translation direction.
func (s *Session) LanguagePair() protocol.LanguagePair {
	return s.languagePair
}

// CreatedAt returns the session start time.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// RecordSent counts an outbound chunk, retransmissions separately.
func (s *Session) RecordSent(retransmission bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.ChunksSent++
	if retransmission {
		s.stats.Retransmits++
	}
}

// RecordAcked counts acknowledged chunks.
func (s *Session) RecordAcked(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.ChunksAcked += n
}

// RecordResult counts an inbound translation result.
func (s *Session) RecordResult(partial bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.ResultsReceived++
	if partial {
		s.stats.PartialResults++
	}
}

// RecordServerError counts a server error message.
func (s *Session) RecordServerError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.ServerErrors++
}

// RecordParseError counts a malformed inbound message.
func (s *Session) RecordParseError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.ParseErrors++
}

// RecordReconnect counts a successful reconnection.
func (s *Session) RecordReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Reconnects++
}

// RecordCongestion counts a send-queue congestion event.
func (s *Session) RecordCongestion() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.CongestionEvents++
}

// GetInfo returns an immutable view of the session.
func (s *Session) GetInfo() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:           s.id,
		LanguagePair: s.languagePair,
		CreatedAt:    s.createdAt,
		Uptime:       time.Since(s.createdAt).Round(time.Second).String(),
		Stats:        s.stats,
	}
}
