package session

import (
	"testing"

	"github.com/P-yoganjaneyulu/float/internal/protocol"
)

func TestNewSession(t *testing.T) {
	pair := protocol.LanguagePair{Source: "en", Target: "uk"}
	s, err := New(pair)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if s.ID() == "" {
		t.Error("Expected non-empty session id")
	}
	if s.LanguagePair() != pair {
		t.Errorf("Expected language pair %v, got %v", pair, s.LanguagePair())
	}

	other, err := New(pair)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if other.ID() == s.ID() {
		t.Error("Expected distinct session ids")
	}
}

func TestNewSessionRejectsIncompletePair(t *testing.T) {
	if _, err := New(protocol.LanguagePair{Source: "en"}); err == nil {
		t.Error("Expected error for missing target language")
	}
	if _, err := New(protocol.LanguagePair{Target: "uk"}); err == nil {
		t.Error("Expected error for missing source language")
	}
}

func TestStatsAccumulate(t *testing.T) {
	s, err := New(protocol.LanguagePair{Source: "en", Target: "uk"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	s.RecordSent(false)
	s.RecordSent(true)
	s.RecordAcked(2)
	s.RecordResult(true)
	s.RecordResult(false)
	s.RecordServerError()
	s.RecordParseError()
	s.RecordReconnect()
	s.RecordCongestion()

	info := s.GetInfo()
	if info.Stats.ChunksSent != 2 {
		t.Errorf("Expected 2 chunks sent, got %d", info.Stats.ChunksSent)
	}
	if info.Stats.Retransmits != 1 {
		t.Errorf("Expected 1 retransmit, got %d", info.Stats.Retransmits)
	}
	if info.Stats.ChunksAcked != 2 {
		t.Errorf("Expected 2 chunks acked, got %d", info.Stats.ChunksAcked)
	}
	if info.Stats.ResultsReceived != 2 || info.Stats.PartialResults != 1 {
		t.Errorf("Expected 2 results with 1 partial, got %d/%d",
			info.Stats.ResultsReceived, info.Stats.PartialResults)
	}
	if info.Stats.ServerErrors != 1 || info.Stats.ParseErrors != 1 {
		t.Errorf("Expected 1 server error and 1 parse error, got %d/%d",
			info.Stats.ServerErrors, info.Stats.ParseErrors)
	}
	if info.Stats.Reconnects != 1 || info.Stats.CongestionEvents != 1 {
		t.Errorf("Expected 1 reconnect and 1 congestion event, got %d/%d",
			info.Stats.Reconnects, info.Stats.CongestionEvents)
	}
}
