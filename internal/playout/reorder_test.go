package playout

import (
	"testing"
	"time"

	"github.com/P-yoganjaneyulu/float/internal/audio"
)

func testChunk(seq uint64) *audio.Chunk {
	payload := make([]byte, 640)
	for i := range payload {
		payload[i] = byte(seq + 1)
	}
	return audio.NewChunk(seq, payload, time.Now(), 16000, 1)
}

func pushAll(t *testing.T, w *ReorderWindow, now time.Time, seqs ...uint64) []uint64 {
	t.Helper()
	var emitted []uint64
	for _, s := range seqs {
		ready, _ := w.Push(testChunk(s), now)
		for _, c := range ready {
			emitted = append(emitted, c.SequenceID)
		}
	}
	return emitted
}

func TestInOrderPassThrough(t *testing.T) {
	w := NewReorderWindow(ReorderConfig{})
	now := time.Now()

	emitted := pushAll(t, w, now, 0, 1, 2, 3)

	if len(emitted) != 4 {
		t.Fatalf("Expected 4 emitted chunks, got %d", len(emitted))
	}
	for i, seq := range emitted {
		if seq != uint64(i) {
			t.Errorf("Expected sequence %d at position %d, got %d", i, i, seq)
		}
	}
}

func TestOutOfOrderReassembly(t *testing.T) {
	w := NewReorderWindow(ReorderConfig{})
	now := time.Now()

	// 0 emits, 2 and 3 buffer, 1 releases the rest
	emitted := pushAll(t, w, now, 0, 2, 3, 1)

	want := []uint64{0, 1, 2, 3}
	if len(emitted) != len(want) {
		t.Fatalf("Expected %d emitted chunks, got %d", len(want), len(emitted))
	}
	for i, seq := range want {
		if emitted[i] != seq {
			t.Errorf("Expected sequence %d at position %d, got %d", seq, i, emitted[i])
		}
	}
}

func TestOrderInvariantStrictlyIncreasing(t *testing.T) {
	w := NewReorderWindow(ReorderConfig{WindowSize: 10})
	now := time.Now()

	// Adversarial interleaving with duplicates and stale arrivals
	emitted := pushAll(t, w, now, 0, 2, 2, 1, 0, 4, 3, 1, 5)

	for i := 1; i < len(emitted); i++ {
		if emitted[i] <= emitted[i-1] {
			t.Fatalf("Order invariant violated: %d followed by %d", emitted[i-1], emitted[i])
		}
	}
	if len(emitted) != 6 {
		t.Errorf("Expected 6 unique chunks emitted, got %d", len(emitted))
	}
}

func TestDuplicateAndStaleDrops(t *testing.T) {
	w := NewReorderWindow(ReorderConfig{})
	now := time.Now()

	pushAll(t, w, now, 0, 1)

	_, dropped := w.Push(testChunk(1), now)
	if dropped == nil || dropped.Reason != DropDuplicate {
		t.Errorf("Expected duplicate drop for replayed chunk, got %+v", dropped)
	}

	_, dropped = w.Push(testChunk(0), now)
	if dropped == nil || dropped.Reason != DropDuplicate {
		t.Errorf("Expected stale drop for old chunk, got %+v", dropped)
	}
}

func TestFutureOutOfWindowDrop(t *testing.T) {
	w := NewReorderWindow(ReorderConfig{WindowSize: 10})
	now := time.Now()

	pushAll(t, w, now, 0)

	_, dropped := w.Push(testChunk(12), now)
	if dropped == nil || dropped.Reason != DropOutOfWindow {
		t.Errorf("Expected out-of-window drop for seq 12, got %+v", dropped)
	}

	// Exactly at the window edge is still buffered
	ready, dropped := w.Push(testChunk(11), now)
	if dropped != nil {
		t.Errorf("Expected seq 11 to buffer inside window, got drop %+v", dropped)
	}
	if len(ready) != 0 {
		t.Errorf("Expected seq 11 to wait, got %d emitted", len(ready))
	}
}

func TestGapTimeoutSynthesizesSilence(t *testing.T) {
	w := NewReorderWindow(ReorderConfig{GapTimeout: 300 * time.Millisecond})
	base := time.Now()

	pushAll(t, w, base, 0, 1)

	// Chunk 2 is lost; chunk 3 buffers at t=0
	w.Push(testChunk(3), base)

	// Before the timeout nothing expires
	if got := w.Expire(base.Add(200 * time.Millisecond)); got != nil {
		t.Fatalf("Expected no expiry before timeout, got %d chunks", len(got))
	}

	// After the timeout, silence fills slot 2 and chunk 3 follows
	got := w.Expire(base.Add(301 * time.Millisecond))
	if len(got) != 2 {
		t.Fatalf("Expected silence + buffered chunk, got %d chunks", len(got))
	}
	if got[0].SequenceID != 2 || !got[0].Synthesized {
		t.Errorf("Expected synthesized silence for seq 2, got seq %d synthesized=%v",
			got[0].SequenceID, got[0].Synthesized)
	}
	if got[1].SequenceID != 3 || got[1].Synthesized {
		t.Errorf("Expected real chunk 3 after silence, got seq %d synthesized=%v",
			got[1].SequenceID, got[1].Synthesized)
	}

	// Silence matches the stream's chunk size
	if got[0].NumSamples() != testChunk(3).NumSamples() {
		t.Errorf("Expected silence of %d samples, got %d",
			testChunk(3).NumSamples(), got[0].NumSamples())
	}
}

func TestLateRetransmitAfterGapFillIsStale(t *testing.T) {
	w := NewReorderWindow(ReorderConfig{GapTimeout: 300 * time.Millisecond})
	base := time.Now()

	pushAll(t, w, base, 0, 1)
	w.Push(testChunk(3), base)
	w.Expire(base.Add(301 * time.Millisecond)) // silence for 2, emits 3

	// The retransmitted chunk 2 finally arrives, far too late
	_, dropped := w.Push(testChunk(2), base.Add(2*time.Second))
	if dropped == nil || dropped.Reason != DropDuplicate {
		t.Errorf("Expected late retransmit to drop as stale, got %+v", dropped)
	}
}

func TestFirstChunkAnchorsSequence(t *testing.T) {
	w := NewReorderWindow(ReorderConfig{})
	now := time.Now()

	// Sessions do not have to start at sequence 0
	ready, dropped := w.Push(testChunk(100), now)
	if dropped != nil {
		t.Fatalf("Expected first chunk to anchor, got drop %+v", dropped)
	}
	if len(ready) != 1 || ready[0].SequenceID != 100 {
		t.Fatalf("Expected seq 100 emitted immediately, got %v", ready)
	}

	emitted := pushAll(t, w, now, 101, 102)
	if len(emitted) != 2 {
		t.Errorf("Expected following chunks to emit, got %d", len(emitted))
	}
}

func TestResetClearsWindow(t *testing.T) {
	w := NewReorderWindow(ReorderConfig{})
	now := time.Now()

	pushAll(t, w, now, 0, 1)
	w.Push(testChunk(3), now)
	if w.Pending() != 1 {
		t.Fatalf("Expected 1 pending chunk, got %d", w.Pending())
	}

	w.Reset()

	if w.Pending() != 0 {
		t.Errorf("Expected no pending chunks after reset, got %d", w.Pending())
	}

	// A fresh stream re-anchors
	ready, _ := w.Push(testChunk(0), now)
	if len(ready) != 1 {
		t.Errorf("Expected fresh stream to emit first chunk, got %d", len(ready))
	}
}
