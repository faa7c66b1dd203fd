package playout

import (
	"sync"
	"time"

	"github.com/P-yoganjaneyulu/float/internal/audio"
)

// Drop reasons reported by the reorder window
const (
	DropDuplicate   = "duplicate_or_stale"
	DropOutOfWindow = "future_out_of_window"
)

// Dropped describes a chunk the window refused to admit.
type Dropped struct {
	SequenceID uint64
	Reason     string
}

// ReorderConfig bounds how much disorder and added latency the window will
// absorb before giving up on a missing chunk.
type ReorderConfig struct {
	WindowSize int           // max not-yet-due chunks buffered ahead
	GapTimeout time.Duration // wait before synthesizing silence for a gap
}

// DefaultReorderConfig returns the window bounds used when the config file
// leaves them unset.
func DefaultReorderConfig() ReorderConfig {
	return ReorderConfig{
		WindowSize: 10,
		GapTimeout: 300 * time.Millisecond,
	}
}

type reorderSlot struct {
	chunk     *audio.Chunk
	arrivedAt time.Time
}

// ReorderWindow reconstructs monotonic chunk order from an out-of-order
// arrival stream. It never emits two chunks with the same or decreasing
// sequence id, and it never stalls indefinitely on a missing chunk: a gap
// older than the timeout is filled with synthesized silence.
type ReorderWindow struct {
	config ReorderConfig

	mu       sync.Mutex
	started  bool
	expected uint64
	pending  map[uint64]reorderSlot

	// lastSamples remembers the size of the most recent real chunk so gap
	// silence matches the stream's chunk duration.
	lastSamples int
	sampleRate  int
}

// NewReorderWindow creates a window. Zero-valued config fields fall back to
// the documented defaults.
func NewReorderWindow(config ReorderConfig) *ReorderWindow {
	def := DefaultReorderConfig()
	if config.WindowSize <= 0 {
		config.WindowSize = def.WindowSize
	}
	if config.GapTimeout <= 0 {
		config.GapTimeout = def.GapTimeout
	}
	return &ReorderWindow{
		config:     config,
		pending:    make(map[uint64]reorderSlot),
		sampleRate: audio.DefaultSampleRate,
	}
}

// Push admits an arriving chunk and returns every chunk that is now in
// order, plus drop information when the chunk was refused. The first chunk
// pushed after a reset anchors the expected sequence.
func (w *ReorderWindow) Push(chunk *audio.Chunk, now time.Time) ([]*audio.Chunk, *Dropped) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		w.expected = chunk.SequenceID
		w.started = true
	}

	w.lastSamples = chunk.NumSamples()
	if chunk.SampleRate > 0 {
		w.sampleRate = chunk.SampleRate
	}

	seq := chunk.SequenceID
	switch {
	case seq < w.expected:
		return nil, &Dropped{SequenceID: seq, Reason: DropDuplicate}

	case seq == w.expected:
		ready := []*audio.Chunk{chunk}
		w.expected++
		return append(ready, w.drainLocked()...), nil

	case seq-w.expected <= uint64(w.config.WindowSize):
		if _, exists := w.pending[seq]; exists {
			return nil, &Dropped{SequenceID: seq, Reason: DropDuplicate}
		}
		w.pending[seq] = reorderSlot{chunk: chunk, arrivedAt: now}
		return nil, nil

	default:
		return nil, &Dropped{SequenceID: seq, Reason: DropOutOfWindow}
	}
}

// Expire checks the gap timeout: if the expected chunk has not arrived
// within the timeout of the oldest buffered chunk's arrival, one silence
// chunk is synthesized for the expected slot and any now-in-order buffered
// chunks follow it. Returns nil when no gap is due.
func (w *ReorderWindow) Expire(now time.Time) []*audio.Chunk {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started || len(w.pending) == 0 {
		return nil
	}

	oldest := time.Time{}
	for _, slot := range w.pending {
		if oldest.IsZero() || slot.arrivedAt.Before(oldest) {
			oldest = slot.arrivedAt
		}
	}
	if now.Sub(oldest) < w.config.GapTimeout {
		return nil
	}

	samples := w.lastSamples
	if samples == 0 {
		samples = w.sampleRate / 5 // 200ms fallback
	}
	silence := audio.Silence(w.expected, samples, w.sampleRate)
	w.expected++

	return append([]*audio.Chunk{silence}, w.drainLocked()...)
}

// Pending returns the number of buffered, not-yet-due chunks.
func (w *ReorderWindow) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Reset clears all state for a fresh session.
func (w *ReorderWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.started = false
	w.expected = 0
	w.lastSamples = 0
	w.pending = make(map[uint64]reorderSlot)
}

// drainLocked promotes consecutive buffered chunks starting at expected.
func (w *ReorderWindow) drainLocked() []*audio.Chunk {
	var ready []*audio.Chunk
	for {
		slot, ok := w.pending[w.expected]
		if !ok {
			return ready
		}
		delete(w.pending, w.expected)
		ready = append(ready, slot.chunk)
		w.expected++
	}
}
