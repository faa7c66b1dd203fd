package sendqueue

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOverflow is returned by Enqueue while backpressure is engaged: the
// caller is expected to stop capturing or drop at the source until
// acknowledgments catch up.
var ErrOverflow = errors.New("send queue overflow: backpressure engaged")

// QueueConfig bounds the outbound buffer and its backpressure band.
type QueueConfig struct {
	Capacity      int // total retained entries (~10s at 200ms/chunk)
	HighWatermark int // unacked count at which Enqueue starts rejecting
	LowWatermark  int // unacked count below which Enqueue resumes
	MaxRetries    int // resend attempts before an entry is dropped
}

// DefaultQueueConfig returns the queue bounds used when the config file
// leaves them unset.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Capacity:      50,
		HighWatermark: 15,
		LowWatermark:  10,
		MaxRetries:    3,
	}
}

// PendingSend is an outbound chunk awaiting acknowledgment.
type PendingSend struct {
	SequenceID uint64
	Payload    []byte
	FirstSent  time.Time
	RetryCount int
	Acked      bool
}

// Stats are the queue's cumulative counters.
type Stats struct {
	ChunksEnqueued   uint64 `json:"chunks_enqueued"`
	ChunksAcked      uint64 `json:"chunks_acked"`
	Retransmits      uint64 `json:"retransmits"`
	OverflowDrops    uint64 `json:"overflow_drops"`
	RetryDrops       uint64 `json:"retry_drops"`
	CongestionEvents uint64 `json:"congestion_events"`
	Rejections       uint64 `json:"rejections"`
}

// Snapshot is an immutable view of the queue for the host/UI.
type Snapshot struct {
	PendingUnacked int    `json:"pending_unacked"`
	NextSequence   uint64 `json:"next_sequence"`
	LastAcked      uint64 `json:"last_acked"`
	Rejecting      bool   `json:"rejecting"`
	Stats          Stats  `json:"stats"`
}

// Queue is the bounded, acknowledgment-tracked outbound buffer. Sequence
// assignment is monotonic per session and never reused, even after a drop.
// Ack and resend handlers run on the network task; a single internal lock
// guards all entry mutation.
type Queue struct {
	config QueueConfig
	logger *slog.Logger

	mu        sync.Mutex
	entries   []*PendingSend // oldest first, unacked only
	nextSeq   uint64
	lastAcked uint64
	rejecting bool
	stats     Stats

	// onCongestion fires when the overflow policy drops an entry.
	onCongestion func()
}

// NewQueue creates a send queue. Zero-valued config fields fall back to the
// documented defaults. Sequence ids start at 1 so that 0 can mean "nothing
// acknowledged yet" in the session-init exchange.
func NewQueue(config QueueConfig, logger *slog.Logger) *Queue {
	def := DefaultQueueConfig()
	if config.Capacity <= 0 {
		config.Capacity = def.Capacity
	}
	if config.HighWatermark <= 0 {
		config.HighWatermark = def.HighWatermark
	}
	if config.LowWatermark <= 0 || config.LowWatermark >= config.HighWatermark {
		config.LowWatermark = def.LowWatermark
		if config.LowWatermark >= config.HighWatermark {
			config.LowWatermark = config.HighWatermark / 2
		}
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = def.MaxRetries
	}
	return &Queue{
		config:  config,
		logger:  logger,
		nextSeq: 1,
	}
}

// SetCongestionHandler registers the congestion signal for the host.
func (q *Queue) SetCongestionHandler(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onCongestion = fn
}

// Enqueue admits a payload and assigns its sequence id. While the
// unacknowledged count sits inside the backpressure band, Enqueue rejects
// with ErrOverflow; the hysteresis (reject at high, resume below low)
// prevents oscillation around a single threshold.
func (q *Queue) Enqueue(payload []byte) (uint64, error) {
	q.mu.Lock()

	unacked := len(q.entries)
	if q.rejecting {
		if unacked < q.config.LowWatermark {
			q.rejecting = false
		}
	} else if unacked >= q.config.HighWatermark {
		q.rejecting = true
	}

	if q.rejecting {
		q.stats.Rejections++
		q.mu.Unlock()
		return 0, ErrOverflow
	}

	var congested bool
	if len(q.entries) >= q.config.Capacity {
		// Prefer freshness over completeness: drop the oldest
		// unacknowledged entry.
		dropped := q.entries[0]
		q.entries = q.entries[1:]
		q.stats.OverflowDrops++
		q.stats.CongestionEvents++
		congested = true
		q.logger.Warn("Send queue at capacity, dropping oldest unacked chunk",
			slog.Uint64("sequence_id", dropped.SequenceID),
		)
	}

	seq := q.nextSeq
	q.nextSeq++

	entry := &PendingSend{
		SequenceID: seq,
		Payload:    payload,
		FirstSent:  time.Now(),
	}
	q.entries = append(q.entries, entry)
	q.stats.ChunksEnqueued++

	handler := q.onCongestion
	q.mu.Unlock()

	if congested && handler != nil {
		handler()
	}
	return seq, nil
}

// Ack removes the entry with the given sequence id. Acks for unknown or
// already-removed ids are ignored; duplicate acks never remove more than
// their matching entry. A single ack never advances the watermark: with
// earlier entries possibly still in flight, only the cumulative form proves
// everything below a sequence was processed.
func (q *Queue) Ack(seq uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ackThroughLocked(seq, false)
}

// AckThrough removes every entry with sequence id <= seq, matching the
// server's cumulative acknowledgment form. lastAcked never decreases.
func (q *Queue) AckThrough(seq uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ackThroughLocked(seq, true)
}

func (q *Queue) ackThroughLocked(seq uint64, cumulative bool) {
	kept := q.entries[:0]
	for _, e := range q.entries {
		match := e.SequenceID == seq
		if cumulative {
			match = e.SequenceID <= seq
		}
		if match {
			q.stats.ChunksAcked++
			continue
		}
		kept = append(kept, e)
	}
	q.entries = kept

	if cumulative && seq > q.lastAcked {
		q.lastAcked = seq
	}
	if q.rejecting && len(q.entries) < q.config.LowWatermark {
		q.rejecting = false
	}
}

// OnDisconnected is the transport's notification of a lost connection.
// Entries remain queued; no resend is attempted until reconnect.
func (q *Queue) OnDisconnected() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.logger.Debug("Transport disconnected, retaining unacked chunks",
		slog.Int("pending", len(q.entries)),
	)
}

// OnReconnected returns every unacknowledged entry to resend, oldest first,
// incrementing each retry count. Entries that have exhausted their retries
// are permanently dropped with a warning rather than resent. The caller
// tags returned entries as retransmissions.
func (q *Queue) OnReconnected() []*PendingSend {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.entries[:0]
	var resend []*PendingSend
	for _, e := range q.entries {
		if e.RetryCount >= q.config.MaxRetries {
			q.stats.RetryDrops++
			q.logger.Warn("Dropping chunk after max retransmit attempts",
				slog.Uint64("sequence_id", e.SequenceID),
				slog.Int("retry_count", e.RetryCount),
			)
			continue
		}
		e.RetryCount++
		q.stats.Retransmits++
		resend = append(resend, e)
		kept = append(kept, e)
	}
	q.entries = kept

	if q.rejecting && len(q.entries) < q.config.LowWatermark {
		q.rejecting = false
	}
	return resend
}

// PendingUnacked returns the current unacknowledged count.
func (q *Queue) PendingUnacked() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// LastAcked returns the highest acknowledged sequence id.
func (q *Queue) LastAcked() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastAcked
}

// Reset clears all entries and restarts sequence assignment for a fresh
// session.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = nil
	q.nextSeq = 1
	q.lastAcked = 0
	q.rejecting = false
}

// GetSnapshot returns an immutable view of the queue state.
func (q *Queue) GetSnapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Snapshot{
		PendingUnacked: len(q.entries),
		NextSequence:   q.nextSeq,
		LastAcked:      q.lastAcked,
		Rejecting:      q.rejecting,
		Stats:          q.stats,
	}
}
