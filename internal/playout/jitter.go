package playout

import (
	"sort"
	"sync"
	"time"
)

// jitterEstimator tracks inter-arrival gaps and derives the adaptive
// buffering threshold: every recompute interval, the 95th-percentile gap
// over the trailing window sets threshold = max(minChunks, 2 x jitter).
type jitterEstimator struct {
	mu sync.Mutex

	minChunks     int
	chunkDuration time.Duration
	interval      time.Duration

	lastArrival   time.Time
	gaps          []time.Duration
	lastRecompute time.Time
	threshold     int
}

func newJitterEstimator(minChunks int, chunkDuration, interval time.Duration) *jitterEstimator {
	if minChunks < 1 {
		minChunks = 3
	}
	if chunkDuration <= 0 {
		chunkDuration = 200 * time.Millisecond
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &jitterEstimator{
		minChunks:     minChunks,
		chunkDuration: chunkDuration,
		interval:      interval,
		threshold:     minChunks,
	}
}

// recordArrival notes a chunk arrival and recomputes the threshold when the
// recompute interval has elapsed. Chunks already buffered are unaffected by
// a recompute; only future Buffering decisions see the new value.
func (j *jitterEstimator) recordArrival(now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.lastArrival.IsZero() {
		j.gaps = append(j.gaps, now.Sub(j.lastArrival))
	}
	j.lastArrival = now

	if j.lastRecompute.IsZero() {
		j.lastRecompute = now
		return
	}
	if now.Sub(j.lastRecompute) < j.interval {
		return
	}

	j.threshold = j.computeLocked()
	j.gaps = j.gaps[:0]
	j.lastRecompute = now
}

// thresholdChunks returns the current buffering threshold in chunks.
func (j *jitterEstimator) thresholdChunks() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.threshold
}

func (j *jitterEstimator) computeLocked() int {
	if len(j.gaps) == 0 {
		return j.minChunks
	}

	sorted := make([]time.Duration, len(j.gaps))
	copy(sorted, j.gaps)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a] < sorted[b] })

	idx := len(sorted) * 95 / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	p95 := sorted[idx]

	// threshold = max(minChunks, 2 x observed jitter), expressed in chunks
	chunks := int((2*p95 + j.chunkDuration - 1) / j.chunkDuration)
	if chunks < j.minChunks {
		chunks = j.minChunks
	}
	return chunks
}

func (j *jitterEstimator) reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastArrival = time.Time{}
	j.lastRecompute = time.Time{}
	j.gaps = j.gaps[:0]
	j.threshold = j.minChunks
}
