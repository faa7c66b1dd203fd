package playout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/P-yoganjaneyulu/float/internal/audio"
	"github.com/P-yoganjaneyulu/float/internal/dsp"
)

// State is the playout engine's lifecycle state.
type State int

const (
	StateStopped State = iota
	StateBuffering
	StatePlaying
	StatePreUnderrun
	StateUnderrun
	StatePaused
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StatePreUnderrun:
		return "pre_underrun"
	case StateUnderrun:
		return "underrun"
	case StatePaused:
		return "paused"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// StarvationError is the fatal-for-session error raised when the engine has
// synthesized silence for longer than the underrun ceiling: the source has
// stopped producing data entirely and the session needs an explicit restart.
type StarvationError struct {
	SilenceFor time.Duration
}

func (e *StarvationError) Error() string {
	return fmt.Sprintf("playout starved: %v of continuous synthesized silence, no audio source", e.SilenceFor)
}

// Sink consumes opaque PCM frames for device output. Write failures are
// reported but never crash the engine; the next frame is attempted anyway.
type Sink interface {
	Write(ctx context.Context, pcm []byte) error
}

// EngineConfig carries the playout tuning knobs.
type EngineConfig struct {
	MinBufferChunks int           // floor for the adaptive jitter threshold
	ChunkDuration   time.Duration // nominal chunk cadence
	SampleRate      int
	JitterInterval  time.Duration // adaptive threshold recompute period
	UnderrunCeiling time.Duration // continuous silence before starvation
	QueueCapacity   int           // playout FIFO capacity in chunks
	ResumeFadeMS    int           // fade applied around underrun boundaries
}

// DefaultEngineConfig returns the playout parameters used when the config
// file leaves them unset.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MinBufferChunks: 3,
		ChunkDuration:   200 * time.Millisecond,
		SampleRate:      audio.DefaultSampleRate,
		JitterInterval:  30 * time.Second,
		UnderrunCeiling: 5 * time.Second,
		QueueCapacity:   64,
		ResumeFadeMS:    10,
	}
}

// Stats are the engine's cumulative counters, exposed read-only.
type Stats struct {
	ChunksPlayed     uint64        `json:"chunks_played"`
	ChunksAdmitted   uint64        `json:"chunks_admitted"`
	CorruptionEvents uint64        `json:"corruption_events"`
	ReorderDrops     uint64        `json:"reorder_drops"`
	QueueDrops       uint64        `json:"queue_drops"`
	GapFills         uint64        `json:"gap_fills"`
	UnderrunEvents   uint64        `json:"underrun_events"`
	UnderrunDuration time.Duration `json:"underrun_duration"`
	SinkErrors       uint64        `json:"sink_errors"`
}

// Snapshot is an immutable view of the engine for the host/UI.
type Snapshot struct {
	State            State         `json:"-"`
	StateName        string        `json:"state"`
	QueueDepth       int           `json:"queue_depth"`
	BufferedDuration time.Duration `json:"buffered_duration"`
	ThresholdChunks  int           `json:"threshold_chunks"`
	Stats            Stats         `json:"stats"`
}

// Engine owns the reorder window, validator, DSP chain, and the adaptive
// jitter threshold, and drives the playback loop. Chunks are admitted on the
// network task via Submit; a dedicated playout task consumes the queue and
// writes to the sink at real-time cadence. The playout task never blocks on
// the network: an empty queue means buffering or underrun, never a wait.
type Engine struct {
	config    EngineConfig
	logger    *slog.Logger
	sink      Sink
	reorder   *ReorderWindow
	validator *audio.Validator
	chain     *dsp.Chain
	jitter    *jitterEstimator

	queue chan *audio.Chunk

	// emitMu serializes reorder emission with queue insertion. The network
	// task (Submit) and the gap-fill sweep both feed the queue; without a
	// lock spanning both steps their ready batches could interleave and
	// break the strictly increasing output order.
	emitMu sync.Mutex

	mu           sync.Mutex
	state        State
	running      bool
	cancel       context.CancelFunc
	done         chan struct{}
	stats        Stats
	lastTail     []byte // tail of the last written frame, for underrun fade-out
	underrunFrom time.Time

	// onStarvation is invoked from the playout task when the underrun
	// ceiling is exceeded.
	onStarvation func(*StarvationError)
}

// NewEngine wires the playout pipeline. The sink is the external device
// writer collaborator and must not be nil.
func NewEngine(config EngineConfig, reorderCfg ReorderConfig, validatorCfg audio.ValidatorConfig,
	dspCfg dsp.Config, sink Sink, logger *slog.Logger) *Engine {

	def := DefaultEngineConfig()
	if config.MinBufferChunks <= 0 {
		config.MinBufferChunks = def.MinBufferChunks
	}
	if config.ChunkDuration <= 0 {
		config.ChunkDuration = def.ChunkDuration
	}
	if config.SampleRate <= 0 {
		config.SampleRate = def.SampleRate
	}
	if config.JitterInterval <= 0 {
		config.JitterInterval = def.JitterInterval
	}
	if config.UnderrunCeiling <= 0 {
		config.UnderrunCeiling = def.UnderrunCeiling
	}
	if config.QueueCapacity <= 0 {
		config.QueueCapacity = def.QueueCapacity
	}
	if config.ResumeFadeMS <= 0 {
		config.ResumeFadeMS = def.ResumeFadeMS
	}

	return &Engine{
		config:    config,
		logger:    logger,
		sink:      sink,
		reorder:   NewReorderWindow(reorderCfg),
		validator: audio.NewValidator(validatorCfg),
		chain:     dsp.NewChain(dspCfg),
		jitter:    newJitterEstimator(config.MinBufferChunks, config.ChunkDuration, config.JitterInterval),
		queue:     make(chan *audio.Chunk, config.QueueCapacity),
		state:     StateStopped,
	}
}

// SetStarvationHandler registers the callback for fatal playout starvation.
// Must be called before Start.
func (e *Engine) SetStarvationHandler(fn func(*StarvationError)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onStarvation = fn
}

// Start launches the playout task. It is a no-op if already running.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	done := make(chan struct{})
	e.done = done
	e.running = true

	go e.run(ctx, done)
	e.logger.Info("Playout engine started",
		slog.Duration("chunk_duration", e.config.ChunkDuration),
		slog.Int("min_buffer_chunks", e.config.MinBufferChunks),
	)
}

// Stop cancels the playout task, waits for it to flush (bounded by one frame
// period), and clears all buffered state for a future fresh session.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	done := e.done
	e.mu.Unlock()

	cancel()
	<-done

	e.flush()
	e.setState(StateStopped)
	e.logger.Info("Playout engine stopped")
}

// Submit admits an arriving chunk from the network task. The chunk passes
// the reorder window, then each in-order chunk is validated (corrupt chunks
// are replaced with silence of the same duration) and smoothed by the DSP
// chain before being queued for the playout task. Chunks submitted while the
// engine is not running are dropped.
func (e *Engine) Submit(chunk *audio.Chunk) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	now := time.Now()
	e.jitter.recordArrival(now)

	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	ready, dropped := e.reorder.Push(chunk, now)
	if dropped != nil {
		e.mu.Lock()
		e.stats.ReorderDrops++
		e.mu.Unlock()
		e.logger.Debug("Reorder window dropped chunk",
			slog.Uint64("sequence_id", dropped.SequenceID),
			slog.String("reason", dropped.Reason),
		)
		return
	}

	for _, c := range ready {
		e.admit(c)
	}
}

// CheckGapTimeout drives the reorder window's forward-progress guarantee and
// is called periodically from the playout task (and exposed here for the
// network task's dispatch loop).
func (e *Engine) CheckGapTimeout() {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	for _, c := range e.reorder.Expire(time.Now()) {
		e.admit(c)
	}
}

// Pause suspends playback. Only meaningful in Playing or Buffering.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StatePlaying || e.state == StateBuffering || e.state == StatePreUnderrun {
		e.transitionLocked(StatePaused)
	}
}

// Resume continues playback after an explicit pause: to Playing when audio
// is buffered, back to Buffering otherwise.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePaused {
		return
	}
	if len(e.queue) > 0 {
		e.transitionLocked(StatePlaying)
	} else {
		e.transitionLocked(StateBuffering)
	}
}

// GetSnapshot returns an immutable view of the engine state.
func (e *Engine) GetSnapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	depth := len(e.queue)
	return Snapshot{
		State:            e.state,
		StateName:        e.state.String(),
		QueueDepth:       depth,
		BufferedDuration: time.Duration(depth) * e.config.ChunkDuration,
		ThresholdChunks:  e.jitter.thresholdChunks(),
		Stats:            e.stats,
	}
}

// admit runs validation and the DSP chain on one in-order chunk and queues
// the result for playout.
func (e *Engine) admit(chunk *audio.Chunk) {
	gapFill := chunk.Synthesized

	if err := e.validate(chunk); err != nil {
		e.mu.Lock()
		e.stats.CorruptionEvents++
		e.mu.Unlock()
		e.logger.Warn("Corrupt chunk replaced with silence",
			slog.Uint64("sequence_id", chunk.SequenceID),
			slog.String("error", err.Error()),
		)
		chunk = audio.Silence(chunk.SequenceID, e.silenceSamplesFor(chunk), e.config.SampleRate)
	}

	processed := e.chain.Process(chunk)

	select {
	case e.queue <- processed:
		e.mu.Lock()
		e.stats.ChunksAdmitted++
		if gapFill {
			e.stats.GapFills++
		}
		if e.state == StateStopped && e.running {
			e.transitionLocked(StateBuffering)
		}
		e.mu.Unlock()
	default:
		e.mu.Lock()
		e.stats.QueueDrops++
		e.mu.Unlock()
		e.logger.Warn("Playout queue full, dropping chunk",
			slog.Uint64("sequence_id", processed.SequenceID),
		)
	}
}

// validate runs the integrity checks on one chunk. Synthesized gap-fill
// silence is trusted: it is all zeros by construction and must not trip the
// zero-sample heuristic or count as corruption.
func (e *Engine) validate(chunk *audio.Chunk) error {
	if chunk.Synthesized {
		return nil
	}
	return e.validator.Validate(chunk.Payload)
}

// silenceSamplesFor sizes substitute silence to the corrupt chunk's declared
// duration when it is meaningful, falling back to the nominal cadence.
func (e *Engine) silenceSamplesFor(chunk *audio.Chunk) int {
	if n := chunk.NumSamples(); n > 0 {
		return n
	}
	return int(e.config.ChunkDuration.Seconds() * float64(e.config.SampleRate))
}

// run is the playout task. It paces output at the audio clock using bounded
// sleeps and never blocks on network I/O. The done channel is captured at
// Start so a task outliving a quick restart cannot close its successor's.
func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		if ctx.Err() != nil {
			return
		}

		e.CheckGapTimeout()

		switch e.currentState() {
		case StateStopped, StateBuffering:
			if len(e.queue) >= e.jitter.thresholdChunks() && e.currentState() == StateBuffering {
				e.setState(StatePlaying)
				continue
			}
			e.sleep(ctx, e.config.ChunkDuration/4)

		case StatePaused:
			e.sleep(ctx, e.config.ChunkDuration/4)

		case StatePlaying, StatePreUnderrun:
			select {
			case chunk := <-e.queue:
				e.playFrame(ctx, chunk, false)
				if len(e.queue) <= 1 {
					e.setState(StatePreUnderrun)
				} else {
					e.setState(StatePlaying)
				}
			default:
				if e.currentState() == StatePreUnderrun {
					e.enterUnderrun()
				} else {
					e.setState(StatePreUnderrun)
				}
			}

		case StateUnderrun:
			if len(e.queue) >= 2 {
				e.exitUnderrun(ctx)
				continue
			}
			if e.underrunExceeded() {
				e.starve()
				return
			}
			e.playSilenceFrame(ctx)
		}
	}
}

func (e *Engine) currentState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transitionLocked(s)
}

func (e *Engine) transitionLocked(s State) {
	if e.state == s {
		return
	}
	e.logger.Debug("Playout state change",
		slog.String("from", e.state.String()),
		slog.String("to", s.String()),
	)
	e.state = s
}

// playFrame writes one chunk to the sink and sleeps out the frame period.
// fadeIn ramps the first few milliseconds, used when resuming from silence.
func (e *Engine) playFrame(ctx context.Context, chunk *audio.Chunk, fadeIn bool) {
	payload := chunk.Payload
	if fadeIn {
		payload = e.applyFadeIn(payload)
	}

	if err := e.sink.Write(ctx, payload); err != nil {
		e.mu.Lock()
		e.stats.SinkErrors++
		e.mu.Unlock()
		e.logger.Warn("Sink write failed, continuing",
			slog.Uint64("sequence_id", chunk.SequenceID),
			slog.String("error", err.Error()),
		)
	} else {
		e.mu.Lock()
		e.stats.ChunksPlayed++
		e.mu.Unlock()
	}

	e.rememberTail(payload)
	e.sleep(ctx, chunk.Duration())
}

// enterUnderrun starts masking: the stored tail of the last real frame is
// faded out into the first silence frame so the transition is inaudible.
func (e *Engine) enterUnderrun() {
	e.mu.Lock()
	e.stats.UnderrunEvents++
	e.underrunFrom = time.Now()
	e.transitionLocked(StateUnderrun)
	e.mu.Unlock()
	e.logger.Warn("Playout underrun, synthesizing silence")
}

// exitUnderrun resumes real playback with a fade-in on the first frame.
func (e *Engine) exitUnderrun(ctx context.Context) {
	e.mu.Lock()
	if !e.underrunFrom.IsZero() {
		e.stats.UnderrunDuration += time.Since(e.underrunFrom)
		e.underrunFrom = time.Time{}
	}
	e.transitionLocked(StatePlaying)
	e.mu.Unlock()

	select {
	case chunk := <-e.queue:
		e.playFrame(ctx, chunk, true)
	default:
	}
}

// playSilenceFrame emits one frame of synthesized silence at the chunk
// cadence. The first silence frame after real audio carries the faded-out
// tail of that audio.
func (e *Engine) playSilenceFrame(ctx context.Context) {
	samples := int(e.config.ChunkDuration.Seconds() * float64(e.config.SampleRate))
	frame := make([]byte, samples*audio.BytesPerSample)

	e.mu.Lock()
	tail := e.lastTail
	e.lastTail = nil
	e.mu.Unlock()

	if len(tail) > 0 {
		copy(frame, e.applyFadeOut(tail))
	}

	if err := e.sink.Write(ctx, frame); err != nil {
		e.mu.Lock()
		e.stats.SinkErrors++
		e.mu.Unlock()
	}
	e.sleep(ctx, e.config.ChunkDuration)
}

// underrunExceeded reports whether continuous synthesized silence has
// crossed the starvation ceiling.
func (e *Engine) underrunExceeded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.underrunFrom.IsZero() && time.Since(e.underrunFrom) > e.config.UnderrunCeiling
}

// starve escalates sustained underrun as a session-level failure. All
// buffered state is cleared here, exactly as on an explicit Stop, so the
// restart the handler demands begins with a fresh stream.
func (e *Engine) starve() {
	e.mu.Lock()
	silenceFor := time.Since(e.underrunFrom)
	e.stats.UnderrunDuration += silenceFor
	e.underrunFrom = time.Time{}
	e.running = false
	e.transitionLocked(StateStopped)
	handler := e.onStarvation
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.flush()

	err := &StarvationError{SilenceFor: silenceFor}
	e.logger.Error("Playout starvation, stopping engine", slog.String("error", err.Error()))
	if handler != nil {
		handler(err)
	}
}

// rememberTail keeps the final fade window of the last written frame.
func (e *Engine) rememberTail(payload []byte) {
	n := e.fadeBytes()
	if n > len(payload) {
		n = len(payload)
	}
	tail := make([]byte, n)
	copy(tail, payload[len(payload)-n:])

	e.mu.Lock()
	e.lastTail = tail
	e.mu.Unlock()
}

func (e *Engine) fadeBytes() int {
	return e.config.SampleRate * e.config.ResumeFadeMS / 1000 * audio.BytesPerSample
}

// applyFadeIn returns a copy of payload with a linear ramp over the fade
// window at its start.
func (e *Engine) applyFadeIn(payload []byte) []byte {
	out := make([]byte, len(payload))
	copy(out, payload)

	n := e.fadeBytes() / audio.BytesPerSample
	if n > len(out)/audio.BytesPerSample {
		n = len(out) / audio.BytesPerSample
	}
	for i := 0; i < n; i++ {
		s := int16(out[i*2]) | int16(out[i*2+1])<<8
		s = int16(float64(s) * float64(i) / float64(n))
		out[i*2] = byte(s)
		out[i*2+1] = byte(uint16(s) >> 8)
	}
	return out
}

// applyFadeOut returns a copy of payload ramped down to zero.
func (e *Engine) applyFadeOut(payload []byte) []byte {
	out := make([]byte, len(payload))
	copy(out, payload)

	n := len(out) / audio.BytesPerSample
	for i := 0; i < n; i++ {
		s := int16(out[i*2]) | int16(out[i*2+1])<<8
		s = int16(float64(s) * float64(n-1-i) / float64(n))
		out[i*2] = byte(s)
		out[i*2+1] = byte(uint16(s) >> 8)
	}
	return out
}

// flush drains the queue and resets all per-session state so a future
// session starts clean.
func (e *Engine) flush() {
	for {
		select {
		case <-e.queue:
		default:
			e.reorder.Reset()
			e.chain.Reset()
			e.validator.Reset()
			e.jitter.reset()
			e.mu.Lock()
			e.lastTail = nil
			e.underrunFrom = time.Time{}
			e.mu.Unlock()
			return
		}
	}
}

// sleep is a bounded, cancellable pause between frames.
func (e *Engine) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
