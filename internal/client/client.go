package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/P-yoganjaneyulu/float/internal/audio"
	"github.com/P-yoganjaneyulu/float/internal/config"
	"github.com/P-yoganjaneyulu/float/internal/dsp"
	"github.com/P-yoganjaneyulu/float/internal/metrics"
	"github.com/P-yoganjaneyulu/float/internal/playout"
	"github.com/P-yoganjaneyulu/float/internal/protocol"
	"github.com/P-yoganjaneyulu/float/internal/sendqueue"
	"github.com/P-yoganjaneyulu/float/internal/session"
	"github.com/P-yoganjaneyulu/float/internal/transport"
)

// CaptureSource supplies outbound PCM16 chunks from the device microphone or
// another producer. Read blocks until a chunk is available and returns io.EOF
// when the source is exhausted.
type CaptureSource interface {
	Read(ctx context.Context) ([]byte, error)
}

// Snapshot is the combined read-only pipeline view for the host/UI.
type Snapshot struct {
	Session   session.Info       `json:"session"`
	Transport transport.Snapshot `json:"transport"`
	Playout   playout.Snapshot   `json:"playout"`
	SendQueue sendqueue.Snapshot `json:"send_queue"`
}

// Client is the pipeline orchestrator: it owns the capture loop, the send
// queue, the transport, and the playout engine, and wires their signals
// together. The host starts and stops it and observes snapshots; everything
// else runs on the pipeline's own tasks.
type Client struct {
	config  *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	source CaptureSource
	sink   playout.Sink

	sess      *session.Session
	queue     *sendqueue.Queue
	engine    *playout.Engine
	transport *transport.Transport

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// onFatal receives session-level failures requiring an explicit restart.
	onFatal func(error)

	// delta baseline for the periodic Prometheus sync
	lastSessionStats session.Stats
	lastQueueStats   sendqueue.Stats
	lastEngineStats  playout.Stats
}

// NewClient assembles the full pipeline from configuration. The capture
// source and output sink are the external device collaborators; dialer is
// normally transport.NewWebSocketDialer and overridable for tests.
func NewClient(cfg *config.Config, source CaptureSource, sink playout.Sink,
	dialer transport.Dialer, m *metrics.Metrics, logger *slog.Logger) (*Client, error) {

	sess, err := session.New(protocol.LanguagePair{
		Source: cfg.Server.SourceLanguage,
		Target: cfg.Server.TargetLanguage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	c := &Client{
		config:  cfg,
		logger:  logger,
		metrics: m,
		source:  source,
		sink:    sink,
		sess:    sess,
	}

	c.queue = sendqueue.NewQueue(sendqueue.QueueConfig{
		Capacity:      cfg.SendQueue.Capacity,
		HighWatermark: cfg.SendQueue.HighWatermark,
		LowWatermark:  cfg.SendQueue.LowWatermark,
		MaxRetries:    cfg.SendQueue.MaxRetries,
	}, logger)
	c.queue.SetCongestionHandler(func() {
		sess.RecordCongestion()
		c.logger.Warn("Send queue congestion, host should slow capture")
	})

	c.engine = playout.NewEngine(
		playout.EngineConfig{
			MinBufferChunks: cfg.Playout.MinBufferChunks,
			ChunkDuration:   cfg.Audio.GetChunkDuration(),
			SampleRate:      cfg.Audio.SampleRate,
			JitterInterval:  cfg.Playout.GetJitterIntervalDuration(),
			UnderrunCeiling: cfg.Playout.GetUnderrunCeilingDuration(),
		},
		playout.ReorderConfig{
			WindowSize: cfg.Playout.ReorderWindow,
			GapTimeout: cfg.Playout.GetGapTimeoutDuration(),
		},
		audio.ValidatorConfig{
			MinChunkBytes:   cfg.Validator.MinChunkBytes,
			MaxChunkBytes:   cfg.Validator.MaxChunkBytes,
			ZeroSampleRatio: cfg.Validator.ZeroSampleRatio,
			RMSSpikeFactor:  cfg.Validator.RMSSpikeFactor,
			RMSHistory:      cfg.Validator.RMSHistory,
		},
		dsp.Config{
			TargetRMS:         cfg.DSP.TargetRMS,
			CompressThreshold: cfg.DSP.CompressThreshold,
			CompressRatio:     cfg.DSP.CompressRatio,
			FlattenSpikeLevel: cfg.DSP.FlattenSpikeLevel,
			FlattenTargetRMS:  cfg.DSP.FlattenTargetRMS,
		},
		sink, logger,
	)
	c.engine.SetStarvationHandler(func(err *playout.StarvationError) {
		c.logger.Error("Session failed, explicit restart required", slog.String("error", err.Error()))
		c.fatal(err)
	})

	c.transport = transport.NewTransport(
		transport.Config{
			URL:               cfg.Server.URL,
			HandshakeTimeout:  cfg.Server.GetHandshakeTimeoutDuration(),
			KeepaliveInterval: cfg.Server.GetKeepaliveIntervalDuration(),
			BackoffBase:       cfg.Server.GetBackoffBaseDuration(),
			BackoffMax:        cfg.Server.GetBackoffMaxDuration(),
			MaxAttempts:       cfg.Server.MaxReconnects,
		},
		dialer, c.queue, sess,
		transport.Handlers{
			OnResult:      c.handleResult,
			OnServerError: c.handleServerError,
		},
		m, logger,
	)

	return c, nil
}

// SetFatalHandler registers the host callback for session-level failures.
// Must be called before Start.
func (c *Client) SetFatalHandler(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFatal = fn
}

// Start brings the pipeline up: playout engine, transport connection, and
// the capture loop. It is a no-op if already running.
func (c *Client) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	c.engine.Start()
	c.transport.Connect()

	c.wg.Add(1)
	go c.captureLoop(ctx)

	if c.metrics != nil {
		c.wg.Add(1)
		go c.metricsLoop(ctx)
	}

	c.logger.Info("Pipeline started",
		slog.String("session_id", c.sess.ID()),
		slog.String("server", c.config.Server.URL),
	)
}

// Stop tears the pipeline down in order: the capture loop first so nothing
// new is enqueued, then the transport (closing the socket and cancelling any
// backoff timer), then the playout engine (flushing within one frame
// period). Queues and counters are cleared so a later Start gets a fresh
// session. Safe to call more than once.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	c.wg.Wait()

	c.transport.Disconnect()
	c.engine.Stop()
	c.queue.Reset()

	c.logger.Info("Pipeline stopped", slog.String("session_id", c.sess.ID()))
}

// Pause suspends playback without touching the connection.
func (c *Client) Pause() {
	c.engine.Pause()
}

// Resume continues playback after a pause.
func (c *Client) Resume() {
	c.engine.Resume()
}

// GetSnapshot returns the combined read-only pipeline view.
func (c *Client) GetSnapshot() Snapshot {
	return Snapshot{
		Session:   c.sess.GetInfo(),
		Transport: c.transport.GetSnapshot(),
		Playout:   c.engine.GetSnapshot(),
		SendQueue: c.queue.GetSnapshot(),
	}
}

// captureLoop feeds the send queue from the capture source. Every chunk is
// enqueued before the send attempt so a failed or offline send is covered by
// resend-on-reconnect; backpressure rejections drop the chunk at the source.
func (c *Client) captureLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		payload, err := c.source.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				c.logger.Info("Capture source closed")
			} else {
				c.logger.Warn("Capture read failed", slog.String("error", err.Error()))
			}
			return
		}
		if len(payload) == 0 {
			continue
		}

		seq, err := c.queue.Enqueue(payload)
		if err != nil {
			c.logger.Debug("Chunk dropped at source", slog.String("error", err.Error()))
			continue
		}

		if err := c.transport.Send(seq, payload, false); err != nil {
			// The entry stays queued; reconnect resends it.
			c.logger.Debug("Send deferred",
				slog.Uint64("sequence_id", seq),
				slog.String("error", err.Error()),
			)
		}
	}
}

// handleResult converts a translated-audio message into a chunk for playout.
func (c *Client) handleResult(msg *protocol.InboundMessage) {
	if len(msg.AudioChunk) == 0 {
		// Text-only partials carry no audio to play.
		return
	}
	c.engine.Submit(audio.NewChunk(msg.SequenceID, msg.AudioChunk, time.Now(),
		c.config.Audio.SampleRate, c.config.Audio.Channels))
}

func (c *Client) handleServerError(msg *protocol.InboundMessage) {
	if msg.ErrorCode == protocol.ErrCodeRateLimitExceeded && msg.RetryAfterMS > 0 {
		c.logger.Warn("Server rate limit",
			slog.Int64("retry_after_ms", msg.RetryAfterMS),
		)
	}
}

func (c *Client) fatal(err error) {
	c.mu.Lock()
	handler := c.onFatal
	c.mu.Unlock()
	if handler != nil {
		handler(err)
	}
}

// metricsLoop mirrors the pipeline's cumulative stats into Prometheus once a
// second: gauges directly, counters by delta against the previous sample.
func (c *Client) metricsLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.syncMetrics()
			return
		case <-ticker.C:
			c.syncMetrics()
		}
	}
}

func (c *Client) syncMetrics() {
	snapshot := c.GetSnapshot()

	c.metrics.SetSendQueueDepth(snapshot.SendQueue.PendingUnacked)
	c.metrics.SetPlayoutQueueDepth(snapshot.Playout.QueueDepth)

	s := snapshot.Session.Stats
	prev := c.lastSessionStats
	addCounter(c.metrics.ChunksSent, s.ChunksSent-prev.ChunksSent)
	addCounter(c.metrics.Retransmits, s.Retransmits-prev.Retransmits)
	addCounter(c.metrics.ChunksAcked, s.ChunksAcked-prev.ChunksAcked)
	addCounter(c.metrics.ResultsReceived, s.ResultsReceived-prev.ResultsReceived)
	addCounter(c.metrics.PartialResults, s.PartialResults-prev.PartialResults)
	addCounter(c.metrics.ServerErrors, s.ServerErrors-prev.ServerErrors)
	addCounter(c.metrics.ParseErrors, s.ParseErrors-prev.ParseErrors)
	addCounter(c.metrics.Reconnects, s.Reconnects-prev.Reconnects)
	addCounter(c.metrics.CongestionEvents, s.CongestionEvents-prev.CongestionEvents)
	c.lastSessionStats = s

	q := snapshot.SendQueue.Stats
	qprev := c.lastQueueStats
	addCounter(c.metrics.SendOverflows, q.OverflowDrops-qprev.OverflowDrops)
	addCounter(c.metrics.SendRejections, q.Rejections-qprev.Rejections)
	c.lastQueueStats = q

	p := snapshot.Playout.Stats
	pprev := c.lastEngineStats
	addCounter(c.metrics.ChunksPlayed, p.ChunksPlayed-pprev.ChunksPlayed)
	addCounter(c.metrics.ChunksAdmitted, p.ChunksAdmitted-pprev.ChunksAdmitted)
	addCounter(c.metrics.CorruptionEvents, p.CorruptionEvents-pprev.CorruptionEvents)
	addCounter(c.metrics.SinkErrors, p.SinkErrors-pprev.SinkErrors)
	addCounter(c.metrics.GapFills, p.GapFills-pprev.GapFills)
	addCounter(c.metrics.UnderrunEvents, p.UnderrunEvents-pprev.UnderrunEvents)
	if d := p.UnderrunDuration - pprev.UnderrunDuration; d > 0 {
		c.metrics.UnderrunDuration.Observe(d.Seconds())
	}
	if n := p.ReorderDrops - pprev.ReorderDrops; n > 0 {
		c.metrics.ReorderDrops.WithLabelValues("window").Add(float64(n))
	}
	if n := p.QueueDrops - pprev.QueueDrops; n > 0 {
		c.metrics.ReorderDrops.WithLabelValues("queue_full").Add(float64(n))
	}
	c.lastEngineStats = p
}

func addCounter(counter interface{ Add(float64) }, delta uint64) {
	if delta > 0 {
		counter.Add(float64(delta))
	}
}
