package dsp

import (
	"math"
	"sync"

	"github.com/P-yoganjaneyulu/float/internal/audio"
)

// Fixed pipeline parameters. These shape how aggressively chunk boundaries
// are smoothed; the level targets live in Config because they interact with
// the backend's output loudness.
const (
	declickMS          = 5  // linear boundary fade
	crossfadeMaxMS     = 15 // upper bound on the inter-chunk blend
	softFadeMS         = 10 // quadratic envelope at both boundaries
	softFadeMinSamples = 200
	flattenWindowMS    = 50 // sliding RMS window for energy flattening
)

// Config holds the level targets of the smoothing chain.
type Config struct {
	TargetRMS         float64 // loudness normalization target, full scale = 1.0
	CompressThreshold float64 // soft-knee compression threshold
	CompressRatio     float64 // compression ratio above the threshold
	FlattenSpikeLevel float64 // local energy above this is pulled down
	FlattenTargetRMS  float64 // global level correction target
}

// DefaultConfig returns the chain parameters used when the config file
// leaves them unset.
func DefaultConfig() Config {
	return Config{
		TargetRMS:         0.2,
		CompressThreshold: 0.3,
		CompressRatio:     2.0,
		FlattenSpikeLevel: 0.1,
		FlattenTargetRMS:  0.7,
	}
}

// Chain converts independently generated chunks into perceptually continuous
// audio. It keeps exactly one piece of state between chunks: the tail of the
// previously emitted chunk, used for cross-fading. Output is deterministic
// given the same inputs and chain state.
type Chain struct {
	config Config

	mu       sync.Mutex
	prevTail []float64
}

// NewChain creates a smoothing chain. Zero-valued config fields fall back to
// the documented defaults.
func NewChain(config Config) *Chain {
	def := DefaultConfig()
	if config.TargetRMS <= 0 {
		config.TargetRMS = def.TargetRMS
	}
	if config.CompressThreshold <= 0 {
		config.CompressThreshold = def.CompressThreshold
	}
	if config.CompressRatio <= 0 {
		config.CompressRatio = def.CompressRatio
	}
	if config.FlattenSpikeLevel <= 0 {
		config.FlattenSpikeLevel = def.FlattenSpikeLevel
	}
	if config.FlattenTargetRMS <= 0 {
		config.FlattenTargetRMS = def.FlattenTargetRMS
	}
	return &Chain{config: config}
}

// Process runs the full smoothing pipeline on an accepted chunk and returns
// a new chunk with the processed payload. The input chunk is not modified.
// Synthesized silence passes through the boundary stages only, so that
// silence stays silent instead of being normalized up to the target level.
func (c *Chain) Process(chunk *audio.Chunk) *audio.Chunk {
	c.mu.Lock()
	defer c.mu.Unlock()

	samples := bytesToFloats(chunk.Payload)
	rate := chunk.SampleRate

	c.edgeDeclick(samples, rate)
	c.crossfadeWithPrevTail(samples, rate)
	c.softFade(samples, rate)

	if !chunk.Synthesized {
		c.normalizeLoudness(samples)
		c.compress(samples)
		c.flattenEnergy(samples, rate)
	}

	c.storeTail(samples, rate)

	out := *chunk
	out.Payload = floatsToBytes(samples)
	return &out
}

// Reset clears the stored tail on a stream reset so the first chunk of a new
// stream is not blended with stale audio.
func (c *Chain) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prevTail = nil
}

// edgeDeclick applies a short linear fade at the very start and end of the
// chunk to remove boundary discontinuities.
func (c *Chain) edgeDeclick(samples []float64, rate int) {
	n := msToSamples(declickMS, rate)
	if n > len(samples)/2 {
		n = len(samples) / 2
	}
	for i := 0; i < n; i++ {
		w := float64(i) / float64(n)
		samples[i] *= w
		samples[len(samples)-1-i] *= w
	}
}

// crossfadeWithPrevTail blends the head of the new chunk with the stored
// tail of the previous one: fade-out on the tail, fade-in on the head,
// summed and clipped.
func (c *Chain) crossfadeWithPrevTail(samples []float64, rate int) {
	if len(c.prevTail) == 0 || len(samples) == 0 {
		return
	}

	n := msToSamples(crossfadeMaxMS, rate)
	if shorter := min(len(c.prevTail), len(samples)) / 4; shorter < n {
		n = shorter
	}
	if n == 0 {
		return
	}

	for i := 0; i < n; i++ {
		w := float64(i) / float64(n)
		samples[i] = clip(c.prevTail[i]*(1-w) + samples[i]*w)
	}
}

// softFade applies quadratic fade-in/fade-out envelopes at both boundaries.
// Chunks shorter than softFadeMinSamples are left alone.
func (c *Chain) softFade(samples []float64, rate int) {
	if len(samples) < softFadeMinSamples {
		return
	}
	n := msToSamples(softFadeMS, rate)
	if n > len(samples)/2 {
		n = len(samples) / 2
	}
	for i := 0; i < n; i++ {
		w := float64(i) / float64(n)
		env := w * w
		samples[i] *= env
		samples[len(samples)-1-i] *= env
	}
}

// normalizeLoudness applies a bounded gain toward the target RMS, then a
// limiting gain if the resulting peak exceeds 95% of full scale.
func (c *Chain) normalizeLoudness(samples []float64) {
	r := rms(samples)
	if r < 0.001 {
		return
	}

	gain := c.config.TargetRMS / r
	if gain < 0.1 {
		gain = 0.1
	}
	if gain > 3.0 {
		gain = 3.0
	}

	peak := 0.0
	for i := range samples {
		samples[i] *= gain
		if a := math.Abs(samples[i]); a > peak {
			peak = a
		}
	}

	if peak > 0.95 {
		limit := 0.95 / peak
		for i := range samples {
			samples[i] *= limit
		}
	}
}

// compress applies gentle soft-knee compression above the threshold,
// symmetric for positive and negative excursions.
func (c *Chain) compress(samples []float64) {
	threshold := c.config.CompressThreshold
	ratio := c.config.CompressRatio
	for i, s := range samples {
		a := math.Abs(s)
		if a <= threshold {
			continue
		}
		compressed := threshold + (a-threshold)/ratio
		if s < 0 {
			compressed = -compressed
		}
		samples[i] = compressed
	}
}

// flattenEnergy pulls local energy spikes toward a ceiling using a sliding
// RMS window, then applies a single bounded global correction toward the
// flattening target.
func (c *Chain) flattenEnergy(samples []float64, rate int) {
	window := msToSamples(flattenWindowMS, rate)
	if window < 1 {
		window = 1
	}

	flattened := make([]float64, len(samples))
	copy(flattened, samples)

	for start := 0; start < len(samples); start += window {
		end := start + window
		if end > len(samples) {
			end = len(samples)
		}
		local := rms(samples[start:end])
		if local <= c.config.FlattenSpikeLevel {
			continue
		}
		gain := 0.15 / math.Sqrt(local)
		if gain > 1.5 {
			gain = 1.5
		}
		for i := start; i < end; i++ {
			flattened[i] = samples[i] * gain
		}
	}

	r := rms(flattened)
	if r > 0 {
		gain := c.config.FlattenTargetRMS / r
		if gain < 0.5 {
			gain = 0.5
		}
		if gain > 2.0 {
			gain = 2.0
		}
		for i := range flattened {
			flattened[i] = clip(flattened[i] * gain)
		}
	}

	copy(samples, flattened)
}

// storeTail replaces the cross-fade state with the tail of the chunk that
// was just processed.
func (c *Chain) storeTail(samples []float64, rate int) {
	n := msToSamples(crossfadeMaxMS, rate)
	if n > len(samples) {
		n = len(samples)
	}
	tail := make([]float64, n)
	copy(tail, samples[len(samples)-n:])
	c.prevTail = tail
}

func rms(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func msToSamples(ms, rate int) int {
	return rate * ms / 1000
}
