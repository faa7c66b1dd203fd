package audio

import (
	"fmt"
	"math"
	"sync"
)

// Corruption reason codes
const (
	CorruptEmpty      = "EMPTY_PAYLOAD"
	CorruptOddLength  = "ODD_BYTE_LENGTH"
	CorruptTooSmall   = "BELOW_MIN_SIZE"
	CorruptTooLarge   = "ABOVE_MAX_SIZE"
	CorruptMostlyZero = "EXCESSIVE_ZERO_SAMPLES"
	CorruptRMSSpike   = "RMS_DEVIATION"
)

// CorruptionError describes why a chunk failed validation. A corrupt verdict
// is a normal, expected outcome: the caller substitutes silence of matching
// duration and records a metric, it never halts the pipeline.
type CorruptionError struct {
	Code   string
	Detail string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupt chunk: %s (%s)", e.Code, e.Detail)
}

// ValidatorConfig holds the integrity-check thresholds. The zero-sample and
// RMS-spike thresholds are empirical product decisions, so they are
// configurable rather than hard constants.
type ValidatorConfig struct {
	MinChunkBytes   int     // smallest acceptable payload
	MaxChunkBytes   int     // largest acceptable payload
	ZeroSampleRatio float64 // fraction of exactly-zero samples treated as corrupt
	RMSSpikeFactor  float64 // max allowed deviation from the rolling average RMS
	RMSHistory      int     // number of accepted chunks in the rolling average
}

// DefaultValidatorConfig returns the thresholds used when the config file
// leaves them unset.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MinChunkBytes:   2,
		MaxChunkBytes:   1 << 20,
		ZeroSampleRatio: 0.95,
		RMSSpikeFactor:  10.0,
		RMSHistory:      16,
	}
}

// Validator is a stateless-per-chunk PCM integrity checker with one piece of
// cross-chunk state: a rolling average RMS over the last accepted chunks,
// used to flag implausible level spikes.
type Validator struct {
	config ValidatorConfig

	mu         sync.Mutex
	recentRMS  []float64
	nextSlot   int
	historyLen int
}

// NewValidator creates a validator. Zero-valued config fields fall back to
// the documented defaults.
func NewValidator(config ValidatorConfig) *Validator {
	def := DefaultValidatorConfig()
	if config.MinChunkBytes <= 0 {
		config.MinChunkBytes = def.MinChunkBytes
	}
	if config.MaxChunkBytes <= 0 {
		config.MaxChunkBytes = def.MaxChunkBytes
	}
	if config.ZeroSampleRatio <= 0 {
		config.ZeroSampleRatio = def.ZeroSampleRatio
	}
	if config.RMSSpikeFactor <= 0 {
		config.RMSSpikeFactor = def.RMSSpikeFactor
	}
	if config.RMSHistory <= 0 {
		config.RMSHistory = def.RMSHistory
	}
	return &Validator{
		config:    config,
		recentRMS: make([]float64, config.RMSHistory),
	}
}

// Validate checks a PCM16 payload and returns nil if it is acceptable, or a
// *CorruptionError describing the first failed check. Accepted chunks feed
// the rolling RMS average. The payload is never mutated.
func (v *Validator) Validate(payload []byte) error {
	if len(payload) == 0 {
		return &CorruptionError{Code: CorruptEmpty, Detail: "zero-length payload"}
	}
	if len(payload)%2 != 0 {
		return &CorruptionError{
			Code:   CorruptOddLength,
			Detail: fmt.Sprintf("payload length %d is not sample-aligned", len(payload)),
		}
	}
	if len(payload) < v.config.MinChunkBytes {
		return &CorruptionError{
			Code:   CorruptTooSmall,
			Detail: fmt.Sprintf("payload %d bytes, minimum %d", len(payload), v.config.MinChunkBytes),
		}
	}
	if len(payload) > v.config.MaxChunkBytes {
		return &CorruptionError{
			Code:   CorruptTooLarge,
			Detail: fmt.Sprintf("payload %d bytes, maximum %d", len(payload), v.config.MaxChunkBytes),
		}
	}

	numSamples := len(payload) / BytesPerSample
	zeroCount := 0
	var sumSquares float64

	for i := 0; i < numSamples; i++ {
		s := int16(payload[i*2]) | int16(payload[i*2+1])<<8
		if s == 0 {
			zeroCount++
		}
		f := float64(s) / 32768.0
		sumSquares += f * f
	}

	zeroRatio := float64(zeroCount) / float64(numSamples)
	if zeroRatio > v.config.ZeroSampleRatio {
		return &CorruptionError{
			Code:   CorruptMostlyZero,
			Detail: fmt.Sprintf("%.1f%% zero samples exceeds %.1f%% threshold", zeroRatio*100, v.config.ZeroSampleRatio*100),
		}
	}

	rms := math.Sqrt(sumSquares / float64(numSamples))

	v.mu.Lock()
	defer v.mu.Unlock()

	if avg := v.rollingAverage(); avg > 0 && rms > 0 {
		ratio := rms / avg
		if ratio > v.config.RMSSpikeFactor || ratio < 1/v.config.RMSSpikeFactor {
			return &CorruptionError{
				Code:   CorruptRMSSpike,
				Detail: fmt.Sprintf("chunk RMS %.4f deviates %.1fx from rolling average %.4f", rms, ratio, avg),
			}
		}
	}

	v.recentRMS[v.nextSlot] = rms
	v.nextSlot = (v.nextSlot + 1) % len(v.recentRMS)
	if v.historyLen < len(v.recentRMS) {
		v.historyLen++
	}

	return nil
}

// Reset clears the rolling RMS history for a fresh stream.
func (v *Validator) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.historyLen = 0
	v.nextSlot = 0
}

func (v *Validator) rollingAverage() float64 {
	if v.historyLen == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < v.historyLen; i++ {
		sum += v.recentRMS[i]
	}
	return sum / float64(v.historyLen)
}
