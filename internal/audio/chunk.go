package audio

import (
	"time"
)

// Default stream format: PCM16 mono at 16 kHz, matching the translation
// backend's output.
const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	BytesPerSample    = 2
)

// Chunk is one discrete unit of PCM16 mono audio with a session-scoped,
// strictly increasing sequence id. A chunk is immutable once created; the
// DSP chain produces a new chunk rather than mutating the payload in place.
type Chunk struct {
	SequenceID uint64
	Payload    []byte // PCM16 little-endian mono
	CapturedAt time.Time
	SampleRate int
	Channels   int

	// Synthesized marks chunks the client fabricated (gap fill, underrun
	// masking) rather than received from the server.
	Synthesized bool
}

// NewChunk creates a chunk for a received payload.
func NewChunk(seq uint64, payload []byte, capturedAt time.Time, sampleRate, channels int) *Chunk {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if channels <= 0 {
		channels = DefaultChannels
	}
	return &Chunk{
		SequenceID: seq,
		Payload:    payload,
		CapturedAt: capturedAt,
		SampleRate: sampleRate,
		Channels:   channels,
	}
}

// Silence creates a synthesized silence chunk of numSamples samples.
func Silence(seq uint64, numSamples, sampleRate int) *Chunk {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Chunk{
		SequenceID:  seq,
		Payload:     make([]byte, numSamples*BytesPerSample),
		CapturedAt:  time.Now(),
		SampleRate:  sampleRate,
		Channels:    DefaultChannels,
		Synthesized: true,
	}
}

// NumSamples returns the number of PCM16 samples in the payload.
func (c *Chunk) NumSamples() int {
	return len(c.Payload) / BytesPerSample
}

// Duration returns the playback duration of the chunk.
func (c *Chunk) Duration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(c.NumSamples()) * time.Second / time.Duration(c.SampleRate)
}
