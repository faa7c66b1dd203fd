package dsp

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/P-yoganjaneyulu/float/internal/audio"
)

func sineChunk(seq uint64, numSamples int, amplitude float64) *audio.Chunk {
	payload := make([]byte, numSamples*2)
	for i := 0; i < numSamples; i++ {
		s := int16(amplitude * 32000 * math.Sin(2*math.Pi*float64(i)/80))
		payload[i*2] = byte(s)
		payload[i*2+1] = byte(uint16(s) >> 8)
	}
	return audio.NewChunk(seq, payload, time.Now(), 16000, 1)
}

func payloadRMS(payload []byte) float64 {
	n := len(payload) / 2
	var sum float64
	for i := 0; i < n; i++ {
		s := int16(payload[i*2]) | int16(payload[i*2+1])<<8
		f := float64(s) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(n))
}

func TestProcessIsDeterministic(t *testing.T) {
	first := sineChunk(0, 3200, 0.3)
	second := sineChunk(1, 3200, 0.25)

	chainA := NewChain(Config{})
	outA1 := chainA.Process(first)
	outA2 := chainA.Process(second)

	chainB := NewChain(Config{})
	outB1 := chainB.Process(first)
	outB2 := chainB.Process(second)

	if !bytes.Equal(outA1.Payload, outB1.Payload) {
		t.Error("Expected identical output for first chunk across fresh chains")
	}
	if !bytes.Equal(outA2.Payload, outB2.Payload) {
		t.Error("Expected identical output for second chunk across fresh chains")
	}
}

func TestProcessDoesNotMutateInput(t *testing.T) {
	chunk := sineChunk(0, 3200, 0.3)
	original := make([]byte, len(chunk.Payload))
	copy(original, chunk.Payload)

	NewChain(Config{}).Process(chunk)

	if !bytes.Equal(chunk.Payload, original) {
		t.Error("Expected Process to leave the input payload unchanged")
	}
}

func TestProcessFadesChunkBoundaries(t *testing.T) {
	chunk := sineChunk(0, 3200, 0.3)
	out := NewChain(Config{}).Process(chunk)

	// Both the declick and the quadratic fade zero the very first and last
	// samples of the chunk.
	firstSample := int16(out.Payload[0]) | int16(out.Payload[1])<<8
	n := len(out.Payload)
	lastSample := int16(out.Payload[n-2]) | int16(out.Payload[n-1])<<8

	if firstSample != 0 {
		t.Errorf("Expected first sample faded to 0, got %d", firstSample)
	}
	if lastSample != 0 {
		t.Errorf("Expected last sample faded to 0, got %d", lastSample)
	}
}

func TestProcessNormalizesQuietAudio(t *testing.T) {
	quiet := sineChunk(0, 6400, 0.02)
	out := NewChain(Config{}).Process(quiet)

	inRMS := payloadRMS(quiet.Payload)
	outRMS := payloadRMS(out.Payload)

	if outRMS <= inRMS {
		t.Errorf("Expected quiet audio to be boosted: in RMS %.4f, out RMS %.4f", inRMS, outRMS)
	}
}

func TestProcessBoundsPeaks(t *testing.T) {
	loud := sineChunk(0, 6400, 0.99)
	out := NewChain(Config{}).Process(loud)

	n := len(out.Payload) / 2
	for i := 0; i < n; i++ {
		s := int16(out.Payload[i*2]) | int16(out.Payload[i*2+1])<<8
		if s == math.MaxInt16 || s == math.MinInt16 {
			t.Fatalf("Sample %d hit full scale, expected limited output", i)
		}
	}
}

func TestProcessLeavesSilenceSilent(t *testing.T) {
	silence := audio.Silence(3, 3200, 16000)
	out := NewChain(Config{}).Process(silence)

	for i, b := range out.Payload {
		if b != 0 {
			t.Fatalf("Expected synthesized silence to stay silent, byte %d is %d", i, b)
		}
	}
}

func TestShortChunkSkipsSoftFade(t *testing.T) {
	// 100 samples is below the soft-fade minimum; the chain must still
	// produce output of the same length without panicking.
	short := sineChunk(0, 100, 0.3)
	out := NewChain(Config{}).Process(short)

	if len(out.Payload) != len(short.Payload) {
		t.Errorf("Expected output length %d, got %d", len(short.Payload), len(out.Payload))
	}
}

func TestResetClearsCrossfadeState(t *testing.T) {
	first := sineChunk(0, 3200, 0.3)
	second := sineChunk(1, 3200, 0.25)

	// Chain with reset in between behaves as if the second chunk were the
	// first of a new stream.
	chainA := NewChain(Config{})
	chainA.Process(first)
	chainA.Reset()
	outA := chainA.Process(second)

	chainB := NewChain(Config{})
	outB := chainB.Process(second)

	if !bytes.Equal(outA.Payload, outB.Payload) {
		t.Error("Expected post-reset output to match a fresh chain")
	}
}

func TestCrossfadeChangesChunkHead(t *testing.T) {
	first := sineChunk(0, 3200, 0.3)
	second := sineChunk(1, 3200, 0.25)

	withTail := NewChain(Config{})
	withTail.Process(first)
	blended := withTail.Process(second)

	fresh := NewChain(Config{}).Process(second)

	if bytes.Equal(blended.Payload, fresh.Payload) {
		t.Error("Expected stored tail to influence the following chunk")
	}
}
