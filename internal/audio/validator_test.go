package audio

import (
	"errors"
	"math"
	"testing"
	"time"
)

// pcmFromSamples packs int16 samples into little-endian bytes.
func pcmFromSamples(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(uint16(s) >> 8)
	}
	return data
}

// sineWave generates numSamples of a sine at the given normalized amplitude.
func sineWave(numSamples int, amplitude float64) []int16 {
	samples := make([]int16, numSamples)
	for i := range samples {
		samples[i] = int16(amplitude * 32000 * math.Sin(2*math.Pi*float64(i)/64))
	}
	return samples
}

func corruptionCode(t *testing.T, err error) string {
	t.Helper()
	if err == nil {
		t.Fatal("Expected corruption error, got nil")
	}
	var ce *CorruptionError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected *CorruptionError, got %T", err)
	}
	return ce.Code
}

func TestValidateAcceptsNormalAudio(t *testing.T) {
	v := NewValidator(ValidatorConfig{})

	payload := pcmFromSamples(sineWave(320, 0.3))
	if err := v.Validate(payload); err != nil {
		t.Errorf("Expected normal audio to validate, got %v", err)
	}
}

func TestValidateStructuralChecks(t *testing.T) {
	v := NewValidator(ValidatorConfig{MinChunkBytes: 64, MaxChunkBytes: 1024})

	tests := []struct {
		name    string
		payload []byte
		code    string
	}{
		{"empty", []byte{}, CorruptEmpty},
		{"odd length", make([]byte, 65), CorruptOddLength},
		{"single byte", make([]byte, 1), CorruptOddLength},
		{"below minimum", pcmFromSamples(sineWave(16, 0.3)), CorruptTooSmall},
		{"above maximum", pcmFromSamples(sineWave(2048, 0.3)), CorruptTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := corruptionCode(t, v.Validate(tt.payload))
			if code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, code)
			}
		})
	}
}

func TestValidateRejectsMostlyZeroPayload(t *testing.T) {
	v := NewValidator(ValidatorConfig{})

	// 97% zero samples with a few non-zero values sprinkled in
	samples := make([]int16, 1000)
	for i := 0; i < 30; i++ {
		samples[i*33] = 5000
	}
	code := corruptionCode(t, v.Validate(pcmFromSamples(samples)))
	if code != CorruptMostlyZero {
		t.Errorf("Expected code %s, got %s", CorruptMostlyZero, code)
	}
}

func TestValidateRejectsRMSSpike(t *testing.T) {
	v := NewValidator(ValidatorConfig{RMSSpikeFactor: 10, RMSHistory: 4})

	// Establish a rolling average with quiet chunks
	quiet := pcmFromSamples(sineWave(320, 0.02))
	for i := 0; i < 4; i++ {
		if err := v.Validate(quiet); err != nil {
			t.Fatalf("Quiet chunk %d failed validation: %v", i, err)
		}
	}

	// A chunk ~40x louder than the average should be rejected
	loud := pcmFromSamples(sineWave(320, 0.8))
	code := corruptionCode(t, v.Validate(loud))
	if code != CorruptRMSSpike {
		t.Errorf("Expected code %s, got %s", CorruptRMSSpike, code)
	}

	// The rejected chunk must not have polluted the rolling average
	if err := v.Validate(quiet); err != nil {
		t.Errorf("Expected quiet chunk to still validate after spike, got %v", err)
	}
}

func TestValidateResetClearsHistory(t *testing.T) {
	v := NewValidator(ValidatorConfig{RMSSpikeFactor: 10, RMSHistory: 4})

	quiet := pcmFromSamples(sineWave(320, 0.02))
	for i := 0; i < 4; i++ {
		if err := v.Validate(quiet); err != nil {
			t.Fatalf("Quiet chunk failed validation: %v", err)
		}
	}

	v.Reset()

	// After a reset there is no average to deviate from
	loud := pcmFromSamples(sineWave(320, 0.8))
	if err := v.Validate(loud); err != nil {
		t.Errorf("Expected loud chunk to validate after reset, got %v", err)
	}
}

func TestSilenceChunk(t *testing.T) {
	c := Silence(9, 1600, 16000)

	if c.SequenceID != 9 {
		t.Errorf("Expected sequence 9, got %d", c.SequenceID)
	}
	if c.NumSamples() != 1600 {
		t.Errorf("Expected 1600 samples, got %d", c.NumSamples())
	}
	if c.Duration() != 100*time.Millisecond {
		t.Errorf("Expected 100ms duration, got %v", c.Duration())
	}
	if !c.Synthesized {
		t.Error("Expected silence chunk to be marked synthesized")
	}
	for i, b := range c.Payload {
		if b != 0 {
			t.Fatalf("Expected all-zero payload, byte %d is %d", i, b)
		}
	}
}

func TestChunkDuration(t *testing.T) {
	c := NewChunk(1, make([]byte, 6400), time.Now(), 16000, 1)
	if c.Duration() != 200*time.Millisecond {
		t.Errorf("Expected 200ms for 3200 samples at 16kHz, got %v", c.Duration())
	}
}
