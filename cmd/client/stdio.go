package main

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/P-yoganjaneyulu/float/internal/config"
)

// StdinSource captures fixed-duration PCM16 frames from a byte stream,
// typically a microphone pipe (sox/ffmpeg/arecord) on stdin.
type StdinSource struct {
	reader    io.Reader
	frameSize int
}

// NewStdinSource returns a capture source reading chunk-sized frames.
func NewStdinSource(r io.Reader, cfg config.AudioConfig) *StdinSource {
	samples := int(cfg.ChunkDuration * float64(cfg.SampleRate))
	return &StdinSource{
		reader:    r,
		frameSize: samples * cfg.BitDepth / 8,
	}
}

// Read blocks until a full frame is available. A short final frame is
// returned as-is before io.EOF.
func (s *StdinSource) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame := make([]byte, s.frameSize)
	n, err := io.ReadFull(s.reader, frame)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) && n > 0 {
			return frame[:n], nil
		}
		return nil, io.EOF
	}
	return frame, nil
}

// StreamSink writes played PCM16 frames to a byte stream, typically a
// speaker pipe (sox/ffmpeg/aplay) on stdout.
type StreamSink struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewStreamSink returns a playout sink backed by the given writer.
func NewStreamSink(w io.Writer) *StreamSink {
	return &StreamSink{writer: w}
}

// Write emits one frame. The playout engine paces calls at the audio clock.
func (s *StreamSink) Write(ctx context.Context, pcm []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.writer.Write(pcm)
	return err
}
