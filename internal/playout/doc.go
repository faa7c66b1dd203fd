// Package playout reconstructs in-order audio from an out-of-order arrival
// stream and drives real-time playback: a bounded reorder window with gap
// timeouts, an adaptive jitter-buffer threshold, and an engine state machine
// with underrun masking and a starvation ceiling.
package playout
