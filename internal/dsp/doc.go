// Package dsp implements the smoothing chain that turns independently
// generated translation chunks into perceptually continuous audio: boundary
// declicking, cross-fading, soft fades, loudness normalization, gentle
// compression, and energy flattening.
package dsp
