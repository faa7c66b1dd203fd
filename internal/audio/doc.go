// Package audio defines the PCM chunk data type and the integrity validator
// that guards the playout path against corrupt or implausible payloads.
package audio
