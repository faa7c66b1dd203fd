// Package session tracks the identity and cumulative statistics of one
// streaming conversation with the translation server.
package session
