// Package transport drives the WebSocket channel to the translation
// server: connection state machine with exponential backoff, keepalive,
// session handshake, and inbound message dispatch.
package transport
