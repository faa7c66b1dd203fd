// Package client assembles the streaming pipeline: capture feeds the
// reliable send queue and transport, inbound results flow through the
// playout engine to the output sink.
package client
