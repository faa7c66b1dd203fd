// Package sendqueue provides the bounded outbound chunk buffer with
// acknowledgment tracking, retransmission on reconnect, and hysteresis
// backpressure toward the capture source.
package sendqueue
