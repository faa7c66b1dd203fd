// Package protocol defines the JSON message formats exchanged with the
// translation backend over the WebSocket channel, including parsing,
// classification, and stable error codes.
package protocol
