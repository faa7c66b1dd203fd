// Package server implements the HTTP monitoring surface for the stream client.
// It exposes pipeline health, state, statistics, configuration, and Prometheus
// metrics endpoints for the host application.
package server
