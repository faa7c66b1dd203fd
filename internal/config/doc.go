// Package config provides configuration loading and validation for the FLOAT stream client.
// It handles YAML-based configuration with struct validation covering the connection,
// playout, corruption detection, smoothing, and send queue parameters.
package config
