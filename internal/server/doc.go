// Package server exposes the monitoring HTTP API: health, loader
// statistics, configuration and Prometheus metrics.
package server
