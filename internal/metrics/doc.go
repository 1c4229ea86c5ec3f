// Package metrics defines the Prometheus instrumentation for the loader.
package metrics
