// Package config handles loading and validation of the YAML configuration
// that drives corpus discovery, window sampling and the streaming pipeline.
package config
