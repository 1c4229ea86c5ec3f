// Package planner partitions the shuffled corpus catalog into
// memory-bounded packages, one chunk plan per epoch. Sequence lengths are
// probed in parallel without decoding audio.
package planner
