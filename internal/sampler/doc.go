// Package sampler generates batches of window start indices over one
// loaded buffer. Four strategies are supported: uniform random, sequential
// strided, and grouped by speaker or sequence, the grouped kinds
// guaranteeing that no batch mixes two groups.
package sampler
