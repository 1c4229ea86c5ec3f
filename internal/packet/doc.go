// Package packet loads one corpus package at a time: sequences are
// decoded in parallel, concatenated into a single immutable sample buffer,
// and indexed by cumulative speaker and sequence boundaries so that any
// flat sample index resolves to its speaker, sequence and aligned labels.
package packet
