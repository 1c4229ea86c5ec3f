// Package catalog discovers the audio corpus on disk, maintains the
// speaker registry, and parses the label and filter files that select and
// annotate sequences. The catalog can be persisted to a cache file and is
// reshuffled deterministically at the start of every epoch.
package catalog
