// Package stream keeps one corpus package resident while the next loads in
// the background, and drives seeded batch iteration over the resident
// buffer.
package stream
