// Package wave wraps WAV decoding for the loader: full decode to mono
// float32 and a cheap header-only frame count probe used by the planner.
package wave
