package packet

import (
	"errors"
	"fmt"
)

// ErrOutOfRange reports a window index outside the buffer's valid range.
var ErrOutOfRange = errors.New("window index out of range")

// Buffer is one package of the corpus: every retained sequence decoded and
// concatenated into a single contiguous sample arena, with speaker and
// sequence boundaries recorded as cumulative sample counts. A Buffer is
// immutable once built and may be read concurrently without locking.
type Buffer struct {
	data []float32

	// Cumulative sample counts. Both start at 0, are strictly
	// increasing, and end at len(data).
	speakerOffsets []int64
	seqOffsets     []int64

	// Speaker id of each speaker segment, parallel to the segments of
	// speakerOffsets.
	speakerIDs []int

	// Names of retained sequences, parallel to the segments of seqOffsets.
	seqNames []string

	sizeWindow int
	skipped    int

	phoneLabels []int32
	phoneStep   int
	wordLabels  []int32
	wordStep    int
}

// Item is one training example: a fixed window of samples plus its
// speaker, sequence and optional label annotations.
type Item struct {
	Window  []float32
	Speaker int
	SeqIdx  int
	Phones  []int32
	Words   []int32
}

// Size returns the number of samples in the buffer.
func (b *Buffer) Size() int64 {
	return int64(len(b.data))
}

// SizeWindow returns the window length items are fetched at.
func (b *Buffer) SizeWindow() int {
	return b.sizeWindow
}

// Skipped returns the number of sequences dropped during assembly.
func (b *Buffer) Skipped() int {
	return b.skipped
}

// NSequences returns the number of sequences retained in the buffer.
func (b *Buffer) NSequences() int {
	return len(b.seqNames)
}

// SeqName returns the name of the i-th retained sequence.
func (b *Buffer) SeqName(i int) string {
	return b.seqNames[i]
}

// SpeakerOffsets returns the speaker boundary offsets. The slice is shared
// and must not be modified.
func (b *Buffer) SpeakerOffsets() []int64 {
	return b.speakerOffsets
}

// SequenceOffsets returns the sequence boundary offsets. The slice is
// shared and must not be modified.
func (b *Buffer) SequenceOffsets() []int64 {
	return b.seqOffsets
}

// Window returns the sizeWindow-length slice of samples starting at idx.
// The slice aliases the buffer and must be treated as read-only.
func (b *Buffer) Window(idx int64) ([]float32, error) {
	if idx < 0 || idx+int64(b.sizeWindow) > int64(len(b.data)) {
		return nil, fmt.Errorf("%w: idx=%d window=%d size=%d", ErrOutOfRange, idx, b.sizeWindow, len(b.data))
	}
	return b.data[idx : idx+int64(b.sizeWindow)], nil
}

// SpeakerAt returns the speaker id owning the sample at idx.
func (b *Buffer) SpeakerAt(idx int64) int {
	return b.speakerIDs[searchSegment(b.speakerOffsets, idx)]
}

// SequenceAt returns the index of the sequence owning the sample at idx.
func (b *Buffer) SequenceAt(idx int64) int {
	return searchSegment(b.seqOffsets, idx)
}

// PhoneLabels returns the phone labels covering the window at idx, or nil
// when no phone track is configured.
func (b *Buffer) PhoneLabels(idx int64) []int32 {
	if b.phoneStep == 0 {
		return nil
	}
	return windowLabels(b.phoneLabels, idx, b.phoneStep, b.sizeWindow)
}

// WordLabels returns the word labels covering the window at idx, or nil
// when no word track is configured.
func (b *Buffer) WordLabels(idx int64) []int32 {
	if b.wordStep == 0 {
		return nil
	}
	return windowLabels(b.wordLabels, idx, b.wordStep, b.sizeWindow)
}

// Item fetches the window at idx with all its annotations.
func (b *Buffer) Item(idx int64) (Item, error) {
	window, err := b.Window(idx)
	if err != nil {
		return Item{}, err
	}
	return Item{
		Window:  window,
		Speaker: b.SpeakerAt(idx),
		SeqIdx:  b.SequenceAt(idx),
		Phones:  b.PhoneLabels(idx),
		Words:   b.WordLabels(idx),
	}, nil
}

// windowLabels slices the flat label track covering sizeWindow samples
// starting at flat sample index idx, clamped to the track's end.
func windowLabels(labels []int32, idx int64, step, sizeWindow int) []int32 {
	start := idx / int64(step)
	count := int64(sizeWindow / step)
	end := start + count
	if end > int64(len(labels)) {
		end = int64(len(labels))
	}
	if start >= end {
		return nil
	}
	return labels[start:end]
}

// searchSegment returns the largest index i such that
// offsets[i] <= idx < offsets[i+1], for ascending offsets starting at 0.
// Iterative binary halving, O(log n).
func searchSegment(offsets []int64, idx int64) int {
	lo, hi := 0, len(offsets)-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if offsets[mid] > idx {
			hi = mid
		} else {
			lo = mid
		}
	}
	return lo
}
