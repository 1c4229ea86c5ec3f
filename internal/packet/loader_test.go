package packet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/markjosims/hCPC/internal/catalog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDecode serves synthetic waveforms keyed by sequence name. Every
// sample of a sequence carries the same value so buffer placement can be
// verified after concatenation.
func fakeDecode(lengths map[string]int, values map[string]float32) DecodeFunc {
	return func(path string) ([]float32, int, error) {
		name := catalog.Stem(path)
		n, ok := lengths[name]
		if !ok {
			return nil, 0, fmt.Errorf("unknown sequence %s", name)
		}
		samples := make([]float32, n)
		for i := range samples {
			samples[i] = values[name]
		}
		return samples, 16000, nil
	}
}

func refsFor(speakers map[string]int, names ...string) []catalog.SequenceRef {
	refs := make([]catalog.SequenceRef, 0, len(names))
	for _, name := range names {
		refs = append(refs, catalog.SequenceRef{Speaker: speakers[name], Path: "/corpus/" + name + ".wav"})
	}
	return refs
}

func TestLoadBuildsOffsets(t *testing.T) {
	lengths := map[string]int{"a1": 300, "a2": 200, "b1": 500}
	speakers := map[string]int{"a1": 0, "a2": 0, "b1": 1}
	values := map[string]float32{"a1": 0.1, "a2": 0.2, "b1": 0.3}

	// Refs deliberately out of layout order; the loader sorts by
	// (speaker, name).
	refs := refsFor(speakers, "b1", "a2", "a1")

	buf, err := Load(context.Background(), testLogger(), refs, Config{
		SizeWindow: 100,
		NSpeakers:  2,
		Workers:    2,
	}, fakeDecode(lengths, values))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if buf.Size() != 1000 {
		t.Errorf("Expected buffer size 1000, got %d", buf.Size())
	}

	wantSpeaker := []int64{0, 500, 1000}
	if got := buf.SpeakerOffsets(); !equalInt64(got, wantSpeaker) {
		t.Errorf("Expected speaker offsets %v, got %v", wantSpeaker, got)
	}

	wantSeq := []int64{0, 300, 500, 1000}
	if got := buf.SequenceOffsets(); !equalInt64(got, wantSeq) {
		t.Errorf("Expected sequence offsets %v, got %v", wantSeq, got)
	}

	// Layout is a1 then a2 then b1; spot-check sample ownership.
	window, err := buf.Window(0)
	if err != nil {
		t.Fatalf("Window(0) failed: %v", err)
	}
	if window[0] != 0.1 {
		t.Errorf("Expected first window to hold a1 samples, got %f", window[0])
	}
	if buf.SpeakerAt(499) != 0 || buf.SpeakerAt(500) != 1 {
		t.Errorf("Speaker boundary misplaced: SpeakerAt(499)=%d SpeakerAt(500)=%d",
			buf.SpeakerAt(499), buf.SpeakerAt(500))
	}
	if buf.SequenceAt(299) != 0 || buf.SequenceAt(300) != 1 || buf.SequenceAt(999) != 2 {
		t.Error("Sequence boundaries misplaced")
	}
	if buf.SeqName(2) != "b1" {
		t.Errorf("Expected third sequence b1, got %s", buf.SeqName(2))
	}
}

func TestOffsetsInvariants(t *testing.T) {
	lengths := map[string]int{"a1": 128, "a2": 64, "b1": 256, "c1": 32}
	speakers := map[string]int{"a1": 0, "a2": 0, "b1": 1, "c1": 2}
	refs := refsFor(speakers, "a1", "a2", "b1", "c1")

	buf, err := Load(context.Background(), testLogger(), refs, Config{
		SizeWindow: 16,
		NSpeakers:  3,
		Workers:    4,
	}, fakeDecode(lengths, map[string]float32{}))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	for _, offsets := range [][]int64{buf.SpeakerOffsets(), buf.SequenceOffsets()} {
		if offsets[0] != 0 {
			t.Errorf("Offsets must start at 0, got %d", offsets[0])
		}
		if offsets[len(offsets)-1] != buf.Size() {
			t.Errorf("Offsets must end at buffer size %d, got %d", buf.Size(), offsets[len(offsets)-1])
		}
		for i := 0; i+1 < len(offsets); i++ {
			if offsets[i] >= offsets[i+1] {
				t.Errorf("Offsets not strictly increasing at %d: %v", i, offsets)
			}
		}
	}
}

func TestLoadLabelSkipAndTruncate(t *testing.T) {
	lengths := map[string]int{"a1": 330, "a2": 200, "b1": 100}
	speakers := map[string]int{"a1": 0, "a2": 0, "b1": 1}
	refs := refsFor(speakers, "a1", "a2", "b1")

	// a1 has 3 labels at step 100: audio truncated 330 -> 300.
	// b1 is absent from the track and must be dropped entirely.
	phone := &catalog.LabelSet{
		Step: 100,
		BySeq: map[string][]int32{
			"a1": {5, 6, 7},
			"a2": {1, 2},
		},
		NumClasses: 8,
	}

	buf, err := Load(context.Background(), testLogger(), refs, Config{
		SizeWindow: 100,
		NSpeakers:  2,
		Workers:    2,
		Phone:      phone,
	}, fakeDecode(lengths, map[string]float32{}))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if buf.Size() != 500 {
		t.Errorf("Expected 300+200=500 samples after truncation and skip, got %d", buf.Size())
	}
	if buf.NSequences() != 2 {
		t.Errorf("Expected 2 retained sequences, got %d", buf.NSequences())
	}

	phones := buf.PhoneLabels(0)
	if len(phones) != 1 || phones[0] != 5 {
		t.Errorf("Expected phone labels [5] for first window, got %v", phones)
	}
	phones = buf.PhoneLabels(300)
	if len(phones) != 1 || phones[0] != 1 {
		t.Errorf("Expected phone labels [1] at a2 start, got %v", phones)
	}
}

func TestLoadUnknownSpeakerFatal(t *testing.T) {
	lengths := map[string]int{"a1": 100}
	refs := []catalog.SequenceRef{{Speaker: 7, Path: "/corpus/a1.wav"}}

	_, err := Load(context.Background(), testLogger(), refs, Config{
		SizeWindow: 10,
		NSpeakers:  2,
		Workers:    1,
	}, fakeDecode(lengths, nil))
	if err == nil {
		t.Fatal("Expected unknown speaker to be fatal")
	}
	if !strings.Contains(err.Error(), "registry") {
		t.Errorf("Expected registry error, got %v", err)
	}
}

func TestLoadDecodeErrorFatal(t *testing.T) {
	refs := refsFor(map[string]int{"a1": 0, "a2": 0}, "a1", "a2")
	decode := func(path string) ([]float32, int, error) {
		if strings.Contains(path, "a2") {
			return nil, 0, fmt.Errorf("corrupt file")
		}
		return make([]float32, 100), 16000, nil
	}

	_, err := Load(context.Background(), testLogger(), refs, Config{
		SizeWindow: 10,
		NSpeakers:  1,
		Workers:    2,
	}, decode)
	if err == nil {
		t.Fatal("Expected decode failure to abort the package load")
	}
}

func TestRoundTripLength(t *testing.T) {
	lengths := map[string]int{"a1": 257, "a2": 123, "b1": 999, "b2": 40}
	speakers := map[string]int{"a1": 0, "a2": 0, "b1": 1, "b2": 1}
	refs := refsFor(speakers, "a1", "a2", "b1", "b2")

	phone := &catalog.LabelSet{
		Step: 10,
		BySeq: map[string][]int32{
			"a1": make([]int32, 25), // truncates 257 -> 250
			"a2": make([]int32, 13), // 123 < 130, kept as-is
			"b1": make([]int32, 99), // truncates 999 -> 990
			"b2": make([]int32, 4),  // truncates 40 -> 40
		},
	}

	buf, err := Load(context.Background(), testLogger(), refs, Config{
		SizeWindow: 10,
		NSpeakers:  2,
		Workers:    3,
		Phone:      phone,
	}, fakeDecode(lengths, nil))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := int64(250 + 123 + 990 + 40)
	if buf.Size() != want {
		t.Errorf("Expected buffer size %d, got %d", want, buf.Size())
	}
	offsets := buf.SequenceOffsets()
	if offsets[len(offsets)-1] != want {
		t.Errorf("Trailing sequence offset %d does not match buffer size %d",
			offsets[len(offsets)-1], want)
	}
}

func TestItemAndBounds(t *testing.T) {
	lengths := map[string]int{"a1": 1000}
	refs := refsFor(map[string]int{"a1": 0}, "a1")

	buf, err := Load(context.Background(), testLogger(), refs, Config{
		SizeWindow: 100,
		NSpeakers:  1,
		Workers:    1,
	}, fakeDecode(lengths, map[string]float32{"a1": 0.5}))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	item, err := buf.Item(900)
	if err != nil {
		t.Fatalf("Item(900) failed: %v", err)
	}
	if len(item.Window) != 100 {
		t.Errorf("Expected window length 100, got %d", len(item.Window))
	}
	if item.Speaker != 0 || item.SeqIdx != 0 {
		t.Errorf("Expected speaker 0 sequence 0, got %d/%d", item.Speaker, item.SeqIdx)
	}

	tests := []struct {
		name string
		idx  int64
	}{
		{name: "negative index", idx: -1},
		{name: "window past end", idx: 901},
		{name: "index past end", idx: 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := buf.Item(tt.idx); !errors.Is(err, ErrOutOfRange) {
				t.Errorf("Expected ErrOutOfRange for idx %d, got %v", tt.idx, err)
			}
		})
	}
}

func TestSearchSegment(t *testing.T) {
	offsets := []int64{0, 10, 15, 40, 100}

	for idx := int64(0); idx < 100; idx++ {
		i := searchSegment(offsets, idx)
		if offsets[i] > idx || idx >= offsets[i+1] {
			t.Fatalf("searchSegment(%d) = %d violates offsets[i] <= idx < offsets[i+1]", idx, i)
		}
	}

	if got := searchSegment(offsets, 0); got != 0 {
		t.Errorf("Expected segment 0 for idx 0, got %d", got)
	}
	if got := searchSegment(offsets, 99); got != 3 {
		t.Errorf("Expected segment 3 for idx 99, got %d", got)
	}
}

func equalInt64(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
