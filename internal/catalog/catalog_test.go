package catalog

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeCorpus lays out fake audio files under a temp root and returns it.
func writeCorpus(t *testing.T, paths ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, p := range paths {
		full := filepath.Join(root, p)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}
		if err := os.WriteFile(full, []byte("RIFF"), 0644); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
	return root
}

func TestDiscoverSpeakerLevels(t *testing.T) {
	root := writeCorpus(t,
		"spk1/a.wav",
		"spk1/b.wav",
		"spk2/sess1/c.wav",
		"spk2/sess2/d.wav",
		"notes.txt",
	)

	tests := []struct {
		name         string
		speakerLevel int
		wantSpeakers int
	}{
		{name: "no speaker distinction", speakerLevel: 0, wantSpeakers: 1},
		{name: "first directory level", speakerLevel: 1, wantSpeakers: 2},
		{name: "two directory levels", speakerLevel: 2, wantSpeakers: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat, err := Discover(testLogger(), []string{root}, ".wav", tt.speakerLevel, "")
			if err != nil {
				t.Fatalf("Discover failed: %v", err)
			}
			if len(cat.Refs) != 4 {
				t.Errorf("Expected 4 sequences, got %d", len(cat.Refs))
			}
			if cat.NSpeakers() != tt.wantSpeakers {
				t.Errorf("Expected %d speakers, got %d", tt.wantSpeakers, cat.NSpeakers())
			}
			for _, ref := range cat.Refs {
				if ref.Speaker < 0 || ref.Speaker >= cat.NSpeakers() {
					t.Errorf("Speaker id %d outside registry of %d", ref.Speaker, cat.NSpeakers())
				}
			}
			if cat.FromCache {
				t.Error("Fresh walk must not report a cache hit")
			}
		})
	}
}

func TestDiscoverEmptyCorpus(t *testing.T) {
	root := writeCorpus(t, "notes.txt")

	if _, err := Discover(testLogger(), []string{root}, ".wav", 1, ""); err == nil {
		t.Error("Expected an error for a corpus without audio files")
	}
}

func TestDiscoverCacheRoundTrip(t *testing.T) {
	root := writeCorpus(t, "spk1/a.wav", "spk2/b.wav")
	cachePath := filepath.Join(t.TempDir(), "catalog.cache")

	first, err := Discover(testLogger(), []string{root}, ".wav", 1, cachePath)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if first.FromCache {
		t.Error("First discovery must walk the corpus")
	}

	// Remove the corpus: only the cache can serve the second call.
	if err := os.RemoveAll(root); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}

	second, err := Discover(testLogger(), []string{root}, ".wav", 1, cachePath)
	if err != nil {
		t.Fatalf("Cached discovery failed: %v", err)
	}
	if !second.FromCache {
		t.Error("Second discovery must be served by the cache")
	}
	if len(second.Refs) != len(first.Refs) || second.NSpeakers() != first.NSpeakers() {
		t.Errorf("Cache round trip altered the catalog: %d/%d refs, %d/%d speakers",
			len(second.Refs), len(first.Refs), second.NSpeakers(), first.NSpeakers())
	}
	for i := range first.Refs {
		if second.Refs[i] != first.Refs[i] {
			t.Errorf("Ref %d differs after round trip: %+v vs %+v", i, second.Refs[i], first.Refs[i])
		}
	}
}

func TestDiscoverCorruptCacheRebuilds(t *testing.T) {
	root := writeCorpus(t, "spk1/a.wav")
	cachePath := filepath.Join(t.TempDir(), "catalog.cache")
	if err := os.WriteFile(cachePath, []byte("not msgpack"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cat, err := Discover(testLogger(), []string{root}, ".wav", 1, cachePath)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if cat.FromCache {
		t.Error("Corrupt cache must force a fresh walk")
	}
	if len(cat.Refs) != 1 {
		t.Errorf("Expected 1 sequence, got %d", len(cat.Refs))
	}
}

func TestShuffleDeterministic(t *testing.T) {
	refs := make([]SequenceRef, 20)
	for i := range refs {
		refs[i] = SequenceRef{Speaker: i % 3, Path: filepath.Join("/corpus", string(rune('a'+i))+".wav")}
	}

	a := Shuffle(refs, 767543)
	b := Shuffle(refs, 767543)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Same seed produced different orders at %d", i)
		}
	}

	// Input must stay untouched and the output must be a permutation.
	seen := make(map[string]bool)
	for _, ref := range a {
		seen[ref.Path] = true
	}
	for i, ref := range refs {
		if !seen[ref.Path] {
			t.Errorf("Sequence %s lost in shuffle", ref.Path)
		}
		if ref.Speaker != i%3 {
			t.Error("Shuffle modified its input")
		}
	}

	c := Shuffle(refs, 1)
	different := false
	for i := range a {
		if a[i] != c[i] {
			different = true
			break
		}
	}
	if !different {
		t.Error("Different seeds produced the same order")
	}
}

func TestStem(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{path: "/corpus/spk1/seq-01.wav", want: "seq-01"},
		{path: "seq.flac", want: "seq"},
		{path: "/corpus/noext", want: "noext"},
	}
	for _, tt := range tests {
		if got := Stem(tt.path); got != tt.want {
			t.Errorf("Stem(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
