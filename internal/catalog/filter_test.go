package catalog

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func writeFilterFile(t *testing.T, names ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "filter.txt")
	if err := os.WriteFile(path, []byte(strings.Join(names, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	return path
}

func namedRefs(names ...string) []SequenceRef {
	refs := make([]SequenceRef, 0, len(names))
	for _, name := range names {
		refs = append(refs, SequenceRef{Speaker: 0, Path: "/corpus/" + name + ".wav"})
	}
	return refs
}

func TestFilterMatchesBasenames(t *testing.T) {
	refs := namedRefs("d", "a", "c", "b")
	path := writeFilterFile(t, "b", "d", "zz")

	got, err := Filter([]string{path}, refs, 0, 0)
	if err != nil {
		t.Fatalf("Filter failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 matches, got %d", len(got))
	}
	if got[0].Name() != "b" || got[1].Name() != "d" {
		t.Errorf("Expected [b d], got [%s %s]", got[0].Name(), got[1].Name())
	}
}

func TestFilterNoMatches(t *testing.T) {
	refs := namedRefs("a", "b")
	path := writeFilterFile(t, "x", "y")

	got, err := Filter([]string{path}, refs, 0, 0)
	if err != nil {
		t.Fatalf("Filter failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected no matches, got %d", len(got))
	}
}

func TestFilterPercentage(t *testing.T) {
	names := make([]string, 100)
	for i := range names {
		names[i] = "seq" + strconv.Itoa(i+100) // zero-padded by construction
	}
	refs := namedRefs(names...)
	path := writeFilterFile(t, names...)

	got, err := Filter([]string{path}, refs, 25, 0)
	if err != nil {
		t.Fatalf("Filter failed: %v", err)
	}
	if len(got) != 25 {
		t.Errorf("Expected 25%% of 100 sequences, got %d", len(got))
	}
}

func TestFilterTotalNum(t *testing.T) {
	names := make([]string, 50)
	for i := range names {
		names[i] = "seq" + strconv.Itoa(i+100)
	}
	refs := namedRefs(names...)
	path := writeFilterFile(t, names...)

	got, err := Filter([]string{path}, refs, 0, 10)
	if err != nil {
		t.Fatalf("Filter failed: %v", err)
	}
	if len(got) != 10 {
		t.Errorf("Expected 10 sequences, got %d", len(got))
	}
}

func TestFilterModesExclusive(t *testing.T) {
	path := writeFilterFile(t, "a")
	if _, err := Filter([]string{path}, namedRefs("a"), 50, 10); err == nil {
		t.Error("Expected percentage and totalNum together to fail")
	}
}

func TestFilterMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.txt")
	if _, err := Filter([]string{missing}, namedRefs("a"), 0, 0); err == nil {
		t.Error("Expected an error for a missing filter file")
	}
}
