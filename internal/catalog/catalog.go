package catalog

import (
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// SequenceRef identifies one audio sequence in the corpus. Immutable once
// discovered.
type SequenceRef struct {
	Speaker int    `msgpack:"speaker"`
	Path    string `msgpack:"path"`
}

// Name returns the sequence name: the file basename without extension.
func (r SequenceRef) Name() string {
	return Stem(r.Path)
}

// Stem strips the directory and extension from a path.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Catalog holds the ordered sequence references and the speaker registry.
// Speaker ids are ascending indices into Speakers.
type Catalog struct {
	Refs     []SequenceRef `msgpack:"refs"`
	Speakers []string      `msgpack:"speakers"`

	// FromCache reports whether this catalog was served by the cache
	// instead of a fresh walk.
	FromCache bool `msgpack:"-"`
}

// NSpeakers returns the size of the speaker registry.
func (c *Catalog) NSpeakers() int {
	return len(c.Speakers)
}

// Discover walks the given roots and lists every file with the given
// extension, assigning a speaker id from the path segment at speakerLevel
// below each root. speakerLevel 0 means no speaker distinction: every
// sequence gets speaker 0.
//
// When cachePath is non-empty the catalog is read from it if possible and
// written back after a fresh walk. Cache failures are logged and the walk
// proceeds; they are never fatal.
func Discover(logger *slog.Logger, roots []string, extension string, speakerLevel int, cachePath string) (*Catalog, error) {
	if cachePath != "" {
		if cat, err := readCache(cachePath); err == nil {
			cat.FromCache = true
			logger.Info("Catalog loaded from cache",
				slog.String("cache_path", cachePath),
				slog.Int("sequences", len(cat.Refs)),
				slog.Int("speakers", len(cat.Speakers)),
			)
			return cat, nil
		} else if !os.IsNotExist(err) {
			logger.Warn("Failed to load catalog cache, rebuilding",
				slog.String("cache_path", cachePath),
				slog.String("error", err.Error()),
			)
		}
	}

	cat := &Catalog{}
	speakerIDs := make(map[string]int)

	for _, root := range roots {
		root = filepath.Clean(root)
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(d.Name(), extension) {
				return nil
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			key := speakerKey(rel, speakerLevel)
			id, ok := speakerIDs[key]
			if !ok {
				id = len(speakerIDs)
				speakerIDs[key] = id
				cat.Speakers = append(cat.Speakers, key)
			}
			cat.Refs = append(cat.Refs, SequenceRef{Speaker: id, Path: path})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk corpus root %s: %w", root, err)
		}
	}

	if len(cat.Refs) == 0 {
		return nil, fmt.Errorf("no sequences with extension %s found under %v", extension, roots)
	}

	logger.Info("Corpus catalog built",
		slog.Int("sequences", len(cat.Refs)),
		slog.Int("speakers", len(cat.Speakers)),
	)

	if cachePath != "" {
		if err := writeCache(cachePath, cat); err != nil {
			logger.Warn("Failed to persist catalog cache",
				slog.String("cache_path", cachePath),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("Catalog cache saved", slog.String("cache_path", cachePath))
		}
	}

	return cat, nil
}

// speakerKey derives the speaker label from the first speakerLevel path
// segments of the sequence path relative to its root.
func speakerKey(rel string, speakerLevel int) string {
	if speakerLevel <= 0 {
		return ""
	}
	dir := filepath.Dir(rel)
	if dir == "." {
		return ""
	}
	parts := strings.Split(dir, string(filepath.Separator))
	if speakerLevel < len(parts) {
		parts = parts[:speakerLevel]
	}
	return strings.Join(parts, string(filepath.Separator))
}

func readCache(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cat Catalog
	if err := msgpack.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to decode catalog cache: %w", err)
	}
	if len(cat.Refs) == 0 || len(cat.Speakers) == 0 {
		return nil, fmt.Errorf("catalog cache is empty")
	}
	return &cat, nil
}

func writeCache(path string, cat *Catalog) error {
	data, err := msgpack.Marshal(cat)
	if err != nil {
		return fmt.Errorf("failed to encode catalog cache: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Shuffle returns a new slice with the refs permuted by a generator seeded
// with the given seed. The ambient random state is never touched.
func Shuffle(refs []SequenceRef, seed int64) []SequenceRef {
	out := make([]SequenceRef, len(refs))
	copy(out, refs)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}
