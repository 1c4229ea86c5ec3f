package packet

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/markjosims/hCPC/internal/catalog"
)

// DecodeFunc decodes one audio file to mono samples plus its sample rate.
type DecodeFunc func(path string) ([]float32, int, error)

// Config controls how a package is assembled into a Buffer.
type Config struct {
	SizeWindow int
	NSpeakers  int
	Workers    int
	Phone      *catalog.LabelSet
	Word       *catalog.LabelSet
}

// loaded is one decoded sequence awaiting placement in the buffer.
type loaded struct {
	speaker int
	name    string
	samples []float32
}

// Load decodes every sequence of one package in parallel and assembles the
// results into a Buffer with aligned speaker, sequence and label indices.
//
// Sequences are laid out in (speaker, name) order for a deterministic
// buffer. A sequence missing from a configured label track is dropped
// without error; a speaker id outside the registry aborts the load.
func Load(ctx context.Context, logger *slog.Logger, refs []catalog.SequenceRef, cfg Config, decode DecodeFunc) (*Buffer, error) {
	if len(refs) == 0 {
		return nil, fmt.Errorf("cannot load an empty package")
	}
	if cfg.SizeWindow < 1 {
		return nil, fmt.Errorf("window size must be positive, got %d", cfg.SizeWindow)
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	items, err := decodeAll(ctx, refs, workers, decode)
	if err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].speaker != items[j].speaker {
			return items[i].speaker < items[j].speaker
		}
		return items[i].name < items[j].name
	})

	return assemble(logger, items, cfg)
}

// decodeAll runs the decode jobs with a bounded worker pool. The first
// decode failure aborts the whole package load.
func decodeAll(ctx context.Context, refs []catalog.SequenceRef, workers int, decode DecodeFunc) ([]loaded, error) {
	type result struct {
		item loaded
		err  error
	}

	jobs := make(chan catalog.SequenceRef)
	results := make(chan result)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ref := range jobs {
				samples, _, err := decode(ref.Path)
				if err != nil {
					err = fmt.Errorf("failed to decode %s: %w", ref.Path, err)
				}
				results <- result{
					item: loaded{speaker: ref.Speaker, name: ref.Name(), samples: samples},
					err:  err,
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, ref := range refs {
			select {
			case jobs <- ref:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	items := make([]loaded, 0, len(refs))
	var firstErr error
	for res := range results {
		if res.err != nil && firstErr == nil {
			firstErr = res.err
		}
		items = append(items, res.item)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

// assemble lays the sorted items into one contiguous buffer and builds the
// offset indices and flat label tracks.
func assemble(logger *slog.Logger, items []loaded, cfg Config) (*Buffer, error) {
	buf := &Buffer{
		speakerOffsets: []int64{},
		seqOffsets:     []int64{0},
		sizeWindow:     cfg.SizeWindow,
	}
	if cfg.Phone != nil {
		buf.phoneStep = cfg.Phone.Step
	}
	if cfg.Word != nil {
		buf.wordStep = cfg.Word.Step
	}

	retained := make([][]float32, 0, len(items))
	var total int64
	skipped := 0

	for _, item := range items {
		if cfg.Phone != nil && !cfg.Phone.Has(item.name) {
			skipped++
			continue
		}
		if cfg.Word != nil && !cfg.Word.Has(item.name) {
			skipped++
			continue
		}

		if item.speaker < 0 || item.speaker >= cfg.NSpeakers {
			return nil, fmt.Errorf("speaker %d of sequence %s is not in the registry of %d speakers",
				item.speaker, item.name, cfg.NSpeakers)
		}

		samples := item.samples
		if cfg.Phone != nil {
			// Trailing audio shorter than one label step carries no
			// label and is dropped.
			keep := int64(len(cfg.Phone.BySeq[item.name])) * int64(cfg.Phone.Step)
			if int64(len(samples)) > keep {
				samples = samples[:keep]
			}
		}
		if len(samples) == 0 {
			skipped++
			continue
		}
		if cfg.Phone != nil {
			buf.phoneLabels = append(buf.phoneLabels, cfg.Phone.BySeq[item.name]...)
		}
		if cfg.Word != nil {
			buf.wordLabels = append(buf.wordLabels, cfg.Word.BySeq[item.name]...)
		}

		// New speaker segment whenever the speaker changes.
		n := len(buf.speakerIDs)
		if n == 0 || buf.speakerIDs[n-1] != item.speaker {
			buf.speakerOffsets = append(buf.speakerOffsets, total)
			buf.speakerIDs = append(buf.speakerIDs, item.speaker)
		}

		retained = append(retained, samples)
		buf.seqNames = append(buf.seqNames, item.name)
		total += int64(len(samples))
		buf.seqOffsets = append(buf.seqOffsets, total)
	}

	if len(retained) == 0 {
		return nil, fmt.Errorf("every sequence of the package was dropped by label filtering")
	}

	buf.speakerOffsets = append(buf.speakerOffsets, total)
	buf.skipped = skipped

	buf.data = make([]float32, 0, total)
	for _, samples := range retained {
		buf.data = append(buf.data, samples...)
	}

	if skipped > 0 {
		logger.Debug("Sequences dropped for missing labels",
			slog.Int("skipped", skipped),
			slog.Int("retained", len(retained)),
		)
	}

	return buf, nil
}
