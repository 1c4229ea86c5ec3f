package planner

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/markjosims/hCPC/internal/catalog"
)

// corpusSeed fixes the catalog shuffle so repeated runs over the same
// corpus chunk identically. The shuffle owns its own generator and never
// touches ambient random state.
const corpusSeed = 767543

// Range is a half-open [Start, End) index range into the shuffled refs.
type Range struct {
	Start int
	End   int
}

// Plan is one epoch's chunking of the corpus: the shuffled sequence order
// and the package ranges over it.
type Plan struct {
	Refs        []catalog.SequenceRef
	Packages    []Range
	TotalFrames int64
}

// PackageCount returns the number of packages in the plan.
func (p *Plan) PackageCount() int {
	return len(p.Packages)
}

// PackageRefs returns the refs belonging to the i-th package.
func (p *Plan) PackageRefs(i int) []catalog.SequenceRef {
	r := p.Packages[i]
	return p.Refs[r.Start:r.End]
}

// ProbeFunc returns a sequence's frame length without a full decode.
type ProbeFunc func(path string) (int64, error)

// ProgressFunc is called as probe jobs complete, from a single goroutine.
type ProgressFunc func(done, total int)

// Planner partitions a catalog into memory-bounded packages.
type Planner struct {
	maxFrames int64
	workers   int
	probe     ProbeFunc
	progress  ProgressFunc
	logger    *slog.Logger
}

// New creates a planner with the given frame budget per package. probe is
// invoked in parallel by at most workers goroutines. progress may be nil.
func New(logger *slog.Logger, maxFrames int64, workers int, probe ProbeFunc, progress ProgressFunc) (*Planner, error) {
	if maxFrames < 1 {
		return nil, fmt.Errorf("max frames must be positive, got %d", maxFrames)
	}
	if workers < 1 {
		return nil, fmt.Errorf("workers must be at least 1, got %d", workers)
	}
	if probe == nil {
		return nil, fmt.Errorf("probe function is required")
	}
	return &Planner{
		maxFrames: maxFrames,
		workers:   workers,
		probe:     probe,
		progress:  progress,
		logger:    logger,
	}, nil
}

// Plan reshuffles the refs deterministically, probes every sequence's
// length in parallel, and accumulates lengths in order: whenever the
// running sum exceeds the budget the current package is closed at the
// current index and accumulation restarts there. A trailing partial
// package is always emitted, so every sequence belongs to exactly one
// package and no package is empty.
func (p *Planner) Plan(refs []catalog.SequenceRef) (*Plan, error) {
	if len(refs) == 0 {
		return nil, fmt.Errorf("cannot plan an empty catalog")
	}

	shuffled := catalog.Shuffle(refs, corpusSeed)

	start := time.Now()
	lengths, err := p.probeAll(shuffled)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Refs: shuffled}
	packStart := 0
	var packageSize int64
	for i, n := range lengths {
		packageSize += n
		if packageSize > p.maxFrames {
			plan.Packages = append(plan.Packages, Range{Start: packStart, End: i})
			plan.TotalFrames += packageSize
			packStart, packageSize = i, 0
		}
	}
	if packStart < len(shuffled) {
		plan.Packages = append(plan.Packages, Range{Start: packStart, End: len(shuffled)})
		plan.TotalFrames += packageSize
	}

	// The greedy flush can leave a zero-width leading range when the very
	// first package closed exactly at index 0; drop any empty ranges.
	packages := plan.Packages[:0]
	for _, r := range plan.Packages {
		if r.End > r.Start {
			packages = append(packages, r)
		}
	}
	plan.Packages = packages

	p.logger.Info("Chunk plan computed",
		slog.Int("sequences", len(shuffled)),
		slog.Int("packages", len(plan.Packages)),
		slog.Int64("total_frames", plan.TotalFrames),
		slog.Duration("probe_duration", time.Since(start)),
	)

	return plan, nil
}

// probeAll runs the length probe over all refs with a bounded worker pool,
// preserving input order. The first probe error aborts the plan.
func (p *Planner) probeAll(refs []catalog.SequenceRef) ([]int64, error) {
	type result struct {
		index  int
		frames int64
		err    error
	}

	jobs := make(chan int)
	results := make(chan result)

	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				frames, err := p.probe(refs[i].Path)
				results <- result{index: i, frames: frames, err: err}
			}
		}()
	}

	go func() {
		for i := range refs {
			jobs <- i
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	lengths := make([]int64, len(refs))
	var firstErr error
	done := 0
	for res := range results {
		done++
		if res.err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to probe %s: %w", refs[res.index].Path, res.err)
		}
		lengths[res.index] = res.frames
		if p.progress != nil {
			p.progress(done, len(refs))
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}

	return lengths, nil
}
