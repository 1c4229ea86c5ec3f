package stream

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/markjosims/hCPC/internal/metrics"
	"github.com/markjosims/hCPC/internal/packet"
	"github.com/markjosims/hCPC/internal/sampler"
)

// LoaderConfig controls batch iteration over a stream.
type LoaderConfig struct {
	SizeWindow   int
	BatchSize    int
	Kind         sampler.Kind
	RandomOffset bool
	Seed         int64
}

// Batch is one group of training examples drawn from a single package.
type Batch struct {
	Items   []packet.Item
	Package int
	Epoch   int
}

// Stats is a monitoring snapshot of loader progress.
type Stats struct {
	Packages        int    `json:"packages"`
	CurrentPackage  int    `json:"current_package"`
	Epoch           int    `json:"epoch"`
	TotalFrames     int64  `json:"total_frames"`
	BatchesPerEpoch int    `json:"batches_per_epoch"`
	BatchesYielded  uint64 `json:"batches_yielded"`
	WindowsYielded  uint64 `json:"windows_yielded"`
}

// Loader iterates batches over a stream: one sampler pass per package, one
// Run per epoch. All loader randomness comes from its own seeded generator,
// so two loaders with the same seed over the same corpus yield identical
// index sequences.
type Loader struct {
	stream  *Stream
	cfg     LoaderConfig
	rng     *rand.Rand
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	batches uint64
	windows uint64
}

// NewLoader creates a loader over an open stream. m may be nil.
func NewLoader(logger *slog.Logger, m *metrics.Metrics, s *Stream, cfg LoaderConfig) (*Loader, error) {
	if cfg.SizeWindow < 1 {
		return nil, fmt.Errorf("window size must be positive, got %d", cfg.SizeWindow)
	}
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	return &Loader{
		stream:  s,
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		logger:  logger,
		metrics: m,
	}, nil
}

// Len returns the number of full batches one epoch yields.
func (l *Loader) Len() int {
	return int(l.stream.TotalFrames() / (int64(l.cfg.SizeWindow) * int64(l.cfg.BatchSize)))
}

// Run iterates one epoch, calling fn for every batch. Each package gets a
// fresh window phase offset when RandomOffset is set, then one sampler pass
// over its buffer; the stream advances after each package so the next one
// is already loading while fn consumes the current batches.
func (l *Loader) Run(ctx context.Context, fn func(Batch) error) error {
	start := time.Now()
	n := l.stream.PackageCount()

	for pkg := 0; pkg < n; pkg++ {
		buf := l.stream.Current()

		var offset int64
		if half := int64(l.cfg.SizeWindow) / 2; l.cfg.RandomOffset && half > 0 {
			offset = l.rng.Int63n(half)
		}
		smp, err := sampler.New(l.cfg.Kind, sampler.Params{
			BufferSize:      buf.Size(),
			SizeWindow:      int64(l.cfg.SizeWindow),
			BatchSize:       l.cfg.BatchSize,
			Offset:          offset,
			SpeakerOffsets:  buf.SpeakerOffsets(),
			SequenceOffsets: buf.SequenceOffsets(),
			Rand:            l.rng,
		})
		if err != nil {
			return fmt.Errorf("failed to build %s sampler: %w", l.cfg.Kind, err)
		}

		epoch := l.stream.Epoch()
		current := l.stream.CurrentIndex()
		for _, starts := range smp.Batches() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			items := make([]packet.Item, len(starts))
			for i, idx := range starts {
				item, err := buf.Item(idx)
				if err != nil {
					return fmt.Errorf("failed to fetch window at %d: %w", idx, err)
				}
				items[i] = item
			}

			l.metrics.RecordBatch(len(items))
			l.mu.Lock()
			l.batches++
			l.windows += uint64(len(items))
			l.mu.Unlock()

			if err := fn(Batch{Items: items, Package: current, Epoch: epoch}); err != nil {
				return err
			}
		}

		if err := l.stream.Advance(); err != nil {
			return err
		}
	}

	l.logger.Info("Epoch finished",
		slog.Int("epoch", l.stream.Epoch()),
		slog.Int("packages", n),
		slog.Duration("duration", time.Since(start)),
	)

	return nil
}

// Batches runs one epoch in a background goroutine and delivers its
// batches on a channel. The batch channel closes when the epoch ends; the
// error channel then carries the epoch's outcome (nil on success).
func (l *Loader) Batches(ctx context.Context) (<-chan Batch, <-chan error) {
	out := make(chan Batch)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		errc <- l.Run(ctx, func(b Batch) error {
			select {
			case out <- b:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	return out, errc
}

// Stats returns a snapshot of loader progress for monitoring.
func (l *Loader) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return Stats{
		Packages:        l.stream.PackageCount(),
		CurrentPackage:  l.stream.CurrentIndex(),
		Epoch:           l.stream.Epoch(),
		TotalFrames:     l.stream.TotalFrames(),
		BatchesPerEpoch: l.Len(),
		BatchesYielded:  l.batches,
		WindowsYielded:  l.windows,
	}
}
