package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/markjosims/hCPC/internal/catalog"
	"github.com/markjosims/hCPC/internal/metrics"
	"github.com/markjosims/hCPC/internal/packet"
	"github.com/markjosims/hCPC/internal/planner"
)

// loadResult carries one finished background load.
type loadResult struct {
	buf *packet.Buffer
	pkg int
	err error
}

// Stream holds the current package resident in memory while the next one
// loads in the background. At most one load is in flight at a time; Advance
// blocks until it finishes and immediately issues the load after it. When
// the package index wraps around, the corpus is re-chunked under a fresh
// deterministic permutation so every epoch sees different package contents.
type Stream struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	planner *planner.Planner
	loadCfg packet.Config
	decode  packet.DecodeFunc

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	plan     *planner.Plan
	cur      *packet.Buffer
	current  int
	epoch    int
	pending  chan loadResult
	inflight bool
	closed   bool
}

// New plans the corpus, loads the first package synchronously, and starts
// the background load of the second. m may be nil.
func New(ctx context.Context, logger *slog.Logger, m *metrics.Metrics, p *planner.Planner,
	refs []catalog.SequenceRef, loadCfg packet.Config, decode packet.DecodeFunc) (*Stream, error) {

	sctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		logger:  logger,
		metrics: m,
		planner: p,
		loadCfg: loadCfg,
		decode:  decode,
		ctx:     sctx,
		cancel:  cancel,
		pending: make(chan loadResult, 1),
	}

	plan, err := s.replan(refs)
	if err != nil {
		cancel()
		return nil, err
	}
	s.plan = plan

	buf, err := s.load(0, plan)
	if err != nil {
		cancel()
		return nil, err
	}
	s.cur = buf

	if plan.PackageCount() > 1 {
		s.issueLoad(1, plan)
	}

	return s, nil
}

// Advance swaps in the next package and starts loading the one after it.
// With a single package the whole corpus is already resident, so a new
// pass needs no reload and only the epoch counter moves.
func (s *Stream) Advance() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("stream is closed")
	}

	n := s.plan.PackageCount()
	if n == 1 {
		s.epoch++
		s.metrics.RecordEpoch()
		return nil
	}

	res := <-s.pending
	s.inflight = false
	if res.err != nil {
		return res.err
	}
	s.cur = res.buf
	s.current = res.pkg

	if res.pkg == 0 {
		// Back at the first package: one full pass is complete.
		s.epoch++
		s.metrics.RecordEpoch()
	}

	next := (res.pkg + 1) % n
	if next == 0 {
		// The upcoming load starts the next pass, so re-chunk first.
		plan, err := s.replan(s.plan.Refs)
		if err != nil {
			return err
		}
		s.plan = plan
	}
	s.issueLoad(next, s.plan)

	return nil
}

// Current returns the resident package buffer.
func (s *Stream) Current() *packet.Buffer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// CurrentIndex returns the index of the resident package within the plan.
func (s *Stream) CurrentIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// PackageCount returns the number of packages per pass.
func (s *Stream) PackageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plan.PackageCount()
}

// TotalFrames returns the total frames covered by the current plan.
func (s *Stream) TotalFrames() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plan.TotalFrames
}

// Epoch returns the number of completed passes over the corpus.
func (s *Stream) Epoch() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// Close stops the stream: no further loads are issued, and an in-flight
// load is allowed to finish and drained so no goroutine outlives the
// stream.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	if s.inflight {
		<-s.pending
		s.inflight = false
	}
	s.cancel()
}

// replan re-chunks the corpus and records the outcome.
func (s *Stream) replan(refs []catalog.SequenceRef) (*planner.Plan, error) {
	start := time.Now()
	plan, err := s.planner.Plan(refs)
	if err != nil {
		return nil, fmt.Errorf("failed to plan corpus: %w", err)
	}
	s.metrics.RecordPlan(plan.PackageCount(), plan.TotalFrames, time.Since(start).Seconds())
	return plan, nil
}

// load decodes one package synchronously.
func (s *Stream) load(pkg int, plan *planner.Plan) (*packet.Buffer, error) {
	start := time.Now()
	buf, err := packet.Load(s.ctx, s.logger, plan.PackageRefs(pkg), s.loadCfg, s.decode)
	if err != nil {
		return nil, fmt.Errorf("failed to load package %d: %w", pkg, err)
	}

	s.metrics.RecordPackageLoad(buf.Size(), buf.Skipped(), time.Since(start).Seconds())
	s.logger.Info("Package loaded",
		slog.Int("package", pkg),
		slog.Int64("frames", buf.Size()),
		slog.Int("sequences", buf.NSequences()),
		slog.Int("skipped", buf.Skipped()),
		slog.Duration("duration", time.Since(start)),
	)

	return buf, nil
}

// issueLoad starts the background load of pkg. Callers must hold the lock
// and guarantee no other load is in flight.
func (s *Stream) issueLoad(pkg int, plan *planner.Plan) {
	s.inflight = true
	go func() {
		buf, err := s.load(pkg, plan)
		s.pending <- loadResult{buf: buf, pkg: pkg, err: err}
	}()
}
