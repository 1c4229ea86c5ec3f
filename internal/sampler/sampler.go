package sampler

import (
	"fmt"
	"math/rand"
)

// Kind selects one of the supported batch sampling strategies.
type Kind int

const (
	// Uniform shuffles every aligned window start across the buffer.
	Uniform Kind = iota
	// Sequential walks the buffer in order, drawing one window from
	// each of batchSize evenly spaced regions per step.
	Sequential
	// SameSpeaker groups windows so a batch never mixes speakers.
	SameSpeaker
	// SameSequence groups windows so a batch never mixes sequences.
	SameSequence
)

// ParseKind converts a configuration string to a sampler kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "uniform":
		return Uniform, nil
	case "sequential":
		return Sequential, nil
	case "samespeaker":
		return SameSpeaker, nil
	case "samesequence":
		return SameSequence, nil
	default:
		return 0, fmt.Errorf("unknown sampler kind %q", s)
	}
}

func (k Kind) String() string {
	switch k {
	case Uniform:
		return "uniform"
	case Sequential:
		return "sequential"
	case SameSpeaker:
		return "samespeaker"
	case SameSequence:
		return "samesequence"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Params configures a sampler over one buffer. Offset is the window phase
// shift chosen once per package; Rand drives all sampler randomness and is
// required for Uniform and the grouped kinds.
type Params struct {
	BufferSize      int64
	SizeWindow      int64
	BatchSize       int
	Offset          int64
	SpeakerOffsets  []int64
	SequenceOffsets []int64
	Rand            *rand.Rand
}

// Sampler produces an ordered, per-iteration-shuffled sequence of index
// batches over one buffer.
type Sampler interface {
	// Batches returns the batches for one pass. The randomized kinds
	// reshuffle on every call.
	Batches() [][]int64
	// Len returns the number of batches per pass.
	Len() int
}

// New builds the requested sampler kind against a buffer's dimensions.
func New(kind Kind, p Params) (Sampler, error) {
	if p.SizeWindow < 1 {
		return nil, fmt.Errorf("window size must be positive, got %d", p.SizeWindow)
	}
	if p.BatchSize < 1 {
		return nil, fmt.Errorf("batch size must be positive, got %d", p.BatchSize)
	}

	switch kind {
	case Uniform:
		if p.Rand == nil {
			return nil, fmt.Errorf("uniform sampler requires a random source")
		}
		return newUniform(p), nil
	case Sequential:
		return newSequential(p), nil
	case SameSpeaker:
		if p.Rand == nil {
			return nil, fmt.Errorf("grouped sampler requires a random source")
		}
		return newGrouped(p, p.SpeakerOffsets)
	case SameSequence:
		if p.Rand == nil {
			return nil, fmt.Errorf("grouped sampler requires a random source")
		}
		return newGrouped(p, p.SequenceOffsets)
	default:
		return nil, fmt.Errorf("unknown sampler kind %d", kind)
	}
}

// uniform yields a fresh random permutation of all aligned window starts,
// chunked into full batches; the trailing partial batch is dropped.
type uniform struct {
	count      int64
	sizeWindow int64
	offset     int64
	batchSize  int
	rng        *rand.Rand
}

func newUniform(p Params) *uniform {
	count := p.BufferSize / p.SizeWindow
	if p.Offset > 0 {
		count--
	}
	if count < 0 {
		count = 0
	}
	return &uniform{
		count:      count,
		sizeWindow: p.SizeWindow,
		offset:     p.Offset,
		batchSize:  p.BatchSize,
		rng:        p.Rand,
	}
}

func (u *uniform) Len() int {
	return int(u.count) / u.batchSize
}

func (u *uniform) Batches() [][]int64 {
	perm := u.rng.Perm(int(u.count))
	batches := make([][]int64, 0, u.Len())
	for start := 0; start+u.batchSize <= len(perm); start += u.batchSize {
		batch := make([]int64, u.batchSize)
		for i, x := range perm[start : start+u.batchSize] {
			batch[i] = u.offset + u.sizeWindow*int64(x)
		}
		batches = append(batches, batch)
	}
	return batches
}

// sequential draws each batch from batchSize evenly spaced regions of the
// buffer, stepping one window at a time; deterministic.
type sequential struct {
	length     int64
	sizeWindow int64
	offset     int64
	starts     []int64
}

func newSequential(p Params) *sequential {
	length := (p.BufferSize / p.SizeWindow) / int64(p.BatchSize)
	if p.Offset > 0 {
		length--
	}
	if length < 0 {
		length = 0
	}
	starts := make([]int64, p.BatchSize)
	for b := range starts {
		starts[b] = int64(b) * (p.BufferSize / int64(p.BatchSize))
	}
	return &sequential{
		length:     length,
		sizeWindow: p.SizeWindow,
		offset:     p.Offset,
		starts:     starts,
	}
}

func (s *sequential) Len() int {
	return int(s.length)
}

func (s *sequential) Batches() [][]int64 {
	batches := make([][]int64, 0, s.length)
	for idx := int64(0); idx < s.length; idx++ {
		batch := make([]int64, len(s.starts))
		for b, start := range s.starts {
			batch[b] = s.offset + s.sizeWindow*idx + start
		}
		batches = append(batches, batch)
	}
	return batches
}

// grouped builds per-group batches over an ascending offsets array so that
// no batch ever mixes two groups. The trailing batch of each group keeps
// its remainder. Batch order is reshuffled on every pass.
type grouped struct {
	batches [][]int64
	rng     *rand.Rand
}

func newGrouped(p Params, offsets []int64) (*grouped, error) {
	if len(offsets) < 2 {
		return nil, fmt.Errorf("grouped sampler needs at least one group, got %d offsets", len(offsets))
	}
	if offsets[0] != 0 {
		return nil, fmt.Errorf("sampling intervals must start at zero, got %d", offsets[0])
	}

	nGroups := len(offsets) - 1
	sizes := make([]int64, nGroups)
	for i := 0; i < nGroups; i++ {
		sizes[i] = (offsets[i+1] - offsets[i]) / p.SizeWindow
		if p.Offset > 0 {
			sizes[i]--
		}
		if sizes[i] < 0 {
			sizes[i] = 0
		}
	}

	g := &grouped{rng: p.Rand}
	for group, size := range sizes {
		if size == 0 {
			continue
		}
		perm := p.Rand.Perm(int(size))
		for start := 0; start < len(perm); start += p.BatchSize {
			end := start + p.BatchSize
			if end > len(perm) {
				end = len(perm)
			}
			batch := make([]int64, 0, end-start)
			for _, x := range perm[start:end] {
				batch = append(batch, p.Offset+int64(x)*p.SizeWindow+offsets[group])
			}
			g.batches = append(g.batches, batch)
		}
	}

	return g, nil
}

func (g *grouped) Len() int {
	return len(g.batches)
}

func (g *grouped) Batches() [][]int64 {
	// Reshuffle the order of batches, never their contents.
	g.rng.Shuffle(len(g.batches), func(i, j int) {
		g.batches[i], g.batches[j] = g.batches[j], g.batches[i]
	})
	return g.batches
}
