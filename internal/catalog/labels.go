package catalog

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// defaultLabelStep is the step used when the label file does not carry one
// (160 samples per label, the LibriSpeech alignment step).
const defaultLabelStep = 160

// stepKey is the reserved sequence name carrying the label step size.
const stepKey = "step"

// LabelSet maps sequence names to their aligned integer label tracks.
// Step is the number of audio samples each label covers.
type LabelSet struct {
	Step       int
	BySeq      map[string][]int32
	NumClasses int
}

// Has reports whether the set contains labels for the named sequence.
func (s *LabelSet) Has(name string) bool {
	_, ok := s.BySeq[name]
	return ok
}

// ParseLabels reads a label file where each line is "sequenceName labels",
// the labels being whitespace- or comma-separated integers. The reserved
// name "step" sets the per-label sample step for the whole file.
func ParseLabels(path string) (*LabelSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open label file %s: %w", path, err)
	}
	defer f.Close()

	set := &LabelSet{
		Step:  defaultLabelStep,
		BySeq: make(map[string][]int32),
	}
	maxLabel := int32(-1)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		name := fields[0]
		values := fields[1:]
		// A single field after the name may be a comma-separated list.
		if len(values) == 1 && strings.Contains(values[0], ",") {
			values = strings.Split(values[0], ",")
		}

		if name == stepKey {
			if len(values) != 1 {
				return nil, fmt.Errorf("label file %s line %d: step expects one value", path, lineNo)
			}
			step, err := strconv.Atoi(values[0])
			if err != nil || step < 1 {
				return nil, fmt.Errorf("label file %s line %d: invalid step %q", path, lineNo, values[0])
			}
			set.Step = step
			continue
		}

		labels := make([]int32, 0, len(values))
		for _, v := range values {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("label file %s line %d: invalid label %q: %w", path, lineNo, v, err)
			}
			labels = append(labels, int32(n))
			if int32(n) > maxLabel {
				maxLabel = int32(n)
			}
		}
		set.BySeq[name] = labels
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read label file %s: %w", path, err)
	}

	set.NumClasses = int(maxLabel) + 1
	return set, nil
}
