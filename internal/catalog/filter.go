package catalog

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
)

// Filter restricts refs to the sequence basenames listed in the given
// filter files, via a sorted merge-join. If percentage is positive the
// result is further reduced to roughly that percentage of the matches,
// evenly spaced; if totalNum is positive it is reduced to roughly that
// many, evenly spaced. The two modes are mutually exclusive.
func Filter(paths []string, refs []SequenceRef, percentage, totalNum int) ([]SequenceRef, error) {
	if percentage > 0 && totalNum > 0 {
		return nil, fmt.Errorf("percentage and totalNum are mutually exclusive")
	}

	var wanted []string
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open filter file %s: %w", path, err)
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" {
				wanted = append(wanted, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to read filter file %s: %w", path, err)
		}
		f.Close()
	}
	sort.Strings(wanted)

	sorted := make([]SequenceRef, len(refs))
	copy(sorted, refs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name() < sorted[j].Name()
	})

	var output []SequenceRef
	index := 0
	for _, ref := range sorted {
		name := ref.Name()
		for index < len(wanted) && name > wanted[index] {
			index++
		}
		if index == len(wanted) {
			break
		}
		if name == wanted[index] {
			output = append(output, ref)
		}
	}

	switch {
	case percentage > 0:
		output = subsamplePercentage(output, percentage)
	case totalNum > 0:
		output = subsampleCount(output, totalNum)
	}

	return output, nil
}

// subsamplePercentage keeps an evenly spaced subset holding the running
// fraction of kept elements just under the requested percentage.
func subsamplePercentage(refs []SequenceRef, percentage int) []SequenceRef {
	var output []SequenceRef
	for i, ref := range refs {
		if 100*float64(len(output))/float64(i+1) < float64(percentage) {
			output = append(output, ref)
		}
	}
	return output
}

// subsampleCount keeps roughly totalNum elements spaced evenly across the
// input.
func subsampleCount(refs []SequenceRef, totalNum int) []SequenceRef {
	captureEach := math.Max(float64(len(refs))/float64(totalNum), 1)
	lastCaptured := -1.0
	lastIdx := -1

	var output []SequenceRef
	for i, ref := range refs {
		toCapture := int(math.Round(lastCaptured + captureEach))
		if i == lastIdx || i < toCapture {
			continue
		}
		lastIdx = i
		lastCaptured += captureEach
		output = append(output, ref)
	}
	return output
}
