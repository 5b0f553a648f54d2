package detector

import (
	"fmt"
	"sort"
)

// ParseYOLOv8 decodes a YOLOv8 output tensor laid out as [1, 4+classes, anchors].
// Each anchor carries cx, cy, w, h followed by one score per class; anchors whose
// best class score is below confidence are discarded.
func ParseYOLOv8(output []float32, shape []int64, confidence float64, labels []string) ([]Detection, error) {
	if len(shape) != 3 || shape[0] != 1 {
		return nil, fmt.Errorf("unsupported output shape %v", shape)
	}

	numFeatures := int(shape[1])
	numAnchors := int(shape[2])
	numClasses := numFeatures - 4
	if numClasses <= 0 {
		return nil, fmt.Errorf("invalid class count %d in output shape %v", numClasses, shape)
	}
	if len(output) < numFeatures*numAnchors {
		return nil, fmt.Errorf("output has %d values, shape %v needs %d", len(output), shape, numFeatures*numAnchors)
	}

	var detections []Detection
	for i := 0; i < numAnchors; i++ {
		bestScore := float32(0)
		bestID := 0
		for c := 0; c < numClasses; c++ {
			score := output[(4+c)*numAnchors+i]
			if score > bestScore {
				bestScore = score
				bestID = c
			}
		}
		if float64(bestScore) < confidence {
			continue
		}

		cx := float64(output[0*numAnchors+i])
		cy := float64(output[1*numAnchors+i])
		w := float64(output[2*numAnchors+i])
		h := float64(output[3*numAnchors+i])

		detections = append(detections, Detection{
			Box:       Box{X1: cx - w/2, Y1: cy - h/2, X2: cx + w/2, Y2: cy + h/2},
			Score:     float64(bestScore),
			ClassID:   bestID,
			ClassName: LabelFor(labels, bestID),
		})
	}

	return detections, nil
}

// NonMaxSuppression keeps the highest scoring box among overlapping boxes of the
// same class. Boxes of different classes never suppress each other.
func NonMaxSuppression(detections []Detection, iouThreshold float64) []Detection {
	if len(detections) == 0 {
		return detections
	}

	sorted := make([]Detection, len(detections))
	copy(sorted, detections)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	keep := make([]Detection, 0, len(sorted))
	for _, current := range sorted {
		suppressed := false
		for _, kept := range keep {
			if kept.ClassID == current.ClassID && current.Box.IoU(kept.Box) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			keep = append(keep, current)
		}
	}

	return keep
}

// ClassFilter keeps only detections whose class name is in the allow list.
// An empty filter keeps everything.
type ClassFilter map[string]struct{}

// NewClassFilter builds a filter from class names
func NewClassFilter(names []string) ClassFilter {
	if len(names) == 0 {
		return nil
	}
	f := make(ClassFilter, len(names))
	for _, n := range names {
		f[n] = struct{}{}
	}
	return f
}

// Apply returns the detections allowed by the filter
func (f ClassFilter) Apply(detections []Detection) []Detection {
	if len(f) == 0 {
		return detections
	}
	out := detections[:0:0]
	for _, d := range detections {
		if _, ok := f[d.ClassName]; ok {
			out = append(out, d)
		}
	}
	return out
}
