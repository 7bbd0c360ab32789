package detector

import "sort"

// nms drops candidates overlapping a higher scoring one by more than
// iouThreshold. The result is ordered by descending score.
func nms(cands []Candidate, iouThreshold float32) []Candidate {
	if len(cands) == 0 {
		return cands
	}

	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].Score > cands[j].Score
	})

	keep := make([]bool, len(cands))
	for i := range keep {
		keep[i] = true
	}

	for i := 0; i < len(cands); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(cands); j++ {
			if keep[j] && iou(cands[i].Box, cands[j].Box) > iouThreshold {
				keep[j] = false
			}
		}
	}

	result := make([]Candidate, 0, len(cands))
	for i, c := range cands {
		if keep[i] {
			result = append(result, c)
		}
	}
	return result
}

// iou calculates Intersection over Union of two bounding boxes
func iou(a, b BoundingBox) float32 {
	x1 := max(a.X1, b.X1)
	y1 := max(a.Y1, b.Y1)
	x2 := min(a.X2, b.X2)
	y2 := min(a.Y2, b.Y2)

	if x1 >= x2 || y1 >= y2 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}
