package yolo

import "sort"

// iouThreshold is the class-wise NMS overlap cutoff.
const iouThreshold = 0.45

// candidateFloor keeps the decoder from emitting thousands of near-zero
// boxes when the configured confidence threshold is 0, which is the
// default. The final score filter still uses the configured value.
const candidateFloor = 0.05

// candidate is a raw detection in input-tensor pixel coordinates.
type candidate struct {
	x0, y0, x1, y1 float64
	score          float32
	class          int
}

// decodePredictions walks the flat [N][5+C] YOLOv5 output tensor and keeps
// boxes whose objectness * best-class score clears the threshold. The export
// emits center/size coordinates normalized to 0..1 of the input square.
func decodePredictions(preds []float32, numClasses, inputSize int, threshold float32) []candidate {
	stride := 5 + numClasses
	if stride <= 5 || len(preds) < stride {
		return nil
	}
	if threshold < candidateFloor {
		threshold = candidateFloor
	}

	var out []candidate
	for i := 0; i+stride <= len(preds); i += stride {
		objectness := preds[i+4]
		if objectness < threshold {
			continue
		}

		bestClass := 0
		bestScore := preds[i+5]
		for c := 1; c < numClasses; c++ {
			if s := preds[i+5+c]; s > bestScore {
				bestScore = s
				bestClass = c
			}
		}

		score := objectness * bestScore
		if score < threshold {
			continue
		}

		cx := float64(preds[i]) * float64(inputSize)
		cy := float64(preds[i+1]) * float64(inputSize)
		w := float64(preds[i+2]) * float64(inputSize)
		h := float64(preds[i+3]) * float64(inputSize)

		out = append(out, candidate{
			x0:    cx - w/2,
			y0:    cy - h/2,
			x1:    cx + w/2,
			y1:    cy + h/2,
			score: score,
			class: bestClass,
		})
	}
	return out
}

// nonMaxSuppression drops candidates that overlap a higher-scoring candidate
// of the same class by more than iouThreshold.
func nonMaxSuppression(cands []candidate) []candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].score > cands[j].score
	})

	suppressed := make([]bool, len(cands))
	var kept []candidate
	for i := range cands {
		if suppressed[i] {
			continue
		}
		kept = append(kept, cands[i])
		for j := i + 1; j < len(cands); j++ {
			if suppressed[j] || cands[j].class != cands[i].class {
				continue
			}
			if iou(&cands[i], &cands[j]) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

// iou computes intersection over union of two candidate boxes.
func iou(a, b *candidate) float64 {
	ix0 := max(a.x0, b.x0)
	iy0 := max(a.y0, b.y0)
	ix1 := min(a.x1, b.x1)
	iy1 := min(a.y1, b.y1)

	iw := ix1 - ix0
	ih := iy1 - iy0
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih

	areaA := (a.x1 - a.x0) * (a.y1 - a.y0)
	areaB := (b.x1 - b.x0) * (b.y1 - b.y0)
	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
