package labelstudio

import (
	"github.com/google/uuid"

	"github.com/urbancanopy/treedetect-go/internal/yolo"
)

// Control names from the labeling interface configuration. It is critical
// these match the project's template or the tool silently drops regions.
const (
	fromName   = "label"
	toName     = "image"
	regionType = "rectanglelabels"
)

// FromDetections converts a detection result into the labeling tool's
// prediction JSON. Box coordinates become percentages of the image
// dimensions; the prediction score is the lowest region score, the
// convention the tool uses for ordering by least-confident prediction.
func FromDetections(res yolo.Result, modelVersion string) Prediction {
	pred := Prediction{
		Result:       []Region{},
		ModelVersion: modelVersion,
	}

	w := float64(res.ImageWidth)
	h := float64(res.ImageHeight)
	if w <= 0 || h <= 0 {
		return pred
	}

	minScore := 1.0
	for i := range res.Detections {
		det := &res.Detections[i]
		score := float64(det.Confidence)

		pred.Result = append(pred.Result, Region{
			ID:       uuid.NewString()[:8],
			FromName: fromName,
			ToName:   toName,
			Type:     regionType,
			Value: RectangleValue{
				X:               float64(det.Box.Min.X) / w * 100.0,
				Y:               float64(det.Box.Min.Y) / h * 100.0,
				Width:           float64(det.Box.Dx()) / w * 100.0,
				Height:          float64(det.Box.Dy()) / h * 100.0,
				RectangleLabels: []string{det.Label},
			},
			Score: score,
		})

		if score < minScore {
			minScore = score
		}
	}

	if len(pred.Result) > 0 {
		pred.Score = minScore
	}
	return pred
}
