package labelstudio

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbancanopy/treedetect-go/internal/yolo"
)

func TestFromDetectionsPercentCoordinates(t *testing.T) {
	res := yolo.Result{
		ImageWidth:  800,
		ImageHeight: 600,
		Detections: []yolo.Detection{
			{Label: "tree", Confidence: 0.9, Box: image.Rect(80, 60, 480, 360)},
		},
	}

	pred := FromDetections(res, "tree-yolov5s-test")
	require.Len(t, pred.Result, 1)
	assert.Equal(t, "tree-yolov5s-test", pred.ModelVersion)

	r := pred.Result[0]
	assert.Equal(t, "label", r.FromName)
	assert.Equal(t, "image", r.ToName)
	assert.Equal(t, "rectanglelabels", r.Type)
	assert.Equal(t, []string{"tree"}, r.Value.RectangleLabels)
	assert.NotEmpty(t, r.ID)

	assert.InDelta(t, 10.0, r.Value.X, 1e-9)      // 80/800
	assert.InDelta(t, 10.0, r.Value.Y, 1e-9)      // 60/600
	assert.InDelta(t, 50.0, r.Value.Width, 1e-9)  // 400/800
	assert.InDelta(t, 50.0, r.Value.Height, 1e-9) // 300/600
	assert.InDelta(t, 0.9, r.Score, 1e-6)
}

func TestFromDetectionsPredictionScoreIsMinimum(t *testing.T) {
	res := yolo.Result{
		ImageWidth:  100,
		ImageHeight: 100,
		Detections: []yolo.Detection{
			{Label: "tree", Confidence: 0.9, Box: image.Rect(0, 0, 10, 10)},
			{Label: "tree", Confidence: 0.4, Box: image.Rect(20, 20, 40, 40)},
			{Label: "tree", Confidence: 0.7, Box: image.Rect(50, 50, 80, 80)},
		},
	}

	pred := FromDetections(res, "v1")
	require.Len(t, pred.Result, 3)
	assert.InDelta(t, 0.4, pred.Score, 1e-6)
}

func TestFromDetectionsEmpty(t *testing.T) {
	pred := FromDetections(yolo.Result{ImageWidth: 100, ImageHeight: 100}, "v1")

	assert.NotNil(t, pred.Result)
	assert.Empty(t, pred.Result)
	assert.Zero(t, pred.Score)
	assert.Equal(t, "v1", pred.ModelVersion)
}

func TestFromDetectionsZeroDimensionsProducesNoRegions(t *testing.T) {
	res := yolo.Result{
		Detections: []yolo.Detection{
			{Label: "tree", Confidence: 0.9, Box: image.Rect(0, 0, 10, 10)},
		},
	}

	pred := FromDetections(res, "v1")
	assert.Empty(t, pred.Result)
}
