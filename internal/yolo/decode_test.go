package yolo

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pred builds one flat prediction row: normalized cx, cy, w, h, objectness,
// then per-class scores.
func pred(cx, cy, w, h, obj float32, classScores ...float32) []float32 {
	row := []float32{cx, cy, w, h, obj}
	return append(row, classScores...)
}

func TestDecodePredictionsFiltersByScore(t *testing.T) {
	preds := append(
		pred(0.5, 0.5, 0.2, 0.2, 0.9, 0.8, 0.1),
		pred(0.2, 0.2, 0.1, 0.1, 0.05, 0.9, 0.1)..., // objectness below threshold
	)

	cands := decodePredictions(preds, 2, 640, 0.25)
	require.Len(t, cands, 1)

	c := cands[0]
	assert.Equal(t, 0, c.class)
	assert.InDelta(t, 0.9*0.8, float64(c.score), 1e-5)
	assert.InDelta(t, 256, c.x0, 0.5) // (0.5-0.1)*640
	assert.InDelta(t, 384, c.x1, 0.5) // (0.5+0.1)*640
}

func TestDecodePredictionsPicksBestClass(t *testing.T) {
	preds := pred(0.5, 0.5, 0.4, 0.4, 1.0, 0.1, 0.7, 0.3)

	cands := decodePredictions(preds, 3, 640, 0.25)
	require.Len(t, cands, 1)
	assert.Equal(t, 1, cands[0].class)
}

func TestDecodePredictionsZeroThresholdUsesFloor(t *testing.T) {
	// A sea of zero-score rows plus one real box: the default threshold of 0
	// must not emit the zero rows.
	var preds []float32
	for i := 0; i < 100; i++ {
		preds = append(preds, pred(0.5, 0.5, 0.1, 0.1, 0, 0)...)
	}
	preds = append(preds, pred(0.5, 0.5, 0.1, 0.1, 0.9, 0.9)...)

	cands := decodePredictions(preds, 1, 640, 0)
	assert.Len(t, cands, 1)
}

func TestNonMaxSuppressionDropsOverlaps(t *testing.T) {
	cands := []candidate{
		{x0: 0, y0: 0, x1: 100, y1: 100, score: 0.9, class: 0},
		{x0: 5, y0: 5, x1: 105, y1: 105, score: 0.8, class: 0},  // overlaps winner
		{x0: 5, y0: 5, x1: 105, y1: 105, score: 0.7, class: 1},  // same spot, other class
		{x0: 300, y0: 300, x1: 400, y1: 400, score: 0.6, class: 0}, // far away
	}

	kept := nonMaxSuppression(cands)
	require.Len(t, kept, 3)
	assert.InDelta(t, 0.9, float64(kept[0].score), 1e-6)

	classes := map[int]int{}
	for _, c := range kept {
		classes[c.class]++
	}
	assert.Equal(t, 2, classes[0])
	assert.Equal(t, 1, classes[1])
}

func TestIoU(t *testing.T) {
	a := candidate{x0: 0, y0: 0, x1: 10, y1: 10}
	b := candidate{x0: 5, y0: 0, x1: 15, y1: 10}
	c := candidate{x0: 20, y0: 20, x1: 30, y1: 30}

	assert.InDelta(t, 50.0/150.0, iou(&a, &b), 1e-9)
	assert.Zero(t, iou(&a, &c))
	assert.InDelta(t, 1.0, iou(&a, &a), 1e-9)
}

func TestLetterboxRoundTrip(t *testing.T) {
	// 200x100 source into a 640 square: scale 3.2, vertical padding 160.
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	dst := make([]float32, 640*640*3)

	lb := prepareInput(img, 640, dst)
	assert.InDelta(t, 3.2, lb.scale, 1e-9)
	assert.Equal(t, 0, lb.padX)
	assert.Equal(t, 160, lb.padY)

	// A box covering the whole letterboxed image maps back to the source.
	box := lb.toSource(0, 160, 640, 480, 200, 100)
	assert.Equal(t, image.Rect(0, 0, 200, 100), box)

	// Boxes reaching into the padding clamp to the source bounds.
	box = lb.toSource(-20, 0, 700, 640, 200, 100)
	assert.Equal(t, image.Rect(0, 0, 200, 100), box)
}

func TestPrepareInputFillsPadding(t *testing.T) {
	// 10x5 source into a 20 square: scaled to 20x10 with 5px bands above and
	// below. The top-left value is letterbox gray, the band below it is image
	// data (black).
	img := image.NewRGBA(image.Rect(0, 0, 10, 5))
	size := 20
	dst := make([]float32, size*size*3)

	lb := prepareInput(img, size, dst)
	assert.Equal(t, 5, lb.padY)

	assert.InDelta(t, 114.0/255.0, float64(dst[0]), 1e-6)
	centerBase := (size/2*size + size/2) * 3
	assert.InDelta(t, 0.0, float64(dst[centerBase]), 1e-6)
}
