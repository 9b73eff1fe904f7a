package yolo

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg" // register decoders for task imagery
	_ "image/png"
	"time"

	tflite "github.com/tphakala/go-tflite"

	"github.com/urbancanopy/treedetect-go/internal/errors"
)

// DetectBytes decodes an encoded image and runs detection on it.
func (d *Detector) DetectBytes(ctx context.Context, data []byte) (Result, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, errors.New(err).
			Component("yolo").
			Category(errors.CategoryImageDecode).
			Build()
	}
	return d.Detect(ctx, img)
}

// Detect runs the model on a decoded image and returns detections in source
// pixel coordinates, filtered by the configured confidence threshold.
func (d *Detector) Detect(ctx context.Context, img image.Image) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	bounds := img.Bounds()
	result := Result{
		ImageWidth:  bounds.Dx(),
		ImageHeight: bounds.Dy(),
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()

	input := d.interpreter.GetInputTensor(0)
	lb := prepareInput(img, d.inputSize, input.Float32s())

	if status := d.interpreter.Invoke(); status != tflite.OK {
		return Result{}, errors.Newf("tensor invoke failed").
			Component("yolo").
			Category(errors.CategoryProcessing).
			ModelContext(d.settings.Model.Path, d.settings.Model.Version).
			Timing("invoke", time.Since(start)).
			Build()
	}

	output := d.interpreter.GetOutputTensor(0)
	cands := decodePredictions(output.Float32s(), len(d.labels), d.inputSize,
		float32(d.settings.Model.ConfidenceThreshold))
	cands = nonMaxSuppression(cands)

	for i := range cands {
		c := &cands[i]
		box := lb.toSource(c.x0, c.y0, c.x1, c.y1, result.ImageWidth, result.ImageHeight)
		if box.Empty() {
			continue
		}
		result.Detections = append(result.Detections, Detection{
			Label:      d.labels[c.class],
			Confidence: c.score,
			Box:        box,
		})
	}

	d.log.Debug("inference complete",
		"detections", len(result.Detections),
		"duration_ms", time.Since(start).Milliseconds())

	return result, nil
}
