// Package yolo wraps a TFLite YOLOv5 export behind a small detection API.
// The model file is loaded once at construction and shared by all callers.
package yolo

import "image"

// Detection is a single detected object in original image pixel coordinates.
type Detection struct {
	Label      string
	Confidence float32
	Box        image.Rectangle
}

// Result holds the detections for one image together with the source
// dimensions needed to convert boxes to relative coordinates.
type Result struct {
	Detections  []Detection
	ImageWidth  int
	ImageHeight int
}
