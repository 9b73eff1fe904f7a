package yolo

import (
	"image"

	"github.com/disintegration/imaging"
)

// letterbox describes how an image was scaled and padded to fit the model
// input square, so detections can be mapped back to source pixels.
type letterbox struct {
	scale      float64
	padX, padY int // padding offsets in input-tensor pixels
}

// prepareInput scales img into a size x size square preserving aspect ratio,
// pads the remainder with neutral gray, and writes normalized RGB values
// into dst (layout NHWC, values 0..1). dst must hold size*size*3 floats.
func prepareInput(img image.Image, size int, dst []float32) letterbox {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()

	scale := min(float64(size)/float64(srcW), float64(size)/float64(srcH))
	newW := int(float64(srcW) * scale)
	newH := int(float64(srcH) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	resized := imaging.Resize(img, newW, newH, imaging.Linear)
	padX := (size - newW) / 2
	padY := (size - newH) / 2

	// 114/255 is the conventional YOLO letterbox fill.
	const fill = float32(114.0 / 255.0)
	for i := range dst {
		dst[i] = fill
	}

	for y := 0; y < newH; y++ {
		for x := 0; x < newW; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			base := ((y+padY)*size + (x + padX)) * 3
			dst[base] = float32(r) / 65535.0
			dst[base+1] = float32(g) / 65535.0
			dst[base+2] = float32(b) / 65535.0
		}
	}

	return letterbox{scale: scale, padX: padX, padY: padY}
}

// toSource maps a box from input-tensor pixels back to source image pixels,
// clamped to the source bounds.
func (lb letterbox) toSource(x0, y0, x1, y1 float64, srcW, srcH int) image.Rectangle {
	mapX := func(v float64) int {
		return clamp(int((v-float64(lb.padX))/lb.scale+0.5), 0, srcW)
	}
	mapY := func(v float64) int {
		return clamp(int((v-float64(lb.padY))/lb.scale+0.5), 0, srcH)
	}
	return image.Rect(mapX(x0), mapY(y0), mapX(x1), mapY(y1))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
