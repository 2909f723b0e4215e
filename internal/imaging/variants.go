// Package imaging derives cropped variants of a rendered page image.
// Variants are new images; the source is never mutated.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
)

// SplitLeftRight splits an image into left and right halves at width/2.
// An odd pixel column goes to the right half.
func SplitLeftRight(src image.Image) (left, right image.Image) {
	b := src.Bounds()
	mid := b.Min.X + b.Dx()/2
	left = crop(src, image.Rect(b.Min.X, b.Min.Y, mid, b.Max.Y))
	right = crop(src, image.Rect(mid, b.Min.Y, b.Max.X, b.Max.Y))
	return left, right
}

// SplitTopBottom splits an image into top and bottom halves at height/2.
// An odd pixel row goes to the bottom half.
func SplitTopBottom(src image.Image) (top, bottom image.Image) {
	b := src.Bounds()
	mid := b.Min.Y + b.Dy()/2
	top = crop(src, image.Rect(b.Min.X, b.Min.Y, b.Max.X, mid))
	bottom = crop(src, image.Rect(b.Min.X, mid, b.Max.X, b.Max.Y))
	return top, bottom
}

// crop copies the region r of src into a fresh RGBA image anchored at the
// origin.
func crop(src image.Image, r image.Rectangle) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), src, r.Min, draw.Src)
	return dst
}

// EncodePNG serializes an image to PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodePNG parses PNG bytes back into an image.
func DecodePNG(data []byte) (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode png: %w", err)
	}
	return img, nil
}
