package imaging

import (
	"image"
	"testing"
)

func TestSplitLeftRightDimensions(t *testing.T) {
	for _, size := range []struct{ w, h int }{{100, 60}, {101, 60}, {1, 1}, {7, 3}} {
		src := image.NewRGBA(image.Rect(0, 0, size.w, size.h))
		left, right := SplitLeftRight(src)
		lw, rw := left.Bounds().Dx(), right.Bounds().Dx()
		if lw+rw != size.w {
			t.Errorf("width %d: left %d + right %d != %d", size.w, lw, rw, size.w)
		}
		// Odd column belongs to the right half.
		if lw > rw {
			t.Errorf("width %d: left half %d wider than right %d", size.w, lw, rw)
		}
		if left.Bounds().Dy() != size.h || right.Bounds().Dy() != size.h {
			t.Errorf("width %d: halves changed height", size.w)
		}
	}
}

func TestSplitTopBottomDimensions(t *testing.T) {
	for _, size := range []struct{ w, h int }{{60, 100}, {60, 101}, {1, 1}, {3, 7}} {
		src := image.NewRGBA(image.Rect(0, 0, size.w, size.h))
		top, bottom := SplitTopBottom(src)
		th, bh := top.Bounds().Dy(), bottom.Bounds().Dy()
		if th+bh != size.h {
			t.Errorf("height %d: top %d + bottom %d != %d", size.h, th, bh, size.h)
		}
		if th > bh {
			t.Errorf("height %d: top half %d taller than bottom %d", size.h, th, bh)
		}
		if top.Bounds().Dx() != size.w || bottom.Bounds().Dx() != size.w {
			t.Errorf("height %d: halves changed width", size.h)
		}
	}
}

func TestSplitPreservesPixels(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for x := 0; x < 4; x++ {
		for y := 0; y < 2; y++ {
			src.Pix[src.PixOffset(x, y)] = uint8(x*10 + y)
			src.Pix[src.PixOffset(x, y)+3] = 255
		}
	}
	left, right := SplitLeftRight(src)
	lr, _, _, _ := left.At(1, 1).RGBA()
	if uint8(lr>>8) != 11 {
		t.Errorf("left(1,1) red = %d, want 11", uint8(lr>>8))
	}
	rr, _, _, _ := right.At(0, 0).RGBA()
	if uint8(rr>>8) != 20 {
		t.Errorf("right(0,0) red = %d, want 20", uint8(rr>>8))
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 8, 8))
	data, err := EncodePNG(src)
	if err != nil {
		t.Fatalf("EncodePNG() error = %v", err)
	}
	img, err := DecodePNG(data)
	if err != nil {
		t.Fatalf("DecodePNG() error = %v", err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 8 {
		t.Errorf("round trip dimensions = %v, want 8x8", img.Bounds())
	}
}
