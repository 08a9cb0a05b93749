// Package transform holds the image augmentations applied to samples before
// they are handed to the model.
package transform

import (
	"image"
	"image/draw"
	"math/rand"

	"github.com/nfnt/resize"
)

// Func maps a decoded image to a processed one. index is the dataset
// position of the image; random augmentations derive their draws from it so
// the result does not depend on which worker runs the call. Implementations
// must not modify their input.
type Func func(img image.Image, index int) image.Image

// Compose chains fs left to right. Nil entries are skipped.
func Compose(fs ...Func) Func {
	return func(img image.Image, index int) image.Image {
		for _, f := range fs {
			if f != nil {
				img = f(img, index)
			}
		}
		return img
	}
}

const verticalSalt = 0x2545F4914F6CDD1D

// Draw returns a value in [0, 1) that depends only on seed and index.
func Draw(seed int64, index int) float64 {
	mixed := seed ^ (int64(index)+1)*0x5851F42D4C957F2D
	return rand.New(rand.NewSource(mixed)).Float64()
}

// HorizontalFlip mirrors the image left-right with probability p.
func HorizontalFlip(p float64, seed int64) Func {
	return func(img image.Image, index int) image.Image {
		if Draw(seed, index) >= p {
			return img
		}
		return flip(img, true)
	}
}

// VerticalFlip mirrors the image top-bottom with probability p.
func VerticalFlip(p float64, seed int64) Func {
	return func(img image.Image, index int) image.Image {
		if Draw(seed^verticalSalt, index) >= p {
			return img
		}
		return flip(img, false)
	}
}

func flip(img image.Image, horizontal bool) image.Image {
	src := toRGBA(img)
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx, sy := x, y
			if horizontal {
				sx = w - 1 - x
			} else {
				sy = h - 1 - y
			}
			si := src.PixOffset(b.Min.X+sx, b.Min.Y+sy)
			di := dst.PixOffset(x, y)
			copy(dst.Pix[di:di+4], src.Pix[si:si+4])
		}
	}
	return dst
}

// Resize scales the image to size x size with Lanczos resampling. A size of
// zero, or an image already at that size, passes through untouched.
func Resize(size int) Func {
	return func(img image.Image, _ int) image.Image {
		b := img.Bounds()
		if size <= 0 || (b.Dx() == size && b.Dy() == size) {
			return img
		}
		return resize.Resize(uint(size), uint(size), img, resize.Lanczos3)
	}
}

// TrainPipeline is the augmentation used while fitting: random flips on both
// axes followed by an optional resize. The same seed and index always give
// the same flips.
func TrainPipeline(size int, flipProb float64, seed int64) Func {
	return Compose(
		HorizontalFlip(flipProb, seed),
		VerticalFlip(flipProb, seed),
		Resize(size),
	)
}

// InferPipeline only resizes.
func InferPipeline(size int) Func {
	return Resize(size)
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
