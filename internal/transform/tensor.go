package transform

import "image"

// Channels is the number of colour planes ToTensor emits.
const Channels = 3

// ToTensor converts img to CHW float32 data scaled to [0, 1], writing into
// dst when it is large enough. It returns the data with its height and width.
func ToTensor(img image.Image, dst []float32) ([]float32, int, int) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height
	if cap(dst) < Channels*plane {
		dst = make([]float32, Channels*plane)
	}
	data := dst[:Channels*plane]

	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				i := rgba.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
				idx := y*width + x
				data[idx] = float32(rgba.Pix[i]) / 255
				data[plane+idx] = float32(rgba.Pix[i+1]) / 255
				data[2*plane+idx] = float32(rgba.Pix[i+2]) / 255
			}
		}
		return data, height, width
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			idx := y*width + x
			data[idx] = float32(r) / 65535
			data[plane+idx] = float32(g) / 65535
			data[2*plane+idx] = float32(b) / 65535
		}
	}
	return data, height, width
}
