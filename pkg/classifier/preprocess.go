package classifier

import (
	"image"
	"image/draw"

	"github.com/nfnt/resize"
)

// CropSquare returns the centred square of img with side min(w, h).
func CropSquare(img image.Image) image.Image {
	b := img.Bounds()
	side := b.Dx()
	if b.Dy() < side {
		side = b.Dy()
	}

	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	r := image.Rect(x0, y0, x0+side, y0+side)
	if r == b {
		return img
	}

	if sub, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(r)
	}

	dst := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

// Tensor crops img to a centred square, scales it to size x size and returns
// RGB values normalised to [-1, 1] in the given layout.
func Tensor(img image.Image, size int, layout string) []float32 {
	sq := resize.Resize(uint(size), uint(size), CropSquare(img), resize.Bilinear)
	b := sq.Bounds()

	plane := size * size
	out := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, bl, _ := sq.At(b.Min.X+x, b.Min.Y+y).RGBA()
			px := [3]float32{norm(r), norm(g), norm(bl)}

			i := y*size + x
			if layout == LayoutNCHW {
				out[i] = px[0]
				out[plane+i] = px[1]
				out[2*plane+i] = px[2]
			} else {
				out[3*i] = px[0]
				out[3*i+1] = px[1]
				out[3*i+2] = px[2]
			}
		}
	}
	return out
}

// norm maps a 16-bit colour channel to [-1, 1].
func norm(v uint32) float32 {
	return float32(v>>8)/127.5 - 1
}
