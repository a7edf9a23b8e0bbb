// Package raster provides the single-channel 8-bit planes the fractal coder
// works on, together with the square block views used to address them.
package raster

import (
	"image"
	"image/color"

	"pifs/internal/models"
)

// Raster is a width x height grid of 8-bit intensity samples.
// It is backed by an *image.Gray whose bounds always start at (0,0), so it
// can be handed directly to image filters and encoders.
type Raster struct {
	gray *image.Gray
}

// New allocates a zeroed raster of the given dimensions
func New(width, height int) *Raster {
	return &Raster{gray: image.NewGray(image.Rect(0, 0, width, height))}
}

// FromGray wraps a copy of g, translated so that its bounds start at (0,0)
func FromGray(g *image.Gray) *Raster {
	b := g.Bounds()
	r := New(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		off := g.PixOffset(b.Min.X, b.Min.Y+y)
		copy(r.gray.Pix[y*r.gray.Stride:], g.Pix[off:off+b.Dx()])
	}
	return r
}

// Width returns the number of columns
func (r *Raster) Width() int { return r.gray.Rect.Dx() }

// Height returns the number of rows
func (r *Raster) Height() int { return r.gray.Rect.Dy() }

// Gray exposes the backing image. Writes through it are visible in r.
func (r *Raster) Gray() *image.Gray { return r.gray }

// At returns the sample at (x, y). The coordinates must be in bounds.
func (r *Raster) At(x, y int) uint8 {
	return r.gray.Pix[y*r.gray.Stride+x]
}

// Set stores v at (x, y). The coordinates must be in bounds.
func (r *Raster) Set(x, y int, v uint8) {
	r.gray.Pix[y*r.gray.Stride+x] = v
}

// Fill sets every sample to v
func (r *Raster) Fill(v uint8) {
	for i := range r.gray.Pix {
		r.gray.Pix[i] = v
	}
}

// Mean returns the floor of the average intensity over the whole raster
func (r *Raster) Mean() uint8 {
	w, h := r.Width(), r.Height()
	if w == 0 || h == 0 {
		return 0
	}
	sum := 0
	for y := 0; y < h; y++ {
		row := r.gray.Pix[y*r.gray.Stride : y*r.gray.Stride+w]
		for _, v := range row {
			sum += int(v)
		}
	}
	return uint8(sum / (w * h))
}

// Clone returns an independent copy of r
func (r *Raster) Clone() *Raster {
	return FromGray(r.gray)
}

// Grid returns the number of block columns and rows needed to cover the
// raster with square blocks of side size. The last row and column may be
// partial.
func (r *Raster) Grid(size int) (cols, rows int) {
	return ceilDiv(r.Width(), size), ceilDiv(r.Height(), size)
}

// Split partitions the raster into anchored blocks of side size, enumerated
// row-major: all blocks of the top row from left to right, then the next row.
// Blocks on the right and bottom edges extend past the raster and rely on
// the clamped read / clipped write contract of Block.
func (r *Raster) Split(size int) []*Block {
	cols, rows := r.Grid(size)
	blocks := make([]*Block, 0, cols*rows)
	for by := 0; by < rows; by++ {
		for bx := 0; bx < cols; bx++ {
			blocks = append(blocks, r.Block(bx*size, by*size, size))
		}
	}
	return blocks
}

// Extract copies one channel of img into a new raster. Every channel reads
// the non-premultiplied components, so translucent pixels keep their
// intensity; Gray is the luma of the un-weighted color.
func Extract(img image.Image, ch models.Channel) *Raster {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && ch == models.Gray {
		return FromGray(g)
	}

	r := New(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			n := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			var v uint8
			switch ch {
			case models.Gray:
				opaque := color.NRGBA{R: n.R, G: n.G, B: n.B, A: 0xff}
				v = color.GrayModel.Convert(opaque).(color.Gray).Y
			case models.Red:
				v = n.R
			case models.Green:
				v = n.G
			case models.Blue:
				v = n.B
			case models.Alpha:
				v = n.A
			}
			r.Set(x, y, v)
		}
	}
	return r
}

// Inspect reports whether img needs color channels (any pixel with R, G and
// B not all equal) and an alpha channel (any pixel not fully opaque).
func Inspect(img image.Image) (isColor, hasAlpha bool) {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return false, false
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			n := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if n.R != n.G || n.G != n.B {
				isColor = true
			}
			if n.A != 0xff {
				hasAlpha = true
			}
			if isColor && hasAlpha {
				return
			}
		}
	}
	return
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
