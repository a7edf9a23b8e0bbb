package raster

import (
	"image"

	"github.com/disintegration/gift"
	"github.com/nfnt/resize"
)

// Smooth returns a copy of r passed through a square mean filter of the given
// radius. A radius below 1 returns an unfiltered copy.
func (r *Raster) Smooth(radius int) *Raster {
	if radius < 1 {
		return r.Clone()
	}
	return r.apply(gift.New(gift.Mean(2*radius+1, false)))
}

// Shrink box-filters r down to width x height.
// Every output sample is the area average of the input samples it covers.
func (r *Raster) Shrink(width, height int) *Raster {
	if width == r.Width() && height == r.Height() {
		return r.Clone()
	}
	return r.apply(gift.New(gift.Resize(width, height, gift.BoxResampling)))
}

func (r *Raster) apply(g *gift.GIFT) *Raster {
	dst := image.NewGray(g.Bounds(r.gray.Bounds()))
	g.Draw(dst, r.gray)
	return FromGray(dst)
}

// Prescale shrinks img by an integer factor using nearest neighbour sampling.
// It is applied to encoder input before channel extraction; a factor of 1 or
// less returns img unchanged.
func Prescale(img image.Image, factor int) image.Image {
	if factor <= 1 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx()/factor, b.Dy()/factor
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return resize.Resize(uint(w), uint(h), img, resize.NearestNeighbor)
}
