package raster

import (
	"fmt"
	"image"

	"pifs/internal/models"
)

// Composite assembles decoded channel planes into an NRGBA image.
//
// planes must follow models.Layout(isColor, hasAlpha). Color images map the
// three planes to R, G and B; grayscale images broadcast their single plane to
// all three components. Without an alpha plane every pixel is fully opaque.
func Composite(planes []*Raster, isColor, hasAlpha bool) (*image.NRGBA, error) {
	layout := models.Layout(isColor, hasAlpha)
	if len(planes) != len(layout) {
		return nil, fmt.Errorf("composite: got %d planes, layout needs %d", len(planes), len(layout))
	}
	w, h := planes[0].Width(), planes[0].Height()
	for i, p := range planes {
		if p.Width() != w || p.Height() != h {
			return nil, fmt.Errorf("composite: plane %d (%s) is %dx%d, want %dx%d",
				i, layout[i], p.Width(), p.Height(), w, h)
		}
	}

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := out.PixOffset(x, y)
			if isColor {
				out.Pix[o+0] = planes[0].At(x, y)
				out.Pix[o+1] = planes[1].At(x, y)
				out.Pix[o+2] = planes[2].At(x, y)
			} else {
				v := planes[0].At(x, y)
				out.Pix[o+0], out.Pix[o+1], out.Pix[o+2] = v, v, v
			}
			if hasAlpha {
				out.Pix[o+3] = planes[len(planes)-1].At(x, y)
			} else {
				out.Pix[o+3] = 0xff
			}
		}
	}
	return out, nil
}
