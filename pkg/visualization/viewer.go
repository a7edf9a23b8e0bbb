// Package visualization renders the block partition of a fractal image for
// inspection.
package visualization

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"path/filepath"

	"pifs/internal/atomicfile"
	"pifs/pkg/fractal"
	"pifs/pkg/raster"
)

const (
	frameValue = 255
	shadeRange = 200
)

// Viewer draws the partition grids of a fractal image, one per channel.
//
// Each target block is outlined and its interior shaded by the index of the
// candidate it was matched with, so runs of equal shade show blocks rebuilt
// from the same source region.
type Viewer struct {
	im *fractal.Image
}

// NewViewer creates a viewer over im
func NewViewer(im *fractal.Image) *Viewer {
	return &Viewer{im: im}
}

// ExtractGrid renders the partition grid of the given channel index
func (v *Viewer) ExtractGrid(channel int) (*image.Gray, error) {
	if channel < 0 || channel >= len(v.im.Codes) {
		return nil, fmt.Errorf("channel %d out of range [0,%d)", channel, len(v.im.Codes))
	}
	code := v.im.Codes[channel]
	if err := code.Validate(v.im.Width, v.im.Height); err != nil {
		return nil, err
	}

	candidates := fractal.CandidateCount(v.im.Width, v.im.Height, code.LargeBlock)
	r := raster.New(v.im.Width, v.im.Height)
	for k, b := range r.Split(code.SmallBlock) {
		b.Fill(shade(code.Matches[k].Candidate, candidates))
		b.Frame(frameValue)
	}
	return r.Gray(), nil
}

func shade(candidate, candidates int) uint8 {
	if candidates < 2 {
		return 0
	}
	return uint8(candidate * shadeRange / (candidates - 1))
}

// SaveGrid saves a rendered grid as a PNG image
func (v *Viewer) SaveGrid(img image.Image, filename string) error {
	return atomicfile.Write(filename, func(w io.Writer) error {
		return png.Encode(w, img)
	}, 0644)
}

// SaveGridSequence renders every channel and saves it as grid-<i>.png in
// outputDir. It returns the written paths in channel order.
func (v *Viewer) SaveGridSequence(outputDir string) ([]string, error) {
	var paths []string
	for i := range v.im.Codes {
		img, err := v.ExtractGrid(i)
		if err != nil {
			return paths, fmt.Errorf("channel %d: %w", i, err)
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("grid-%d.png", i))
		if err := v.SaveGrid(img, filename); err != nil {
			return paths, err
		}
		paths = append(paths, filename)
	}
	return paths, nil
}
