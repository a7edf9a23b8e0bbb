package fractal

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/golang/glog"

	"pifs/pkg/raster"
)

// maxDecodeSamples bounds the supersampled raster of one channel
const maxDecodeSamples = 1 << 29

// DecodeOptions holds the decoding parameters.
type DecodeOptions struct {
	// Iterations is the fixed number of fixed-point steps
	Iterations int

	// Quality is the supersampling factor Q. Decoding runs at Q times the
	// stored resolution, then smooths with radius Q-1 and box-filters back
	// down. Q = 1 disables the refinement pass.
	Quality int
}

// Validate checks the options for values the decoder cannot work with
func (o DecodeOptions) Validate() error {
	if o.Iterations < 0 {
		return fmt.Errorf("iterations must not be negative, got %d", o.Iterations)
	}
	if o.Quality < 1 {
		return fmt.Errorf("quality must be at least 1, got %d", o.Quality)
	}
	return nil
}

// Decode reconstructs im as an NRGBA image
func (im *Image) Decode(opts DecodeOptions) (*image.NRGBA, error) {
	planes, err := im.DecodeChannels(opts)
	if err != nil {
		return nil, err
	}
	return raster.Composite(planes, im.Color, im.Alpha)
}

// DecodeChannels reconstructs every channel of im, in models.Layout order.
// Channels are independent and are decoded concurrently.
func (im *Image) DecodeChannels(opts DecodeOptions) ([]*raster.Raster, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := im.Validate(); err != nil {
		return nil, err
	}
	if err := checkDecodeSize(im.Width, im.Height, opts.Quality); err != nil {
		return nil, err
	}

	glog.Infof("Decoding %dx%d image: %d channels, %d iterations, quality %d",
		im.Width, im.Height, len(im.Codes), opts.Iterations, opts.Quality)

	planes := make([]*raster.Raster, len(im.Codes))
	channels := im.Channels()
	var wg sync.WaitGroup
	for i, code := range im.Codes {
		wg.Add(1)
		go func(i int, code *Code) {
			defer wg.Done()
			start := time.Now()
			planes[i] = decodeChannel(code, im.Width, im.Height, opts)
			glog.V(1).Infof("Channel %s decoded in %.2fs", channels[i], time.Since(start).Seconds())
		}(i, code)
	}
	wg.Wait()
	return planes, nil
}

// DecodeChannel reconstructs a single width x height channel from code
func DecodeChannel(code *Code, width, height int, opts DecodeOptions) (*raster.Raster, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := code.Validate(width, height); err != nil {
		return nil, err
	}
	if err := checkDecodeSize(width, height, opts.Quality); err != nil {
		return nil, err
	}
	return decodeChannel(code, width, height, opts), nil
}

// checkDecodeSize rejects channels whose supersampled raster would exceed
// maxDecodeSamples.
func checkDecodeSize(width, height, quality int) error {
	if width < 1 || height < 1 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrCorrupt, width, height)
	}
	q := uint64(quality)
	if q > maxDecodeSamples || uint64(width)*uint64(height) > maxDecodeSamples/(q*q) {
		return fmt.Errorf("%w: %dx%d at quality %d exceeds %d samples per channel",
			ErrCorrupt, width, height, quality, maxDecodeSamples)
	}
	return nil
}

func decodeChannel(code *Code, width, height int, opts DecodeOptions) *raster.Raster {
	q := opts.Quality
	scaled := code.Scaled(q)
	w, h := width*q, height*q

	current := raster.New(w, h)
	current.Fill(scaled.Mean)

	// Every block of a step reads the previous raster, so each step writes a
	// fresh one instead of updating in place.
	for k := 0; k < opts.Iterations; k++ {
		next := raster.New(w, h)
		scaled.Apply(next, current)
		current = next
	}

	if q > 1 {
		current = current.Smooth(q - 1).Shrink(width, height)
	}
	return current
}
