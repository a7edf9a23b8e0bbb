package fractal

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/golang/glog"

	"pifs/internal/models"
	"pifs/pkg/raster"
)

// EncoderOptions holds the encoding parameters.
type EncoderOptions struct {
	// NumCores is the number of workers searching target blocks concurrently
	NumCores int

	// SmallBlock is the side of the target (range) blocks
	SmallBlock int

	// LargeBlock is the side of the candidate (domain) blocks; it should be
	// larger than SmallBlock so that every mapping is contractive
	LargeBlock int
}

// Validate checks the options for values the encoder cannot work with
func (o EncoderOptions) Validate() error {
	if o.NumCores < 1 {
		return fmt.Errorf("numCores must be at least 1, got %d", o.NumCores)
	}
	if o.SmallBlock < 1 || o.LargeBlock < o.SmallBlock {
		return fmt.Errorf("%w: small=%d large=%d", ErrInvalidBlockSize, o.SmallBlock, o.LargeBlock)
	}
	return nil
}

// Encoder builds fractal codes.
//
// Target blocks are independent: every worker reads the shared, immutable
// candidate set and writes only its own slot of the match list, so no locking
// is needed beyond handing out block indices.
type Encoder struct {
	opts EncoderOptions
}

// NewEncoder creates an encoder after validating opts
func NewEncoder(opts EncoderOptions) (*Encoder, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Encoder{opts: opts}, nil
}

// Encode builds the fractal image of img. The channel set follows
// models.Layout(isColor, hasAlpha); each channel is searched in turn with
// all workers.
func (e *Encoder) Encode(img image.Image, isColor, hasAlpha bool) (*Image, error) {
	b := img.Bounds()
	out := &Image{
		Width:  b.Dx(),
		Height: b.Dy(),
		Color:  isColor,
		Alpha:  hasAlpha,
	}

	glog.Infof("Encoding %dx%d image (color=%v, alpha=%v) with blocks %d/%d on %d cores",
		out.Width, out.Height, isColor, hasAlpha, e.opts.SmallBlock, e.opts.LargeBlock, e.opts.NumCores)

	for _, ch := range models.Layout(isColor, hasAlpha) {
		start := time.Now()
		code, err := e.EncodeChannel(raster.Extract(img, ch))
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s channel: %w", ch, err)
		}
		out.Codes = append(out.Codes, code)
		glog.V(1).Infof("Channel %s: %d blocks, mean %d, %.2fs",
			ch, len(code.Matches), code.Mean, time.Since(start).Seconds())
	}
	return out, nil
}

// EncodeChannel builds the fractal code of a single channel raster
func (e *Encoder) EncodeChannel(r *raster.Raster) (*Code, error) {
	targets := r.Split(e.opts.SmallBlock)
	candidates := r.Split(e.opts.LargeBlock)
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	code := &Code{
		SmallBlock: e.opts.SmallBlock,
		LargeBlock: e.opts.LargeBlock,
		Mean:       r.Mean(),
		Matches:    make([]Match, len(targets)),
	}

	numWorkers := e.opts.NumCores
	if numWorkers > len(targets) {
		numWorkers = len(targets)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := newSearcher(e.opts.SmallBlock)
			for k := range jobs {
				m, variance := s.match(targets[k], candidates)
				code.Matches[k] = m
				if glog.V(2) {
					glog.Infof("block %d -> candidate %d, rotation %d, variance %.3f",
						k, m.Candidate, m.Transform.Rotation, variance)
				}
			}
		}()
	}

	for k := range targets {
		jobs <- k
	}
	close(jobs)
	wg.Wait()

	return code, nil
}
