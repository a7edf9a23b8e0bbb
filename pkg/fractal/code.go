package fractal

import (
	"fmt"

	"pifs/pkg/raster"
)

// Code is the fractal code of one channel: block sizes, one Match per target
// block in row-major order, and the channel mean used to seed decoding.
//
// Targets are the blocks of raster.Split(SmallBlock) and candidates the
// blocks of raster.Split(LargeBlock) over the same channel raster.
type Code struct {
	SmallBlock int
	LargeBlock int
	Mean       uint8
	Matches    []Match
}

// BlockCount returns the number of target blocks of side small covering a
// width x height channel.
func BlockCount(width, height, small int) int {
	return ceilDiv(width, small) * ceilDiv(height, small)
}

// CandidateCount returns the number of candidate blocks of side large
// covering a width x height channel.
func CandidateCount(width, height, large int) int {
	return ceilDiv(width, large) * ceilDiv(height, large)
}

// Validate checks that c is decodable for a width x height channel
func (c *Code) Validate(width, height int) error {
	if c.SmallBlock < 1 || c.LargeBlock < 1 {
		return fmt.Errorf("%w: small=%d large=%d", ErrInvalidBlockSize, c.SmallBlock, c.LargeBlock)
	}
	if want := BlockCount(width, height, c.SmallBlock); len(c.Matches) != want {
		return fmt.Errorf("%w: %d matches for %d target blocks", ErrCorrupt, len(c.Matches), want)
	}
	candidates := CandidateCount(width, height, c.LargeBlock)
	for k, m := range c.Matches {
		if m.Candidate < 0 || m.Candidate >= candidates {
			return fmt.Errorf("%w: block %d references candidate %d of %d", ErrCorrupt, k, m.Candidate, candidates)
		}
		if m.Transform.Rotation < 0 || m.Transform.Rotation >= 360 {
			return fmt.Errorf("%w: block %d has rotation %d", ErrCorrupt, k, m.Transform.Rotation)
		}
	}
	return nil
}

// Scaled returns a copy of c with both block sizes multiplied by factor
func (c *Code) Scaled(factor int) *Code {
	return &Code{
		SmallBlock: c.SmallBlock * factor,
		LargeBlock: c.LargeBlock * factor,
		Mean:       c.Mean,
		Matches:    c.Matches,
	}
}

// Apply performs one fixed-point step: every target block of next is painted
// from its candidate region of current. current is only read and next only
// written, so the two must be distinct rasters of the same size.
func (c *Code) Apply(next, current *raster.Raster) {
	targets := next.Split(c.SmallBlock)
	candidates := current.Split(c.LargeBlock)
	for k, target := range targets {
		m := c.Matches[k]
		m.Transform.Render(target, candidates[m.Candidate])
	}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
