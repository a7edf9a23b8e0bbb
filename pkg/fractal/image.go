package fractal

import (
	"fmt"

	"pifs/internal/models"
)

// Image is a whole fractal-compressed image: its dimensions, the color and
// alpha flags, and one Code per channel in models.Layout order.
type Image struct {
	Width  int
	Height int
	Color  bool
	Alpha  bool
	Codes  []*Code
}

// Channels returns the channel identifiers matching Codes
func (im *Image) Channels() []models.Channel {
	return models.Layout(im.Color, im.Alpha)
}

// Validate checks that the image is internally consistent and decodable
func (im *Image) Validate() error {
	if im.Width < 1 || im.Height < 1 || uint64(im.Width)*uint64(im.Height) > maxPixels {
		return fmt.Errorf("%w: dimensions %dx%d", ErrCorrupt, im.Width, im.Height)
	}
	if want := models.ChannelCount(im.Color, im.Alpha); len(im.Codes) != want {
		return fmt.Errorf("%w: have %d codes, want %d", ErrChannelCount, len(im.Codes), want)
	}
	for i, code := range im.Codes {
		if code == nil {
			return fmt.Errorf("%w: channel %d has no code", ErrCorrupt, i)
		}
		if err := code.Validate(im.Width, im.Height); err != nil {
			return fmt.Errorf("channel %s: %w", im.Channels()[i], err)
		}
	}
	return nil
}
