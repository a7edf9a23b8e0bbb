package models

import "fmt"

// Channel identifies one independent 8-bit intensity plane of an image
type Channel int

const (
	Gray Channel = iota
	Red
	Green
	Blue
	Alpha
)

// String returns the lower-case channel name used in logs and debug file names
func (c Channel) String() string {
	switch c {
	case Gray:
		return "gray"
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	case Alpha:
		return "alpha"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// Layout returns the fixed channel order of a fractal image.
// Color images carry red, green and blue; grayscale images carry a single
// gray plane. An alpha plane, when present, always comes last.
func Layout(color, alpha bool) []Channel {
	var channels []Channel
	if color {
		channels = []Channel{Red, Green, Blue}
	} else {
		channels = []Channel{Gray}
	}
	if alpha {
		channels = append(channels, Alpha)
	}
	return channels
}

// ChannelCount is len(Layout(color, alpha)) without allocating
func ChannelCount(color, alpha bool) int {
	n := 1
	if color {
		n = 3
	}
	if alpha {
		n++
	}
	return n
}
