package fractal

import "errors"

var (
	// ErrInvalidMagic is returned when data does not start with the container magic
	ErrInvalidMagic = errors.New("fractal: invalid magic")

	// ErrUnsupportedVersion is returned for containers written by a newer format revision
	ErrUnsupportedVersion = errors.New("fractal: unsupported container version")

	// ErrTruncated is returned when data ends before a declared record
	ErrTruncated = errors.New("fractal: truncated container")

	// ErrCorrupt is returned when records are present but inconsistent
	ErrCorrupt = errors.New("fractal: corrupt container")

	// ErrInvalidBlockSize is returned for non-positive or inverted block sizes
	ErrInvalidBlockSize = errors.New("fractal: invalid block size")

	// ErrNoCandidates is returned when a channel yields no candidate blocks
	ErrNoCandidates = errors.New("fractal: empty candidate list")

	// ErrChannelCount is returned when the codes do not match the color/alpha layout
	ErrChannelCount = errors.New("fractal: channel count does not match layout")
)
