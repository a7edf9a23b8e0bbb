package fractal

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
)

// Container layout, big-endian:
//
//	header   magic "PIFS" | version u8 | flags u8 | reserved u16 | width u32 | height u32
//	channel  small u16 | large u16 | mean u8
//	match    candidate u32 | rotation u16 | a f32 | b f32     (x block count)
//
// Channel and match records form the body, which is optionally one zstd frame.
// Rotation is in whole degrees. The fit coefficients are IEEE 754 single
// precision: regularized fits against dark candidates reach slopes in the
// hundreds, beyond any fixed-point range that fits 16 bits.
const (
	magic         = "PIFS"
	formatVersion = 1

	headerSize  = 16
	channelSize = 5
	matchSize   = 14

	flagColor = 1 << 0
	flagAlpha = 1 << 1
	flagZstd  = 1 << 2
)

// Limits on what an untrusted container may make the decoder allocate
const (
	// maxPixels bounds width*height of a channel
	maxPixels = 1 << 28

	// maxBodySize bounds the decompressed body
	maxBodySize = 1 << 30

	// minBodyLimit leaves room for the smallest zstd windows
	minBodyLimit = 1 << 20
)

// MarshalBinary encodes im with an uncompressed body
func (im *Image) MarshalBinary() ([]byte, error) {
	return im.Marshal(false)
}

// Marshal encodes im into the container format, zstd-compressing the body
// when compress is set.
func (im *Image) Marshal(compress bool) ([]byte, error) {
	if err := im.Validate(); err != nil {
		return nil, err
	}

	var flags byte
	if im.Color {
		flags |= flagColor
	}
	if im.Alpha {
		flags |= flagAlpha
	}
	if compress {
		flags |= flagZstd
	}

	header := make([]byte, 0, headerSize)
	header = append(header, magic...)
	header = append(header, formatVersion, flags, 0, 0)
	header = binary.BigEndian.AppendUint32(header, uint32(im.Width))
	header = binary.BigEndian.AppendUint32(header, uint32(im.Height))

	body, err := im.marshalBody()
	if err != nil {
		return nil, err
	}
	if compress {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			return nil, fmt.Errorf("zstd encode: %w", err)
		}
		body = enc.EncodeAll(body, nil)
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("zstd encode: %w", err)
		}
	}
	return append(header, body...), nil
}

func (im *Image) marshalBody() ([]byte, error) {
	size := 0
	for _, code := range im.Codes {
		size += channelSize + matchSize*len(code.Matches)
	}

	buf := bytes.NewBuffer(make([]byte, 0, size))
	var rec [matchSize]byte
	for i, code := range im.Codes {
		if code.SmallBlock > math.MaxUint16 || code.LargeBlock > math.MaxUint16 {
			return nil, fmt.Errorf("channel %s: %w: small=%d large=%d do not fit 16 bits",
				im.Channels()[i], ErrInvalidBlockSize, code.SmallBlock, code.LargeBlock)
		}
		binary.BigEndian.PutUint16(rec[0:], uint16(code.SmallBlock))
		binary.BigEndian.PutUint16(rec[2:], uint16(code.LargeBlock))
		rec[4] = code.Mean
		buf.Write(rec[:channelSize])

		for _, m := range code.Matches {
			packMatch(rec[:], m)
			buf.Write(rec[:])
		}
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a container produced by Marshal
func Unmarshal(data []byte) (*Image, error) {
	im := &Image{}
	if err := im.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return im, nil
}

// UnmarshalBinary decodes a container in a single forward pass. It never
// reads past the end of data: short input yields ErrTruncated.
func (im *Image) UnmarshalBinary(data []byte) error {
	r := &reader{data: data}
	header, err := r.take(headerSize, "header")
	if err != nil {
		return err
	}
	if string(header[:4]) != magic {
		return ErrInvalidMagic
	}
	if header[4] != formatVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, header[4])
	}
	flags := header[5]
	width := binary.BigEndian.Uint32(header[8:])
	height := binary.BigEndian.Uint32(header[12:])
	if width == 0 || height == 0 || uint64(width)*uint64(height) > maxPixels {
		return fmt.Errorf("%w: dimensions %dx%d", ErrCorrupt, width, height)
	}

	out := Image{
		Width:  int(width),
		Height: int(height),
		Color:  flags&flagColor != 0,
		Alpha:  flags&flagAlpha != 0,
	}

	if flags&flagZstd != 0 {
		dec, err := zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(bodyLimit(out.Width, out.Height, len(out.Channels()))))
		if err != nil {
			return fmt.Errorf("zstd decode: %w", err)
		}
		body, err := dec.DecodeAll(r.rest(), nil)
		dec.Close()
		if err != nil {
			return fmt.Errorf("%w: zstd body: %v", ErrCorrupt, err)
		}
		r = &reader{data: body}
	}

	for _, ch := range out.Channels() {
		rec, err := r.take(channelSize, ch.String()+" channel record")
		if err != nil {
			return err
		}
		code := &Code{
			SmallBlock: int(binary.BigEndian.Uint16(rec[0:])),
			LargeBlock: int(binary.BigEndian.Uint16(rec[2:])),
			Mean:       rec[4],
		}
		if code.SmallBlock == 0 || code.LargeBlock == 0 {
			return fmt.Errorf("channel %s: %w: small=%d large=%d", ch, ErrInvalidBlockSize, code.SmallBlock, code.LargeBlock)
		}

		cols, rows := ceilDiv(out.Width, code.SmallBlock), ceilDiv(out.Height, code.SmallBlock)
		if cols > len(r.rest())/matchSize/rows {
			return fmt.Errorf("%w: %s channel declares %dx%d blocks, %d bytes left",
				ErrTruncated, ch, cols, rows, len(r.rest()))
		}
		count := cols * rows
		matches, err := r.take(count*matchSize, fmt.Sprintf("%d %s match records", count, ch))
		if err != nil {
			return err
		}
		code.Matches = make([]Match, count)
		for k := range code.Matches {
			code.Matches[k] = unpackMatch(matches[k*matchSize:])
		}
		out.Codes = append(out.Codes, code)
	}

	if n := len(r.rest()); n != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, n)
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*im = out
	return nil
}

// bodyLimit caps the zstd decoder's memory for a width x height image with
// the given channel count. The largest valid body has one match per pixel in
// every channel; the encoder may pick a window of up to twice the input, and
// never below minBodyLimit.
func bodyLimit(width, height, channels int) uint64 {
	n := uint64(channels) * (channelSize + matchSize*uint64(width)*uint64(height))
	n = 2*n + minBodyLimit
	if n > maxBodySize {
		return maxBodySize
	}
	return n
}

func packMatch(rec []byte, m Match) {
	binary.BigEndian.PutUint32(rec[0:], uint32(m.Candidate))
	binary.BigEndian.PutUint16(rec[4:], uint16(m.Transform.Rotation))
	binary.BigEndian.PutUint32(rec[6:], math.Float32bits(float32(m.Transform.Fit.A)))
	binary.BigEndian.PutUint32(rec[10:], math.Float32bits(float32(m.Transform.Fit.B)))
}

func unpackMatch(rec []byte) Match {
	return Match{
		Candidate: int(binary.BigEndian.Uint32(rec[0:])),
		Transform: Transform{
			Rotation: int(binary.BigEndian.Uint16(rec[4:])),
			Fit: LinearFit{
				A: float64(math.Float32frombits(binary.BigEndian.Uint32(rec[6:]))),
				B: float64(math.Float32frombits(binary.BigEndian.Uint32(rec[10:]))),
			},
		},
	}
}


// reader hands out consecutive slices of data, refusing to run past its end
type reader struct {
	data []byte
	pos  int
}

func (r *reader) take(n int, what string) ([]byte, error) {
	if n < 0 || len(r.data)-r.pos < n {
		return nil, fmt.Errorf("%w: %s needs %d bytes, %d left", ErrTruncated, what, n, len(r.data)-r.pos)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) rest() []byte {
	return r.data[r.pos:]
}
