package fractal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"pifs/pkg/raster"
)

// createTestImage builds a fractal image with varied, in-range match fields
func createTestImage(width, height int, color, alpha bool) *Image {
	im := &Image{Width: width, Height: height, Color: color, Alpha: alpha}
	for c := range im.Channels() {
		small, large := 4+c, 8+2*c
		n := BlockCount(width, height, small)
		candidates := CandidateCount(width, height, large)
		code := &Code{SmallBlock: small, LargeBlock: large, Mean: uint8(40 * (c + 1)), Matches: make([]Match, n)}
		for k := range code.Matches {
			code.Matches[k] = Match{
				Candidate: (k * 7) % candidates,
				Transform: Transform{
					Rotation: (k * 37) % 360,
					Fit:      LinearFit{A: -1.5 + float64(k%13)*0.37, B: float64(k%200) - 99.7},
				},
			}
		}
		im.Codes = append(im.Codes, code)
	}
	return im
}

func assertImagesMatch(t *testing.T, got, want *Image) {
	t.Helper()
	if got.Width != want.Width || got.Height != want.Height || got.Color != want.Color || got.Alpha != want.Alpha {
		t.Fatalf("header mismatch: got %dx%d color=%v alpha=%v, want %dx%d color=%v alpha=%v",
			got.Width, got.Height, got.Color, got.Alpha, want.Width, want.Height, want.Color, want.Alpha)
	}
	if len(got.Codes) != len(want.Codes) {
		t.Fatalf("got %d codes, want %d", len(got.Codes), len(want.Codes))
	}
	for c := range want.Codes {
		g, w := got.Codes[c], want.Codes[c]
		if g.SmallBlock != w.SmallBlock || g.LargeBlock != w.LargeBlock || g.Mean != w.Mean {
			t.Fatalf("channel %d parameters = %d/%d/%d, want %d/%d/%d",
				c, g.SmallBlock, g.LargeBlock, g.Mean, w.SmallBlock, w.LargeBlock, w.Mean)
		}
		if len(g.Matches) != len(w.Matches) {
			t.Fatalf("channel %d has %d matches, want %d", c, len(g.Matches), len(w.Matches))
		}
		for k := range w.Matches {
			gm, wm := g.Matches[k], w.Matches[k]
			if gm.Candidate != wm.Candidate {
				t.Fatalf("channel %d match %d candidate = %d, want %d", c, k, gm.Candidate, wm.Candidate)
			}
			if gm.Transform.Rotation != wm.Transform.Rotation {
				t.Fatalf("channel %d match %d rotation = %d, want %d", c, k, gm.Transform.Rotation, wm.Transform.Rotation)
			}
			if !closeFloat32(gm.Transform.Fit.A, wm.Transform.Fit.A) {
				t.Fatalf("channel %d match %d A = %g, want %g", c, k, gm.Transform.Fit.A, wm.Transform.Fit.A)
			}
			if !closeFloat32(gm.Transform.Fit.B, wm.Transform.Fit.B) {
				t.Fatalf("channel %d match %d B = %g, want %g", c, k, gm.Transform.Fit.B, wm.Transform.Fit.B)
			}
		}
	}
}

func TestContainerRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name          string
		width, height int
		color, alpha  bool
		compress      bool
	}{
		{name: "gray", width: 33, height: 17, compress: false},
		{name: "gray_alpha_zstd", width: 20, height: 20, alpha: true, compress: true},
		{name: "color", width: 40, height: 24, color: true, compress: false},
		{name: "color_alpha_zstd", width: 19, height: 31, color: true, alpha: true, compress: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			want := createTestImage(tc.width, tc.height, tc.color, tc.alpha)
			data, err := want.Marshal(tc.compress)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			got, err := Unmarshal(data)
			if err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			assertImagesMatch(t, got, want)
		})
	}
}

func TestContainerRecordCount(t *testing.T) {
	im := &Image{Width: 64, Height: 64, Codes: []*Code{identityCode(64, 64, 8, 128)}}
	data, err := im.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if want := headerSize + channelSize + 64*matchSize; len(data) != want {
		t.Errorf("container is %d bytes, want %d (64 match records)", len(data), want)
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(got.Codes) != 1 || len(got.Codes[0].Matches) != 64 {
		t.Errorf("decoded %d codes with %d matches, want 1 with 64", len(got.Codes), len(got.Codes[0].Matches))
	}
}

func TestUnmarshalTruncated(t *testing.T) {
	data, err := createTestImage(12, 9, true, false).MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	for n := 0; n < len(data); n++ {
		if _, err := Unmarshal(data[:n]); !errors.Is(err, ErrTruncated) {
			t.Fatalf("Unmarshal of %d/%d bytes = %v, want ErrTruncated", n, len(data), err)
		}
	}
}

func TestUnmarshalRejectsMalformed(t *testing.T) {
	data, err := createTestImage(16, 16, false, false).MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	badMagic := append([]byte(nil), data...)
	copy(badMagic, "JUNK")
	if _, err := Unmarshal(badMagic); !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("bad magic: got %v, want ErrInvalidMagic", err)
	}

	badVersion := append([]byte(nil), data...)
	badVersion[4] = 9
	if _, err := Unmarshal(badVersion); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("bad version: got %v, want ErrUnsupportedVersion", err)
	}

	trailing := append(append([]byte(nil), data...), 0)
	if _, err := Unmarshal(trailing); !errors.Is(err, ErrCorrupt) {
		t.Errorf("trailing byte: got %v, want ErrCorrupt", err)
	}

	badCandidate := append([]byte(nil), data...)
	copy(badCandidate[headerSize+channelSize:], []byte{0xff, 0xff, 0xff, 0xff})
	if _, err := Unmarshal(badCandidate); !errors.Is(err, ErrCorrupt) {
		t.Errorf("out-of-range candidate: got %v, want ErrCorrupt", err)
	}

	zeroBlock := append([]byte(nil), data...)
	zeroBlock[headerSize], zeroBlock[headerSize+1] = 0, 0
	if _, err := Unmarshal(zeroBlock); !errors.Is(err, ErrInvalidBlockSize) {
		t.Errorf("zero block size: got %v, want ErrInvalidBlockSize", err)
	}
}

func TestMarshalValidates(t *testing.T) {
	im := createTestImage(16, 16, true, false)
	im.Codes = im.Codes[:2]
	if _, err := im.MarshalBinary(); !errors.Is(err, ErrChannelCount) {
		t.Errorf("Marshal with missing channel = %v, want ErrChannelCount", err)
	}
}

// closeFloat32 reports whether got is want rounded to single precision
func closeFloat32(got, want float64) bool {
	if math.IsNaN(want) {
		return math.IsNaN(got)
	}
	return got == float64(float32(want))
}

func TestLargeFitCoefficientsRoundTrip(t *testing.T) {
	// A dark half next to a bright half drives the regularized fit of the
	// bright targets against the dark candidates to slopes far above 32.
	r := raster.New(16, 8)
	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			if x < 8 {
				r.Set(x, y, 2)
			} else {
				r.Set(x, y, 200)
			}
		}
	}
	enc, err := NewEncoder(EncoderOptions{NumCores: 2, SmallBlock: 4, LargeBlock: 8})
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	code, err := enc.EncodeChannel(r)
	if err != nil {
		t.Fatalf("EncodeChannel: %v", err)
	}

	steep := false
	for _, m := range code.Matches {
		if math.Abs(m.Transform.Fit.A) > 32 {
			steep = true
		}
	}
	if !steep {
		t.Fatalf("expected at least one fit with |A| > 32, got %+v", code.Matches)
	}

	for _, compress := range []bool{false, true} {
		im := &Image{Width: 16, Height: 8, Codes: []*Code{code}}
		data, err := im.Marshal(compress)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		back, err := Unmarshal(data)
		if err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		assertImagesMatch(t, back, im)

		for k, m := range back.Codes[0].Matches {
			want := code.Matches[k].Transform.Fit
			for v := 0; v < 256; v++ {
				a, b := int(m.Transform.Fit.Apply(uint8(v))), int(want.Apply(uint8(v)))
				if a-b > 1 || b-a > 1 {
					t.Fatalf("match %d: Apply(%d) = %d after round trip, %d before", k, v, a, b)
				}
			}
		}
	}
}

func TestNonFiniteFitsRoundTrip(t *testing.T) {
	im := &Image{Width: 4, Height: 4, Codes: []*Code{{
		SmallBlock: 4, LargeBlock: 4,
		Matches: []Match{{Transform: Transform{Rotation: 359, Fit: LinearFit{A: math.Inf(1), B: math.NaN()}}}},
	}}}
	data, err := im.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	tr := got.Codes[0].Matches[0].Transform
	if tr.Rotation != 359 || !math.IsInf(tr.Fit.A, 1) || !math.IsNaN(tr.Fit.B) {
		t.Errorf("transform = %+v, want rotation 359, A=+Inf, B=NaN", tr)
	}
}

func TestUnmarshalRejectsBadRotation(t *testing.T) {
	data, err := createTestImage(8, 8, false, false).MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	binary.BigEndian.PutUint16(data[headerSize+channelSize+4:], 360)
	if _, err := Unmarshal(data); !errors.Is(err, ErrCorrupt) {
		t.Errorf("rotation 360: got %v, want ErrCorrupt", err)
	}
}

// createHeader builds a container header for the given dimensions and flags
func createHeader(width, height uint32, flags byte) []byte {
	h := append([]byte(magic), formatVersion, flags, 0, 0)
	h = binary.BigEndian.AppendUint32(h, width)
	return binary.BigEndian.AppendUint32(h, height)
}

func TestUnmarshalRejectsOversizedImage(t *testing.T) {
	// 65535-pixel blocks keep the record count small for a 1Mx1M image
	data := createHeader(1<<20, 1<<20, 0)
	data = append(data, 0xff, 0xff, 0xff, 0xff, 0)
	data = append(data, make([]byte, 17*17*matchSize)...)
	if _, err := Unmarshal(data); !errors.Is(err, ErrCorrupt) {
		t.Errorf("1Mx1M header: got %v, want ErrCorrupt", err)
	}
}

func TestUnmarshalRejectsOversizedBody(t *testing.T) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd.NewWriter: %v", err)
	}
	body := enc.EncodeAll(make([]byte, 8<<20), nil)
	enc.Close()

	data := append(createHeader(2, 2, flagZstd), body...)
	if _, err := Unmarshal(data); !errors.Is(err, ErrCorrupt) {
		t.Errorf("8 MiB body for a 2x2 image: got %v, want ErrCorrupt", err)
	}
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "image.pifs")
	want := createTestImage(21, 13, true, true)
	if err := WriteFile(path, want, true); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	assertImagesMatch(t, got, want)

	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.pifs")); err == nil {
		t.Errorf("ReadFile of a missing file succeeded")
	}
}

func TestCompressedBodyIsSmaller(t *testing.T) {
	im := &Image{Width: 64, Height: 64, Codes: []*Code{identityCode(64, 64, 4, 10)}}
	plain, err := im.Marshal(false)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	packed, err := im.Marshal(true)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(packed) >= len(plain) {
		t.Errorf("compressed container is %d bytes, plain %d", len(packed), len(plain))
	}
	if !bytes.Equal(packed[:4], plain[:4]) {
		t.Errorf("compressed container lost its magic")
	}
}
