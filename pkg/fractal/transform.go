package fractal

import (
	"math"

	"pifs/pkg/raster"
)

// angleTolerance is the bracket width, in degrees, at which the rotation
// search stops.
const angleTolerance = 5

// Transform maps a source block onto a target block: a rotation about the
// source block's center combined with the scale implied by the two block
// sizes, followed by an intensity remapping.
type Transform struct {
	// Rotation is the angle in whole degrees, in [0,360)
	Rotation int

	// Fit remaps every sampled source intensity
	Fit LinearFit
}

// Render paints dst with src seen through t.
//
// For output coordinates (is, js) the source position is obtained with the
// complex rotation-scaling r*e^(i*theta), r = S/T, around c = S/2 and sampled
// with nearest-neighbour rounding. Reads follow the clamped Block contract.
func (t Transform) Render(dst, src *raster.Block) {
	size := dst.Size()
	s := src.Size()

	ratio := float64(s) / float64(size)
	theta := float64(t.Rotation) * math.Pi / 180
	dx := ratio * math.Cos(theta)
	dy := ratio * math.Sin(theta)
	c := float64(s / 2)

	for is := 0; is < size; is++ {
		fi := float64(is) - c
		for js := 0; js < size; js++ {
			fj := float64(js) - c
			i := int(math.RoundToEven(dx*fi - dy*fj + c))
			j := int(math.RoundToEven(dy*fi + dx*fj + c))
			dst.Set(is, js, t.Fit.Apply(src.At(i, j)))
		}
	}
}

// varianceDifference fits candidate onto target and returns the variance of
// the absolute per-pixel error left after applying that fit, along with the
// fit itself. A uniform brightness offset absorbed by the fit does not count.
func varianceDifference(target, candidate *raster.Block) (float64, LinearFit) {
	fit := Fit(target, candidate)
	size := target.Size()

	var sumSquares, sumAbs float64
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			e := float64(int(fit.Apply(candidate.At(i, j))) - int(target.At(i, j)))
			sumSquares += e * e
			sumAbs += math.Abs(e)
		}
	}

	n := float64(size * size)
	mean := sumAbs / n
	return sumSquares/n - mean*mean, fit
}

// searcher owns the scratch block reused across transform evaluations.
// A searcher must not be shared between goroutines.
type searcher struct {
	scratch     *raster.Block
	evaluations int
}

func newSearcher(size int) *searcher {
	return &searcher{scratch: raster.NewBlock(size)}
}

// evaluate renders source at the given rotation with no intensity remapping
// and scores it against target.
func (s *searcher) evaluate(target, source *raster.Block, rotation int) (float64, LinearFit) {
	s.evaluations++
	Transform{Rotation: rotation, Fit: Identity}.Render(s.scratch, source)
	return varianceDifference(target, s.scratch)
}

// transform searches the rotation of source that best matches target.
//
// The search brackets [0,360] and repeatedly evaluates the midpoint, truncated
// to a whole degree, moving whichever bound currently holds the larger error
// onto it. This descends
// into a local minimum of the error-vs-angle curve; it is not guaranteed to
// find the global one. The fit evaluated at 360 only bounds the search and is
// never returned.
func (s *searcher) transform(target, source *raster.Block) (Transform, float64) {
	if s.scratch.Size() != target.Size() {
		s.scratch = raster.NewBlock(target.Size())
	}

	high := Transform{Rotation: 360, Fit: Identity}
	highErr, _ := s.evaluate(target, source, high.Rotation)

	low := Transform{Rotation: 0}
	lowErr, lowFit := s.evaluate(target, source, low.Rotation)
	low.Fit = lowFit

	for high.Rotation-low.Rotation > angleTolerance {
		mid := Transform{Rotation: (low.Rotation + high.Rotation) / 2}
		var midErr float64
		midErr, mid.Fit = s.evaluate(target, source, mid.Rotation)

		if lowErr < highErr {
			high, highErr = mid, midErr
		} else {
			low, lowErr = mid, midErr
		}
	}

	if highErr < lowErr && high.Rotation < 360 {
		return high, highErr
	}
	return low, lowErr
}

// FindTransform returns the Transform that best maps source onto target and
// the variance error it achieves. It is deterministic for identical inputs.
func FindTransform(target, source *raster.Block) (Transform, float64) {
	return newSearcher(target.Size()).transform(target, source)
}
