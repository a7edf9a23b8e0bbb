package fractal

import (
	"math"

	"pifs/pkg/raster"
)

// LinearFit is the affine intensity mapping f(x) = A*x + B
type LinearFit struct {
	A, B float64
}

// Identity leaves intensities unchanged
var Identity = LinearFit{A: 1, B: 0}

// Fit computes the least-squares LinearFit that maps the samples of other onto
// the samples of reference, over reference.Size()^2 pixel pairs.
//
// All four running sums start at 1 so that a uniform block never produces a
// zero denominator.
func Fit(reference, other *raster.Block) LinearFit {
	size := reference.Size()
	sumX, sumY, sumXY, sumXX := 1.0, 1.0, 1.0, 1.0
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			x := float64(other.At(i, j))
			y := float64(reference.At(i, j))
			sumX += x
			sumY += y
			sumXY += x * y
			sumXX += x * x
		}
	}

	n := float64(size * size)
	a := ((sumX * sumY / n) - sumXY) / ((sumX * sumX / n) - sumXX)
	return LinearFit{
		A: a,
		B: (sumY - a*sumX) / n,
	}
}

// Apply remaps one intensity: the affine value is clipped to [0,255] and
// rounded half to even.
func (f LinearFit) Apply(v uint8) uint8 {
	y := f.A*float64(v) + f.B
	if y <= 0 || math.IsNaN(y) {
		return 0
	}
	if y >= 255 {
		return 255
	}
	return uint8(math.RoundToEven(y))
}
