// Package quality measures how closely a decoded image reproduces the
// original it was encoded from.
package quality

import (
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"pifs/internal/models"
	"pifs/pkg/raster"
)

// Metrics holds the reconstruction metrics, averaged over the compared
// channels.
type Metrics struct {
	// MSE is the mean squared error on the 0-255 intensity scale
	MSE float64

	// RMSE is the square root of MSE
	RMSE float64

	// PSNR is the peak signal-to-noise ratio in dB; +Inf for identical images
	PSNR float64

	// SSIM is the global structural similarity index in [-1, 1]
	SSIM float64

	// EntropyDiff is the absolute difference of the Shannon entropies, in bits
	EntropyDiff float64
}

// Compare computes the metrics of reconstructed against original. The
// channels compared are those the original carries: gray, or red, green and
// blue, plus alpha when the original has transparency.
func Compare(original, reconstructed image.Image) (Metrics, error) {
	ob, rb := original.Bounds(), reconstructed.Bounds()
	if ob.Dx() != rb.Dx() || ob.Dy() != rb.Dy() {
		return Metrics{}, fmt.Errorf("image sizes differ: %dx%d vs %dx%d", ob.Dx(), ob.Dy(), rb.Dx(), rb.Dy())
	}
	if ob.Empty() {
		return Metrics{}, fmt.Errorf("cannot compare empty images")
	}

	isColor, hasAlpha := raster.Inspect(original)
	channels := models.Layout(isColor, hasAlpha)

	var m Metrics
	var sumSquares float64
	var count int
	for _, ch := range channels {
		x := samples(raster.Extract(original, ch))
		y := samples(raster.Extract(reconstructed, ch))

		d := floats.Distance(x, y, 2)
		sumSquares += d * d
		count += len(x)

		m.SSIM += calculateSSIM(x, y)
		m.EntropyDiff += math.Abs(calculateEntropy(x) - calculateEntropy(y))
	}

	n := float64(len(channels))
	m.SSIM /= n
	m.EntropyDiff /= n

	m.MSE = sumSquares / float64(count) * 255 * 255
	m.RMSE = math.Sqrt(m.MSE)
	m.PSNR = psnr(m.MSE)
	return m, nil
}

// samples returns the channel intensities scaled to [0,1]
func samples(r *raster.Raster) []float64 {
	pix := r.Gray().Pix
	out := make([]float64, len(pix))
	for i, v := range pix {
		out[i] = float64(v) / 255
	}
	return out
}

func psnr(mse float64) float64 {
	if mse == 0 {
		return math.Inf(1)
	}
	return 10 * math.Log10(255*255/mse)
}

// calculateSSIM computes the Structural Similarity Index over the whole plane
func calculateSSIM(original, reconstructed []float64) float64 {
	// Constants for SSIM calculation
	const L = 1.0 // Dynamic range
	const k1 = 0.01
	const k2 = 0.03

	c1 := (k1 * L) * (k1 * L)
	c2 := (k2 * L) * (k2 * L)

	n := len(original)
	if n != len(reconstructed) || n == 0 {
		return 0
	}

	muX := stat.Mean(original, nil)
	muY := stat.Mean(reconstructed, nil)

	var sigmaX, sigmaY, sigmaXY float64
	if n > 1 {
		sigmaX = stat.Variance(original, nil)
		sigmaY = stat.Variance(reconstructed, nil)
		sigmaXY = stat.Covariance(original, reconstructed, nil)
	}

	num := (2*muX*muY + c1) * (2*sigmaXY + c2)
	den := (muX*muX + muY*muY + c1) * (sigmaX + sigmaY + c2)
	return num / den
}

// calculateEntropy computes the Shannon entropy, in bits, of the 256-level
// intensity histogram of data.
func calculateEntropy(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}

	hist := make([]float64, 256)
	for _, v := range data {
		bin := int(math.Round(v * 255))
		if bin < 0 {
			bin = 0
		} else if bin > 255 {
			bin = 255
		}
		hist[bin]++
	}
	floats.Scale(1/float64(len(data)), hist)

	return stat.Entropy(hist) / math.Ln2
}
