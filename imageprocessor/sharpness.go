package imageprocessor

import (
	"emperror.dev/errors"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"
)

// DefaultLaplacianKernel is the aperture used for the sharpness statistic
const DefaultLaplacianKernel = 3

// LaplacianMeter measures sharpness as the population variance of the
// Laplacian of the grayscale image. Low variance means few edges.
type LaplacianMeter struct {
	KernelSize int
}

// NewLaplacianMeter creates a meter with the given odd kernel size
func NewLaplacianMeter(kernelSize int) (*LaplacianMeter, error) {
	if kernelSize < 1 || kernelSize > 31 || kernelSize%2 == 0 {
		return nil, errors.Errorf("laplacian kernel size must be odd and in [1,31], got %d", kernelSize)
	}
	return &LaplacianMeter{KernelSize: kernelSize}, nil
}

// Variance reads path as grayscale and returns the Laplacian variance
func (m *LaplacianMeter) Variance(path string) (float64, error) {
	img := gocv.IMRead(path, gocv.IMReadGrayScale)
	if img.Empty() {
		img.Close()
		return 0, errors.Errorf("cannot read image for blur detection: %s", path)
	}
	defer img.Close()

	lap := gocv.NewMat()
	defer lap.Close()

	gocv.Laplacian(img, &lap, gocv.MatTypeCV64F, m.KernelSize, 1, 0, gocv.BorderDefault)
	if lap.Empty() {
		return 0, errors.Errorf("laplacian produced no output: %s", path)
	}

	data, err := lap.DataPtrFloat64()
	if err != nil {
		return 0, errors.Wrapf(err, "cannot access laplacian data: %s", path)
	}
	if len(data) == 0 {
		return 0, errors.Errorf("empty laplacian: %s", path)
	}

	return stat.PopVariance(data, nil), nil
}
