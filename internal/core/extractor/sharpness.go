package extractor

import (
	"gocv.io/x/gocv"
)

// cropSharpness computes the variance of the Laplacian over the
// grayscale face crop. Returns ok=false when the clamped bbox has no
// area, which the caller scores as quality 0.
func cropSharpness(img gocv.Mat, bbox []float64) (float64, bool) {
	rect, ok := clampRect(bbox, img.Cols(), img.Rows())
	if !ok {
		return 0, false
	}

	crop := img.Region(rect)
	defer crop.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(crop, &gray, gocv.ColorBGRToGray)

	laplacian := gocv.NewMat()
	defer laplacian.Close()
	gocv.Laplacian(gray, &laplacian, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)

	mean := gocv.NewMat()
	defer mean.Close()
	stdDev := gocv.NewMat()
	defer stdDev.Close()
	gocv.MeanStdDev(laplacian, &mean, &stdDev)

	sd := stdDev.GetDoubleAt(0, 0)
	return sd * sd, true
}
