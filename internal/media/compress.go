package media

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// Compress decodes an image, scales it down so neither dimension exceeds
// maxSize and re-encodes it as JPEG with the given quality. Images already
// within bounds are re-encoded without resizing.
func Compress(data []byte, maxSize, quality int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxSize || bounds.Dy() > maxSize {
		img = imaging.Fit(img, maxSize, maxSize, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
