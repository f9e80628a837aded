package imageprocessor

import (
	"crypto/sha256"
	"encoding/hex"
	"image"
	"io"
	"os"

	"emperror.dev/errors"
	"github.com/corona10/goimagehash"
)

// ErrNilImage is returned when hashing is attempted without a decoded image
var ErrNilImage = errors.NewPlain("no decoded image")

// ComputeAverageHash calculates the 64 bit average hash of img
func ComputeAverageHash(img image.Image) (*goimagehash.ImageHash, error) {
	if img == nil {
		return nil, ErrNilImage
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, errors.Errorf("cannot hash empty image %dx%d", bounds.Dx(), bounds.Dy())
	}

	hash, err := goimagehash.AverageHash(img)
	if err != nil {
		return nil, errors.Wrap(err, "average hash")
	}
	return hash, nil
}

// HammingDistance returns the number of differing bits of two hashes
func HammingDistance(a, b *goimagehash.ImageHash) (int, error) {
	if a == nil || b == nil {
		return 0, errors.NewPlain("missing perceptual hash")
	}
	return a.Distance(b)
}

// ComputeContentDigest streams path through SHA-256 and returns the hex digest
func ComputeContentDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "cannot open %s", path)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrapf(err, "cannot read %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
