// Package imageprocessor provides the per-file image primitives of a scan:
// decoding, metadata, sharpness, perceptual hashing and content digests.
package imageprocessor

import "image"

// ImageLoader is the interface that all image loaders must implement
type ImageLoader interface {
	// CanLoad checks if the loader can handle the given file
	CanLoad(path string) bool

	// LoadImage decodes the file into an image
	LoadImage(path string) (image.Image, error)
}
