package imageprocessor

import (
	"bufio"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"slices"

	"emperror.dev/errors"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// BaseImageLoader provides common functionality for all image loaders
type BaseImageLoader struct {
	// Formats this loader can handle
	SupportedFormats []FormatType
}

// CanLoad checks the file extension against SupportedFormats
func (l *BaseImageLoader) CanLoad(path string) bool {
	return l.supports(GetFileFormat(path))
}

func (l *BaseImageLoader) supports(format FormatType) bool {
	return slices.Contains(l.SupportedFormats, format)
}

// StandardImageLoader handles formats registered with the image package:
// JPEG, PNG, GIF, BMP and WebP
type StandardImageLoader struct {
	BaseImageLoader
}

// NewStandardImageLoader creates a new loader for standard image formats
func NewStandardImageLoader() *StandardImageLoader {
	return &StandardImageLoader{
		BaseImageLoader: BaseImageLoader{
			SupportedFormats: []FormatType{
				FormatJPEG,
				FormatPNG,
				FormatGIF,
				FormatBMP,
				FormatWEBP,
			},
		},
	}
}

// LoadImage decodes a standard image format, sniffing the content
func (l *StandardImageLoader) LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open %s", path)
	}
	defer f.Close()

	img, _, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, newImageLoadError(err, "failed to decode image", path)
	}
	return img, nil
}

// TiffImageLoader specializes in TIFF format loading
type TiffImageLoader struct {
	BaseImageLoader
}

// NewTiffImageLoader creates a new TIFF image loader
func NewTiffImageLoader() *TiffImageLoader {
	return &TiffImageLoader{
		BaseImageLoader: BaseImageLoader{
			SupportedFormats: []FormatType{FormatTIFF},
		},
	}
}

// LoadImage decodes a TIFF file. tiff.Decode needs random access, so the
// file is handed over without buffering.
func (l *TiffImageLoader) LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open %s", path)
	}
	defer f.Close()

	img, err := tiff.Decode(f)
	if err != nil {
		return nil, newImageLoadError(err, "failed to decode TIFF image", path)
	}
	return img, nil
}

func newImageLoadError(err error, message, path string) error {
	return errors.Wrapf(err, "%s: %s", message, path)
}
