package imageprocessor

import (
	"fmt"
	"image"
	"os"
	"strings"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/barasher/go-exiftool"
	"github.com/bep/imagemeta"

	"photosweep/logging"
	"photosweep/types"
)

// ExifDateLayout is the EXIF rendering of a date and time
const ExifDateLayout = "2006:01:02 15:04:05"

// Tags holding a capture time, in order of preference
var takenDateTags = []string{"DateTimeOriginal", "DateTime"}

// ErrNoTakenDate is returned by a reader that found no usable capture time
var ErrNoTakenDate = errors.NewPlain("no capture date")

// Resolution is the pixel size of a decoded image. The zero value means unknown.
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) String() string {
	if r.Width <= 0 || r.Height <= 0 {
		return types.NotAvailable
	}
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Metadata is what the metadata extractor learns about a file.
// Taken is meaningful only when HasTaken is set.
type Metadata struct {
	Resolution Resolution
	Taken      time.Time
	HasTaken   bool
}

// TakenDateReader reads the embedded capture time of a file
type TakenDateReader interface {
	TakenDate(path string) (time.Time, error)
}

// ExtractMetadata collects resolution from img and the capture time from the
// first reader that has one. It never fails; a nil img yields an unknown
// resolution.
func ExtractMetadata(path string, img image.Image, readers ...TakenDateReader) Metadata {
	var md Metadata
	if img != nil {
		b := img.Bounds()
		md.Resolution = Resolution{Width: b.Dx(), Height: b.Dy()}
	}

	for _, r := range readers {
		if r == nil {
			continue
		}
		taken, err := r.TakenDate(path)
		if err != nil {
			logging.DebugLog("no capture date for %s: %v", path, err)
			continue
		}
		md.Taken = taken
		md.HasTaken = true
		break
	}
	return md
}

// parseExifDateTime parses an EXIF date in local time
func parseExifDateTime(value string) (time.Time, error) {
	value = strings.TrimRight(strings.TrimSpace(value), "\x00")
	t, err := time.ParseInLocation(ExifDateLayout, value, time.Local)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid exif date '%s'", value)
	}
	return t, nil
}

// pickTakenDate applies the tag preference to the found values
func pickTakenDate(values map[string]string) (time.Time, error) {
	var lastErr error = ErrNoTakenDate
	for _, tag := range takenDateTags {
		v, ok := values[tag]
		if !ok || v == "" {
			continue
		}
		t, err := parseExifDateTime(v)
		if err != nil {
			lastErr = err
			continue
		}
		return t, nil
	}
	return time.Time{}, lastErr
}

// ImagemetaReader reads EXIF capture dates in-process
type ImagemetaReader struct{}

// imagemeta reports tags under exiftool names; IFD0 0x0132 is ModifyDate
var imagemetaDateTags = map[string]string{
	"DateTimeOriginal": "DateTimeOriginal",
	"ModifyDate":       "DateTime",
	"DateTime":         "DateTime",
}

func imagemetaFormat(path string) (imagemeta.ImageFormat, bool) {
	switch GetFileFormat(path) {
	case FormatJPEG:
		return imagemeta.JPEG, true
	case FormatPNG:
		return imagemeta.PNG, true
	case FormatTIFF:
		return imagemeta.TIFF, true
	case FormatWEBP:
		return imagemeta.WebP, true
	}
	var unknown imagemeta.ImageFormat
	return unknown, false
}

// TakenDate implements TakenDateReader
func (ImagemetaReader) TakenDate(path string) (time.Time, error) {
	format, ok := imagemetaFormat(path)
	if !ok {
		return time.Time{}, errors.Errorf("no exif support for %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "cannot open %s", path)
	}
	defer f.Close()

	values := map[string]string{}
	_, err = imagemeta.Decode(imagemeta.Options{
		R:           f,
		ImageFormat: format,
		Sources:     imagemeta.EXIF,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			_, ok := imagemetaDateTags[ti.Tag]
			return ok
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			if s, ok := ti.Value.(string); ok {
				values[imagemetaDateTags[ti.Tag]] = s
			}
			return nil
		},
	})
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "cannot decode exif of %s", path)
	}
	return pickTakenDate(values)
}

// ExiftoolReader delegates to a long running exiftool process. The process
// handles one request at a time.
type ExiftoolReader struct {
	et *exiftool.Exiftool
	mu sync.Mutex
}

// NewExiftoolReader starts exiftool; it fails when the binary is missing
func NewExiftoolReader() (*ExiftoolReader, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize exiftool")
	}
	return &ExiftoolReader{et: et}, nil
}

// TakenDate implements TakenDateReader
func (r *ExiftoolReader) TakenDate(path string) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.et == nil {
		return time.Time{}, errors.NewPlain("exiftool closed")
	}
	infos := r.et.ExtractMetadata(path)
	if len(infos) == 0 {
		return time.Time{}, ErrNoTakenDate
	}
	if infos[0].Err != nil {
		return time.Time{}, errors.Wrapf(infos[0].Err, "exiftool failed on %s", path)
	}

	values := map[string]string{}
	for _, tag := range takenDateTags {
		if v, err := infos[0].GetString(tag); err == nil {
			values[tag] = v
		}
	}
	// exiftool names the IFD0 date ModifyDate
	if _, ok := values["DateTime"]; !ok {
		if v, err := infos[0].GetString("ModifyDate"); err == nil {
			values["DateTime"] = v
		}
	}
	return pickTakenDate(values)
}

// Close stops the exiftool process
func (r *ExiftoolReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.et == nil {
		return nil
	}
	err := r.et.Close()
	r.et = nil
	return errors.Wrap(err, "cannot close exiftool")
}
