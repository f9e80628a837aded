package scanner

import (
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"emperror.dev/errors"
	"github.com/corona10/goimagehash"

	"photosweep/imageprocessor"
	"photosweep/logging"
	"photosweep/scoring"
	"photosweep/types"
	"photosweep/utils"
)

// DefaultBlurThreshold is the blur score from which a file counts as blurry
const DefaultBlurThreshold = 50

// SharpnessMeter computes the raw sharpness statistic of a file
type SharpnessMeter interface {
	Variance(path string) (float64, error)
}

// ImageDecoder decodes a file into an image
type ImageDecoder interface {
	LoadImage(path string) (image.Image, error)
}

// Extractor turns one path into an Outcome. It holds no per-file state and
// is safe for concurrent use when its collaborators are.
type Extractor struct {
	Decoder       ImageDecoder
	Meter         SharpnessMeter
	TakenDates    []imageprocessor.TakenDateReader
	Blur          scoring.Normalizer
	BlurThreshold int
	Hash          func(image.Image) (*goimagehash.ImageHash, error)
	Digest        func(path string) (string, error)
}

// NewExtractor wires the default hashing and digest functions
func NewExtractor(decoder ImageDecoder, meter SharpnessMeter, blur scoring.Normalizer, blurThreshold int, readers ...imageprocessor.TakenDateReader) *Extractor {
	return &Extractor{
		Decoder:       decoder,
		Meter:         meter,
		TakenDates:    readers,
		Blur:          blur,
		BlurThreshold: blurThreshold,
		Hash:          imageprocessor.ComputeAverageHash,
		Digest:        imageprocessor.ComputeContentDigest,
	}
}

// Extract runs every stage for path. A panic in any stage is turned into a
// processing error.
func (e *Extractor) Extract(path string) (out Outcome) {
	out.Path = path
	filename := filepath.Base(path)
	id := utils.ShortID(path)

	defer func() {
		if r := recover(); r != nil {
			logging.LogError("panic while processing %s: %v", path, r)
			out = Outcome{
				Path:   path,
				Errors: []types.ErrorRecord{generalError(id, filename, path, fmt.Sprintf("%v", r))},
			}
		}
	}()

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			out.Errors = append(out.Errors, types.ErrorRecord{
				ID:           "err_fnf_" + id,
				Filename:     filename,
				Filepath:     path,
				ErrorMessage: "file not found (moved or deleted during the scan)",
				ErrorType:    types.ErrorTypeFileNotFound,
			})
			return out
		}
		out.Errors = append(out.Errors, generalError(id, filename, path, err.Error()))
		return out
	}

	sizeMB := utils.SizeMB(info.Size())
	modifiedAt := info.ModTime().Truncate(time.Second)
	modifiedDate := utils.FormatTimestamp(modifiedAt)

	img, decodeErr := e.Decoder.LoadImage(path)
	if decodeErr != nil {
		logging.DebugLog("decode failed for %s: %v", path, decodeErr)
		img = nil
	}
	md := imageprocessor.ExtractMetadata(path, img, e.TakenDates...)
	takenDate := modifiedDate
	if md.HasTaken {
		takenDate = utils.FormatTimestamp(md.Taken)
	}
	resolution := md.Resolution.String()

	variance, err := e.Meter.Variance(path)
	if err != nil {
		out.Errors = append(out.Errors, types.ErrorRecord{
			ID:           "err_blur_" + id,
			Filename:     filename,
			Filepath:     path,
			ErrorMessage: "blur computation failed (image could not be read or processed): " + err.Error(),
			ErrorType:    types.ErrorTypeProcessing,
			SizeMB:       utils.Float64Ptr(sizeMB),
		})
		return out
	}
	blurScore := e.Blur.Score(variance)

	if blurScore >= e.BlurThreshold {
		out.Blurry = &types.BlurryImage{
			ID:           "blur_" + id,
			Filename:     filename,
			Path:         path,
			SizeMB:       sizeMB,
			ModifiedDate: modifiedDate,
			TakenDate:    takenDate,
			Resolution:   resolution,
			BlurScore:    blurScore,
		}
	}

	var hash *goimagehash.ImageHash
	var hashErr error
	if img == nil {
		hashErr = imageprocessor.ErrNilImage
		if decodeErr != nil {
			hashErr = errors.Wrap(decodeErr, "image could not be decoded")
		}
	} else {
		hash, hashErr = e.Hash(img)
	}
	if hashErr != nil {
		out.Errors = append(out.Errors, types.ErrorRecord{
			ID:           "err_ahash_" + id,
			Filename:     filename,
			Filepath:     path,
			ErrorMessage: "perceptual hash computation failed: " + hashErr.Error(),
			ErrorType:    types.ErrorTypeProcessing,
			SizeMB:       utils.Float64Ptr(sizeMB),
		})
	}

	digest, digestErr := e.Digest(path)
	if digestErr != nil {
		out.Errors = append(out.Errors, types.ErrorRecord{
			ID:           "err_sha256_" + id,
			Filename:     filename,
			Filepath:     path,
			ErrorMessage: "SHA-256 digest computation failed: " + digestErr.Error(),
			ErrorType:    types.ErrorTypeProcessing,
			SizeMB:       utils.Float64Ptr(sizeMB),
		})
	}

	if hashErr != nil || digestErr != nil {
		return out
	}

	out.Record = &types.ImageRecord{
		ID:             id,
		Path:           path,
		Filename:       filename,
		SizeMB:         sizeMB,
		Resolution:     resolution,
		ModifiedAt:     modifiedAt,
		TakenDate:      takenDate,
		BlurScore:      blurScore,
		PerceptualHash: hash,
		ContentDigest:  digest,
	}
	return out
}

func generalError(id, filename, path, message string) types.ErrorRecord {
	return types.ErrorRecord{
		ID:           "err_proc_" + id,
		Filename:     filename,
		Filepath:     path,
		ErrorMessage: "file processing error: " + message,
		ErrorType:    types.ErrorTypeProcessing,
	}
}

func timeoutError(path string, timeout time.Duration) types.ErrorRecord {
	return types.ErrorRecord{
		ID:           "err_timeout_" + utils.ShortID(path),
		Filename:     filepath.Base(path),
		Filepath:     path,
		ErrorMessage: fmt.Sprintf("processing timed out after %v", timeout),
		ErrorType:    types.ErrorTypeProcessing,
	}
}
