package types

import (
	"time"

	"github.com/corona10/goimagehash"
)

// TimestampLayout is the rendering used for every date in a report
const TimestampLayout = "2006/01/02 15:04:05"

// NotAvailable marks a value that could not be determined
const NotAvailable = "N/A"

// ErrorType classifies an ErrorRecord
type ErrorType string

const (
	ErrorTypeScan         ErrorType = "scan_error"
	ErrorTypeProcessing   ErrorType = "processing_error"
	ErrorTypeFileNotFound ErrorType = "file_not_found"
)

// MatchPhase names the strategy that produced a SimilarPair
type MatchPhase string

const (
	MatchPhaseExact      MatchPhase = "exact"
	MatchPhasePerceptual MatchPhase = "perceptual"
)

// Side identifies one member of a SimilarPair
type Side string

const (
	SideFile1 Side = "file1"
	SideFile2 Side = "file2"
)

// ImageRecord holds the features of a file that passed blur scoring,
// perceptual hashing and content digesting. It is never modified after
// construction.
type ImageRecord struct {
	ID             string
	Path           string
	Filename       string
	SizeMB         float64
	Resolution     string
	ModifiedAt     time.Time
	TakenDate      string
	BlurScore      int
	PerceptualHash *goimagehash.ImageHash
	ContentDigest  string
}

// ModifiedDate renders the modification time the way reports show it
func (r *ImageRecord) ModifiedDate() string {
	return r.ModifiedAt.Format(TimestampLayout)
}

// BlurryImage is the blur projection of a processed file
type BlurryImage struct {
	ID           string  `json:"id"`
	Filename     string  `json:"filename"`
	Path         string  `json:"path"`
	SizeMB       float64 `json:"size"`
	ModifiedDate string  `json:"modifiedDate"`
	TakenDate    string  `json:"takenDate"`
	Resolution   string  `json:"resolution"`
	BlurScore    int     `json:"blurScore"`
}

// SimilarPair describes two files judged identical or visually similar
type SimilarPair struct {
	ID          string     `json:"id"`
	ID1         string     `json:"id1"`
	ID2         string     `json:"id2"`
	Filename1   string     `json:"filename1"`
	Path1       string     `json:"path1"`
	Resolution1 string     `json:"resolution1"`
	SizeMB1     float64    `json:"size1"`
	Filename2   string     `json:"filename2"`
	Path2       string     `json:"path2"`
	Resolution2 string     `json:"resolution2"`
	SizeMB2     float64    `json:"size2"`
	Similarity  int        `json:"similarity"`
	MatchPhase  MatchPhase `json:"matchPhase"`
	Recommended Side       `json:"recommended"`
}

// ErrorRecord reports a file or directory that could not be processed.
// SizeMB is set only when the file could be stat'ed.
type ErrorRecord struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	Filepath     string    `json:"filepath"`
	ErrorMessage string    `json:"errorMessage"`
	ErrorType    ErrorType `json:"errorType"`
	SizeMB       *float64  `json:"size,omitempty"`
}

// Report is the single result of a scan
type Report struct {
	BlurryImages      []BlurryImage `json:"blurryImages"`
	SimilarImagePairs []SimilarPair `json:"similarImagePairs"`
	ErrorFiles        []ErrorRecord `json:"errorFiles"`
}

// NewReport returns a report whose lists encode as empty arrays
func NewReport() Report {
	return Report{
		BlurryImages:      []BlurryImage{},
		SimilarImagePairs: []SimilarPair{},
		ErrorFiles:        []ErrorRecord{},
	}
}
