package scanner

import (
	"sync"
	"time"

	"photosweep/imageprocessor"
	"photosweep/matcher"
	"photosweep/types"
)

// ScanOptions defines the options for scanning
type ScanOptions struct {
	FolderPath  string
	Recursive   bool
	Extensions  imageprocessor.ExtensionSet
	MaxWorkers  int           // Optional worker limit, defaults to GetOptimalProcs
	FileTimeout time.Duration // Zero disables the per-file timeout
	Progress    bool          // Log progress while files are processed
	Extractor   *Extractor
	Matcher     *matcher.Matcher
}

// Outcome is the result of processing one file. Record is set only when
// every stage succeeded; Blurry may be set even when hashing failed.
type Outcome struct {
	Path   string
	Record *types.ImageRecord
	Blurry *types.BlurryImage
	Errors []types.ErrorRecord
}

// Failed reports whether the file produced any error record
func (o Outcome) Failed() bool {
	return len(o.Errors) > 0
}

// FileStats tracks information about files to be processed
type FileStats struct {
	totalFiles int
}

// ProgressTracker tracks progress of the scan operation
type ProgressTracker struct {
	processed  int
	errors     int
	blurry     int
	ticker     *time.Ticker
	done       chan struct{}
	stopped    chan struct{}
	mu         sync.Mutex
	totalFiles int
}
