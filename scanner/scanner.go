package scanner

import (
	"context"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"emperror.dev/errors"

	"photosweep/imageprocessor"
	"photosweep/logging"
	"photosweep/matcher"
	"photosweep/scoring"
	"photosweep/signalhandler"
	"photosweep/types"
)

// NewDefaultExtractor builds an extractor with the default decoders, a
// kernel 3 Laplacian meter, the default blur bounds and EXIF dates read
// in-process.
func NewDefaultExtractor() *Extractor {
	return NewExtractor(
		imageprocessor.NewImageLoaderRegistry(),
		&imageprocessor.LaplacianMeter{KernelSize: imageprocessor.DefaultLaplacianKernel},
		scoring.DefaultBlur(),
		DefaultBlurThreshold,
		imageprocessor.ImagemetaReader{},
	)
}

// Scan lists the image files of options.FolderPath, extracts their features
// on a bounded worker pool and matches the processed pool. It always
// returns a report; failures become error records.
//
// Cancelling ctx stops dispatching new files. Files already running finish
// and the partial report is returned.
func Scan(ctx context.Context, options ScanOptions) types.Report {
	options = withDefaults(options)
	report := types.NewReport()

	paths, err := ListImageFiles(options.FolderPath, options.Recursive, options.Extensions)
	if err != nil {
		logging.LogError("folder scan failed: %v", err)
		report.ErrorFiles = append(report.ErrorFiles, scanRootError(options.FolderPath, err, len(report.ErrorFiles)))
		return report
	}

	stats := FileStats{totalFiles: len(paths)}
	LogStartupInfo(stats, options)

	tracker := NewProgressTracker(stats, options.Progress)
	startTime := time.Now()

	// Initialize components for parallel processing
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		records []*types.ImageRecord
	)
	semaphore := make(chan struct{}, options.MaxWorkers)

	dispatched := 0
dispatch:
	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case semaphore <- struct{}{}:
		}

		dispatched++
		wg.Add(1)
		go func(path string) {
			defer wg.Done()

			outcome := processFile(options.Extractor, path, options.FileTimeout, func() { <-semaphore })
			tracker.Record(outcome)
			var firstErr error
			if outcome.Failed() {
				firstErr = errors.NewPlain(outcome.Errors[0].ErrorMessage)
			}
			logging.LogImageProcessed(path, firstErr)

			mu.Lock()
			defer mu.Unlock()
			if outcome.Record != nil {
				records = append(records, outcome.Record)
			}
			if outcome.Blurry != nil {
				report.BlurryImages = append(report.BlurryImages, *outcome.Blurry)
			}
			report.ErrorFiles = append(report.ErrorFiles, outcome.Errors...)
		}(path)
	}

	// Wait for all processing to complete
	wg.Wait()
	tracker.Stop()

	if dispatched < len(paths) {
		logging.LogWarning("scan cancelled, %d of %d files were not processed", len(paths)-dispatched, len(paths))
	}

	// Stable snapshot for matching
	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	sortBlurry(report.BlurryImages)
	sortErrors(report.ErrorFiles)

	report.SimilarImagePairs = options.Matcher.Match(records)

	LogCompletionStats(tracker, startTime, len(report.SimilarImagePairs))
	return report
}

func withDefaults(options ScanOptions) ScanOptions {
	if options.MaxWorkers < 1 {
		options.MaxWorkers = signalhandler.GetOptimalProcs()
	}
	if options.Extensions == nil {
		options.Extensions = imageprocessor.NewExtensionSet(imageprocessor.DefaultScanExtensions)
	}
	if options.Extractor == nil {
		options.Extractor = NewDefaultExtractor()
	}
	if options.Matcher == nil {
		options.Matcher = matcher.New(scoring.DefaultSimilarity(), matcher.DefaultThreshold, options.MaxWorkers)
	}
	return options
}

// processFile runs the extractor, giving up on the file after timeout.
// release is called once the extraction has really finished, so an
// abandoned extraction keeps its worker slot; its result is discarded.
func processFile(extractor *Extractor, path string, timeout time.Duration, release func()) Outcome {
	if timeout <= 0 {
		defer release()
		return extractor.Extract(path)
	}

	done := make(chan Outcome, 1)
	go func() {
		defer release()
		done <- extractor.Extract(path)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case outcome := <-done:
		return outcome
	case <-timer.C:
		logging.LogWarning("giving up on %s after %v", path, timeout)
		return Outcome{Path: path, Errors: []types.ErrorRecord{timeoutError(path, timeout)}}
	}
}

func scanRootError(root string, err error, n int) types.ErrorRecord {
	return types.ErrorRecord{
		ID:           "err_scan_root_" + strconv.Itoa(n),
		Filename:     filepath.Base(root),
		Filepath:     root,
		ErrorMessage: "folder scan failed: " + err.Error(),
		ErrorType:    types.ErrorTypeScan,
	}
}

func sortBlurry(list []types.BlurryImage) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Path != list[j].Path {
			return list[i].Path < list[j].Path
		}
		return list[i].ID < list[j].ID
	})
}

func sortErrors(list []types.ErrorRecord) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Filepath != list[j].Filepath {
			return list[i].Filepath < list[j].Filepath
		}
		return list[i].ID < list[j].ID
	})
}
