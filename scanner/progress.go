package scanner

import (
	"time"

	"photosweep/logging"
)

const progressInterval = 500 * time.Millisecond

// NewProgressTracker initializes the progress tracker
func NewProgressTracker(stats FileStats, display bool) *ProgressTracker {
	tracker := &ProgressTracker{
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
		totalFiles: stats.totalFiles,
	}

	if display {
		tracker.ticker = time.NewTicker(progressInterval)
		go tracker.displayProgress()
	} else {
		close(tracker.stopped)
	}

	return tracker
}

// displayProgress logs the progress periodically. The report owns stdout,
// so progress goes to the logger.
func (p *ProgressTracker) displayProgress() {
	defer close(p.stopped)
	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.C:
			processed, errs, blurry := p.Counts()
			logging.Logger().Info().
				Int("processed", processed).
				Int("total", p.totalFiles).
				Int("errors", errs).
				Int("blurry", blurry).
				Msg("progress")
		}
	}
}

// Record updates the tracker state with the outcome of one file
func (p *ProgressTracker) Record(o Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processed++
	if o.Failed() {
		p.errors++
	}
	if o.Blurry != nil {
		p.blurry++
	}
}

// Counts returns processed files, failed files and blurry files so far
func (p *ProgressTracker) Counts() (processed, errs, blurry int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processed, p.errors, p.blurry
}

// Stop ends the progress tracking
func (p *ProgressTracker) Stop() {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
	if p.ticker != nil {
		p.ticker.Stop()
	}
	<-p.stopped
}

// LogStartupInfo logs information about the scan before starting
func LogStartupInfo(stats FileStats, options ScanOptions) {
	logging.LogInfo("starting scan of %s (recursive: %v), %d image files, %d workers",
		options.FolderPath, options.Recursive, stats.totalFiles, options.MaxWorkers)
	if options.FileTimeout > 0 {
		logging.DebugLog("per-file timeout: %v", options.FileTimeout)
	}
}

// LogCompletionStats logs statistics after scan completion
func LogCompletionStats(tracker *ProgressTracker, startTime time.Time, pairs int) {
	elapsed := time.Since(startTime)
	processed, errs, blurry := tracker.Counts()

	logging.LogInfo("scan complete: processed %d of %d files in %v, %d blurry, %d similar pairs",
		processed, tracker.totalFiles, elapsed.Round(time.Millisecond), blurry, pairs)
	if errs > 0 {
		logging.LogWarning("%d files could not be processed", errs)
	}
}
