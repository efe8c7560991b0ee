package indexer

// ProgressReporter provides callbacks for reporting indexing progress.
// Implementations can display progress bars, log messages, or remain silent.
// Callbacks run on the builder's goroutines and must not block for long.
type ProgressReporter interface {
	// OnDiscoveryStart is called when file discovery begins.
	OnDiscoveryStart()

	// OnDiscoveryComplete is called with the number of discovered files.
	OnDiscoveryComplete(files int)

	// OnExtractionStart is called before extracting changed files.
	OnExtractionStart(totalFiles int)

	// OnFileCommitted is called after each file is committed.
	OnFileCommitted(path string)

	// OnFileFailed is called when a file cannot be read or extracted.
	OnFileFailed(path string, err error)

	// OnModulesResolved is called after the module graph is replaced.
	OnModulesResolved(modules, deps int)

	// OnComplete is called when the run completes successfully.
	OnComplete(stats *Stats)
}

// NoOpProgressReporter is a progress reporter that does nothing.
// Used when progress reporting is disabled (e.g., --json output).
type NoOpProgressReporter struct{}

func (NoOpProgressReporter) OnDiscoveryStart()                {}
func (NoOpProgressReporter) OnDiscoveryComplete(files int)    {}
func (NoOpProgressReporter) OnExtractionStart(totalFiles int) {}
func (NoOpProgressReporter) OnFileCommitted(path string)      {}
func (NoOpProgressReporter) OnFileFailed(path string, err error) {
}
func (NoOpProgressReporter) OnModulesResolved(modules, deps int) {}
func (NoOpProgressReporter) OnComplete(stats *Stats)             {}
