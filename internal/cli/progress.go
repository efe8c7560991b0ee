package cli

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/mvp-joe/ast-index/internal/indexer"
)

// CLIProgressReporter draws a progress bar for extraction and logs the
// other phases. Output goes to w (stderr) so stdout stays parseable.
type CLIProgressReporter struct {
	w       io.Writer
	logger  *log.Logger
	verbose bool

	mu      sync.Mutex
	fileBar *progressbar.ProgressBar
}

// NewCLIProgressReporter creates a reporter writing to w.
func NewCLIProgressReporter(w io.Writer, verbose bool) *CLIProgressReporter {
	return &CLIProgressReporter{
		w:       w,
		logger:  log.New(w, "", log.LstdFlags),
		verbose: verbose,
	}
}

func (c *CLIProgressReporter) OnDiscoveryStart() {
	c.logger.Println("Discovering files...")
}

func (c *CLIProgressReporter) OnDiscoveryComplete(files int) {
	c.logger.Printf("Found %s source files\n", formatNumber(files))
}

func (c *CLIProgressReporter) OnExtractionStart(totalFiles int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if totalFiles == 0 {
		return
	}
	c.fileBar = progressbar.NewOptions(totalFiles,
		progressbar.OptionSetWriter(c.w),
		progressbar.OptionSetDescription("Indexing files"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files/s"),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(c.w)
		}),
	)
}

func (c *CLIProgressReporter) OnFileCommitted(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fileBar != nil {
		c.fileBar.Add(1)
	}
}

func (c *CLIProgressReporter) OnFileFailed(path string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fileBar != nil {
		c.fileBar.Add(1)
	}
	if c.verbose {
		c.logger.Printf("⚠ %s: %v\n", path, err)
	}
}

func (c *CLIProgressReporter) OnModulesResolved(modules, deps int) {
	c.finishBar()
	c.logger.Printf("Resolved %s modules with %s dependencies\n", formatNumber(modules), formatNumber(deps))
}

func (c *CLIProgressReporter) OnComplete(stats *indexer.Stats) {
	c.finishBar()
}

func (c *CLIProgressReporter) finishBar() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fileBar != nil {
		c.fileBar.Finish()
		c.fileBar = nil
	}
}

// formatNumber renders n with thousands separators.
func formatNumber(n int) string {
	str := fmt.Sprintf("%d", n)
	if n < 1000 && n > -1000 {
		return str
	}
	var result []byte
	digits := str
	if n < 0 {
		result = append(result, '-')
		digits = str[1:]
	}
	for i := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, digits[i])
	}
	return string(result)
}
