package statistics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pdf-squeezer-go/internal/compressor"
)

// Statistics contains aggregate counters for one compression batch.
type Statistics struct {
	TotalFilesFound     int64
	TotalFilesProcessed int64
	FilesCompressed     int64
	FilesUnchanged      int64
	FilesWithErrors     int64
	FilesInterrupted    int64

	BytesIn  int64
	BytesOut int64

	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
	FilesPerSecond float64

	Errors []StatError

	// StrategyWins counts how often each strategy produced the kept output.
	StrategyWins map[string]int64

	mutex sync.RWMutex
}

// StatError represents an error that occurred during processing.
type StatError struct {
	FilePath  string
	Operation string
	Error     string
	Timestamp time.Time
}

// Snapshot is a point-in-time copy of the counters, safe to serialize.
type Snapshot struct {
	FilesFound       int64            `json:"files_found"`
	FilesProcessed   int64            `json:"files_processed"`
	FilesCompressed  int64            `json:"files_compressed"`
	FilesUnchanged   int64            `json:"files_unchanged"`
	FilesWithErrors  int64            `json:"files_with_errors"`
	FilesInterrupted int64            `json:"files_interrupted"`
	BytesIn          int64            `json:"bytes_in"`
	BytesOut         int64            `json:"bytes_out"`
	BytesSaved       int64            `json:"bytes_saved"`
	StrategyWins     map[string]int64 `json:"strategy_wins"`
	Duration         string           `json:"duration"`
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime:    time.Now(),
		Errors:       make([]StatError, 0),
		StrategyWins: make(map[string]int64),
	}
}

// AddFilesFound increases the count of found files by n.
func (s *Statistics) AddFilesFound(n int) {
	atomic.AddInt64(&s.TotalFilesFound, int64(n))
}

// Record folds a job outcome into the counters.
func (s *Statistics) Record(o compressor.JobOutcome) {
	atomic.AddInt64(&s.TotalFilesProcessed, 1)

	switch o.Status {
	case compressor.StatusCompressed:
		atomic.AddInt64(&s.FilesCompressed, 1)
		s.mutex.Lock()
		s.StrategyWins[o.Strategy]++
		s.mutex.Unlock()
	case compressor.StatusUnchanged:
		atomic.AddInt64(&s.FilesUnchanged, 1)
	case compressor.StatusInterrupted:
		atomic.AddInt64(&s.FilesInterrupted, 1)
		return
	default:
		atomic.AddInt64(&s.FilesWithErrors, 1)
		msg := "unknown error"
		if o.Err != nil {
			msg = o.Err.Error()
		}
		s.AddError(o.Job.InputPath, "compress", msg)
		return
	}

	atomic.AddInt64(&s.BytesIn, o.OriginalSize)
	atomic.AddInt64(&s.BytesOut, o.FinalSize)
}

// Finalize calculates duration and throughput.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)

	totalProcessed := atomic.LoadInt64(&s.TotalFilesProcessed)
	if s.Duration.Seconds() > 0 {
		s.FilesPerSecond = float64(totalProcessed) / s.Duration.Seconds()
	}
}

// AddError records an error that occurred during processing.
func (s *Statistics) AddError(filePath, operation, errorMsg string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Errors = append(s.Errors, StatError{
		FilePath:  filePath,
		Operation: operation,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
}

// BytesSaved returns the total reduction across processed files.
func (s *Statistics) BytesSaved() int64 {
	return atomic.LoadInt64(&s.BytesIn) - atomic.LoadInt64(&s.BytesOut)
}

// ReductionPercent returns the truncated overall size reduction in percent.
func (s *Statistics) ReductionPercent() int {
	in := atomic.LoadInt64(&s.BytesIn)
	out := atomic.LoadInt64(&s.BytesOut)
	if in <= 0 || out >= in {
		return 0
	}
	return int((1 - float64(out)/float64(in)) * 100)
}

// HasFailures reports whether any job errored or was interrupted.
func (s *Statistics) HasFailures() bool {
	return atomic.LoadInt64(&s.FilesWithErrors) > 0 || atomic.LoadInt64(&s.FilesInterrupted) > 0
}

// Snapshot returns a copy of the counters.
func (s *Statistics) Snapshot() Snapshot {
	s.mutex.RLock()
	wins := make(map[string]int64, len(s.StrategyWins))
	for k, v := range s.StrategyWins {
		wins[k] = v
	}
	duration := s.Duration
	if s.EndTime.IsZero() {
		duration = time.Since(s.StartTime)
	}
	s.mutex.RUnlock()

	return Snapshot{
		FilesFound:       atomic.LoadInt64(&s.TotalFilesFound),
		FilesProcessed:   atomic.LoadInt64(&s.TotalFilesProcessed),
		FilesCompressed:  atomic.LoadInt64(&s.FilesCompressed),
		FilesUnchanged:   atomic.LoadInt64(&s.FilesUnchanged),
		FilesWithErrors:  atomic.LoadInt64(&s.FilesWithErrors),
		FilesInterrupted: atomic.LoadInt64(&s.FilesInterrupted),
		BytesIn:          atomic.LoadInt64(&s.BytesIn),
		BytesOut:         atomic.LoadInt64(&s.BytesOut),
		BytesSaved:       s.BytesSaved(),
		StrategyWins:     wins,
		Duration:         duration.Round(time.Millisecond).String(),
	}
}

// GetSummary returns a formatted summary of all statistics.
func (s *Statistics) GetSummary() string {
	return fmt.Sprintf(`PDF Squeezer Statistics Summary:

Files:
		Total Found: %d
		Total Processed: %d
		Compressed: %d
		Unchanged: %d
		Errors: %d
		Interrupted: %d

Size:
		Before: %s
		After: %s
		Saved: %s (%d%%)

Performance:
		Duration: %v
		Files/Second: %.2f`,
		atomic.LoadInt64(&s.TotalFilesFound),
		atomic.LoadInt64(&s.TotalFilesProcessed),
		atomic.LoadInt64(&s.FilesCompressed),
		atomic.LoadInt64(&s.FilesUnchanged),
		atomic.LoadInt64(&s.FilesWithErrors),
		atomic.LoadInt64(&s.FilesInterrupted),
		FormatBytes(atomic.LoadInt64(&s.BytesIn)),
		FormatBytes(atomic.LoadInt64(&s.BytesOut)),
		FormatBytes(s.BytesSaved()),
		s.ReductionPercent(),
		s.GetDuration().Round(time.Millisecond),
		s.GetFilesPerSecond())
}

// GetStrategyBreakdown returns how often each strategy won, sorted by name.
func (s *Statistics) GetStrategyBreakdown() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.StrategyWins) == 0 {
		return "No strategy produced a smaller file"
	}

	names := make([]string, 0, len(s.StrategyWins))
	for name := range s.StrategyWins {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Strategy Breakdown:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  %s: %d\n", name, s.StrategyWins[name])
	}
	return b.String()
}

// GetErrorSummary returns a summary of errors that occurred during processing.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			result += fmt.Sprintf("  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		result += fmt.Sprintf("  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.FilePath,
			err.Error)
	}
	return result
}

// FormatBytes returns a human-readable string for a byte count.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < 0 {
		return "-" + FormatBytes(-bytes)
	}
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// GetTotalFilesProcessed returns the total number of files processed.
func (s *Statistics) GetTotalFilesProcessed() int64 {
	return atomic.LoadInt64(&s.TotalFilesProcessed)
}

// GetFilesWithErrors returns the total number of files with errors.
func (s *Statistics) GetFilesWithErrors() int64 {
	return atomic.LoadInt64(&s.FilesWithErrors)
}

// GetDuration returns the total duration of the operation.
func (s *Statistics) GetDuration() time.Duration {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.Duration
}

// GetFilesPerSecond returns the average number of files processed per second.
func (s *Statistics) GetFilesPerSecond() float64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.FilesPerSecond
}
