package compressor

import (
	"context"
	"time"

	"pdf-squeezer-go/internal/strategy"
)

// StrategyNone is reported when the original was kept.
const StrategyNone = "none"

// Status is the final state of a job.
type Status string

const (
	StatusCompressed  Status = "compressed"
	StatusUnchanged   Status = "unchanged"
	StatusError       Status = "error"
	StatusInterrupted Status = "interrupted"
)

// CompressionJob describes one input file to compress.
type CompressionJob struct {
	ID         string
	InputPath  string
	OutputPath string
	Quality    string
}

// JobOutcome describes the result of compressing a single file.
type JobOutcome struct {
	Job          CompressionJob
	OriginalSize int64
	FinalSize    int64
	Strategy     string
	OutputPath   string
	Status       Status
	Err          error
	DryRun       bool
	Duration     time.Duration
}

// Improved reports whether the output is strictly smaller than the input.
func (o JobOutcome) Improved() bool {
	return o.FinalSize < o.OriginalSize
}

// ReductionPercent returns the truncated size reduction in percent.
func (o JobOutcome) ReductionPercent() int {
	if o.OriginalSize <= 0 || !o.Improved() {
		return 0
	}
	return int((1 - float64(o.FinalSize)/float64(o.OriginalSize)) * 100)
}

// Compressor compresses a single job. Implementations always return an
// outcome, never an error: failures are recorded in the outcome.
type Compressor interface {
	Compress(ctx context.Context, job CompressionJob) JobOutcome
}

// Select picks the smallest successful candidate that is strictly smaller than
// original. Results are scanned in order, so on equal sizes the earlier
// strategy wins. ok is false when nothing beats the original.
func Select(original int64, results []strategy.Result) (best strategy.Result, ok bool) {
	for _, r := range results {
		if !r.OK() || r.Size >= original {
			continue
		}
		if !ok || r.Size < best.Size {
			best, ok = r, true
		}
	}
	return best, ok
}
