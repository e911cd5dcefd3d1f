// Package batch fans compression jobs out across a bounded worker pool.
package batch

import (
	"context"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"

	"pdf-squeezer-go/internal/compressor"
	"pdf-squeezer-go/internal/logger"
	"pdf-squeezer-go/internal/statistics"
)

// OutcomeHookFunc is called from a worker goroutine after each job finishes.
// index is the job's position in the batch.
type OutcomeHookFunc func(index int, outcome compressor.JobOutcome)

// Driver runs a batch of jobs.
type Driver struct {
	compressor compressor.Compressor
	logger     logrus.FieldLogger
	stats      *statistics.Statistics
	workers    int

	onOutcome OutcomeHookFunc
}

// NewDriver returns a Driver. workers <= 0 means one per CPU. stats and log
// may be nil.
func NewDriver(c compressor.Compressor, workers int, stats *statistics.Statistics, log logrus.FieldLogger) *Driver {
	if log == nil {
		log = logger.Discard()
	}
	return &Driver{
		compressor: c,
		logger:     log,
		stats:      stats,
		workers:    workers,
	}
}

// WithOutcomeHook registers fn to receive every outcome as it completes.
func (d *Driver) WithOutcomeHook(fn OutcomeHookFunc) *Driver {
	d.onOutcome = fn
	return d
}

// EffectiveWorkers returns the pool size for n jobs.
func EffectiveWorkers(requested, n int) int {
	w := requested
	if w <= 0 {
		w = runtime.NumCPU()
	}
	if w > n {
		w = n
	}
	if w < 1 {
		w = 1
	}
	return w
}

// Run processes every job and returns exactly one outcome per job, in job
// order. Once ctx is cancelled, jobs not yet started are reported as
// interrupted without running.
func (d *Driver) Run(ctx context.Context, jobs []compressor.CompressionJob) []compressor.JobOutcome {
	outcomes := make([]compressor.JobOutcome, len(jobs))
	if len(jobs) == 0 {
		return outcomes
	}

	workers := EffectiveWorkers(d.workers, len(jobs))
	d.logger.WithFields(logrus.Fields{
		"files":   len(jobs),
		"workers": workers,
	}).Info("Starting compression")
	if d.stats != nil {
		d.stats.AddFilesFound(len(jobs))
	}

	queue := make(chan int, len(jobs))
	for i := range jobs {
		queue <- i
	}
	close(queue)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.worker(ctx, jobs, outcomes, queue)
		}()
	}
	wg.Wait()

	if d.stats != nil {
		d.stats.Finalize()
	}
	d.logger.Info("Compression completed")
	return outcomes
}

func (d *Driver) worker(ctx context.Context, jobs []compressor.CompressionJob, outcomes []compressor.JobOutcome, queue <-chan int) {
	for i := range queue {
		var o compressor.JobOutcome
		if err := ctx.Err(); err != nil {
			logger.WithFile(d.logger, jobs[i].InputPath).Debug("Skipped: batch interrupted")
			o = compressor.JobOutcome{
				Job:        jobs[i],
				Strategy:   compressor.StrategyNone,
				OutputPath: jobs[i].OutputPath,
				Status:     compressor.StatusInterrupted,
				Err:        err,
			}
		} else {
			o = d.compressor.Compress(ctx, jobs[i])
		}
		outcomes[i] = o

		if d.stats != nil {
			d.stats.Record(o)
		}
		if d.onOutcome != nil {
			d.onOutcome(i, o)
		}
	}
}
