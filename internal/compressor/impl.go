package compressor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"pdf-squeezer-go/internal/logger"
	"pdf-squeezer-go/internal/strategy"
)

// ErrNotRegularFile is returned for inputs that are directories or devices.
var ErrNotRegularFile = errors.New("not a regular file")

// PDFCompressor runs every strategy on a job in its own scratch directory and
// keeps the smallest result.
type PDFCompressor struct {
	Runner     *strategy.Runner
	Strategies []strategy.Strategy
	// DryRun runs the strategies but writes nothing.
	DryRun bool
	Log    logrus.FieldLogger
	// ScratchRoot is the parent of per-job scratch directories; empty means
	// the system temp directory.
	ScratchRoot string
	// Pages, if set, is used to log the page count of the winner at debug
	// level. It parses the whole file, so it is skipped otherwise.
	Pages func(path string) (int, error)
}

// NewPDFCompressor creates a PDFCompressor.
func NewPDFCompressor(runner *strategy.Runner, strategies []strategy.Strategy, dryRun bool, log logrus.FieldLogger) *PDFCompressor {
	return &PDFCompressor{
		Runner:     runner,
		Strategies: strategies,
		DryRun:     dryRun,
		Log:        log,
		Pages:      strategy.PageCount,
	}
}

// Compress processes a single job.
func (c *PDFCompressor) Compress(ctx context.Context, job CompressionJob) (out JobOutcome) {
	start := time.Now()
	out = JobOutcome{
		Job:        job,
		Strategy:   StrategyNone,
		OutputPath: job.OutputPath,
		DryRun:     c.DryRun,
	}
	entry := logger.WithJob(c.log(), job.ID, job.InputPath)
	defer func() {
		out.Duration = time.Since(start)
		logger.WithFields(entry, logrus.Fields{
			"status":   out.Status,
			"strategy": out.Strategy,
			"original": out.OriginalSize,
			"final":    out.FinalSize,
		}).Debug("Job finished")
	}()

	if err := ctx.Err(); err != nil {
		return interrupted(out, err)
	}

	info, err := os.Stat(job.InputPath)
	if err != nil {
		return fail(out, err)
	}
	if !info.Mode().IsRegular() {
		return fail(out, fmt.Errorf("%s: %w", job.InputPath, ErrNotRegularFile))
	}
	out.OriginalSize = info.Size()
	out.FinalSize = info.Size()

	scratch, err := os.MkdirTemp(c.ScratchRoot, "pdf-squeezer-")
	if err != nil {
		return fail(out, fmt.Errorf("create scratch dir: %w", err))
	}
	defer os.RemoveAll(scratch)

	results := c.Runner.RunAll(ctx, job.InputPath, scratch, c.Strategies)
	if err := ctx.Err(); err != nil {
		return interrupted(out, err)
	}

	src := job.InputPath
	winner, ok := Select(info.Size(), results)
	if ok {
		src = winner.Path
		out.Strategy = winner.Name
		out.FinalSize = winner.Size
		out.Status = StatusCompressed
		if c.Pages != nil && debugEnabled(c.log()) {
			if pages, err := c.Pages(winner.Path); err == nil {
				entry.WithField("pages", pages).Debug("Selected candidate")
			}
		}
	} else {
		out.Status = StatusUnchanged
	}

	if c.DryRun {
		return out
	}
	// In place with nothing better: the input already is the output.
	if !ok && samePath(job.InputPath, job.OutputPath) {
		return out
	}
	if err := copyFile(src, job.OutputPath, info.Mode().Perm()); err != nil {
		return fail(out, fmt.Errorf("write output: %w", err))
	}
	return out
}

func (c *PDFCompressor) log() logrus.FieldLogger {
	if c.Log == nil {
		return logger.Discard()
	}
	return c.Log
}

func debugEnabled(l logrus.FieldLogger) bool {
	switch l := l.(type) {
	case *logrus.Logger:
		return l.IsLevelEnabled(logrus.DebugLevel)
	case *logrus.Entry:
		return l.Logger.IsLevelEnabled(logrus.DebugLevel)
	}
	return false
}

func fail(out JobOutcome, err error) JobOutcome {
	out.Status = StatusError
	out.Err = err
	out.FinalSize = out.OriginalSize
	out.Strategy = StrategyNone
	return out
}

func interrupted(out JobOutcome, err error) JobOutcome {
	out.Status = StatusInterrupted
	out.Err = err
	out.FinalSize = out.OriginalSize
	out.Strategy = StrategyNone
	return out
}

func samePath(a, b string) bool {
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}

// copyFile copies src to dst through a temporary file in dst's directory and
// renames it into place, so dst is never observed half-written.
func copyFile(src, dst string, perm fs.FileMode) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpName, perm); err != nil {
		return err
	}
	err = os.Rename(tmpName, dst)
	return err
}
