package strategy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"pdf-squeezer-go/internal/config"
	"pdf-squeezer-go/internal/logger"
)

// VerifyFunc validates a candidate before it is accepted.
type VerifyFunc func(path string) error

// Runner executes strategies against a scratch directory.
type Runner struct {
	// Timeout bounds each strategy; zero disables it.
	Timeout time.Duration
	// Verify, when set, must accept a candidate for it to count as successful.
	Verify VerifyFunc
	Log    logrus.FieldLogger
}

// NewRunner builds a Runner from configuration.
func NewRunner(cfg *config.Config, log logrus.FieldLogger) *Runner {
	r := &Runner{
		Timeout: cfg.Strategies.Timeout,
		Log:     log,
	}
	if cfg.Strategies.VerifyOutput {
		r.Verify = Verify
	}
	return r
}

// Default returns the three strategies in priority order: structure-only,
// lossy, then lossy followed by structure-only.
func Default(cfg *config.Config) []Strategy {
	optimizer := NewOptimizer(cfg)
	return []Strategy{
		{Name: NameStructure, Transformer: optimizer},
		{Name: NameLossy, Transformer: NewGhostscript(cfg)},
		{Name: NameCombined, Transformer: optimizer, DependsOn: NameLossy},
	}
}

// RunAll runs strategies in order and returns one Result per strategy, in the
// same order. A strategy whose dependency failed is skipped and reported as
// failed with ErrDependencyFailed.
func (r *Runner) RunAll(ctx context.Context, input, scratchDir string, strategies []Strategy) []Result {
	results := make([]Result, 0, len(strategies))
	byName := make(map[string]Result, len(strategies))

	for _, s := range strategies {
		in := input
		if s.DependsOn != "" {
			dep, ok := byName[s.DependsOn]
			if !ok || !dep.OK() {
				res := failed(s.Name, ErrDependencyFailed)
				logger.WithFile(r.log(), input).WithField("strategy", s.Name).Debugf("Skipping: %s output unavailable", s.DependsOn)
				results = append(results, res)
				byName[s.Name] = res
				continue
			}
			in = dep.Path
		}

		res := r.Run(ctx, s, in, scratchDir)
		results = append(results, res)
		byName[s.Name] = res
	}
	return results
}

// Run executes a single strategy reading in and writing to its fixed scratch path.
func (r *Runner) Run(ctx context.Context, s Strategy, in, scratchDir string) Result {
	start := time.Now()
	out := s.OutputPath(scratchDir)
	entry := logger.WithStrategy(r.log(), s.Name)

	if err := ctx.Err(); err != nil {
		return failed(s.Name, err)
	}

	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var info os.FileInfo
	err := s.Transformer.Transform(runCtx, in, out)
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("%w after %s", ErrTimeout, r.Timeout)
	}
	if err == nil {
		info, err = checkOutput(out)
	}
	if err == nil && r.Verify != nil {
		err = r.Verify(out)
	}
	if err != nil {
		_ = os.Remove(out)
		res := failed(s.Name, err)
		res.Duration = time.Since(start)
		entry.WithError(err).Warn("Strategy failed")
		return res
	}

	res := Result{
		Name:     s.Name,
		Path:     out,
		Size:     info.Size(),
		Duration: time.Since(start),
	}
	entry.WithFields(logrus.Fields{
		"size":     res.Size,
		"duration": res.Duration.Round(time.Millisecond),
	}).Debug("Strategy succeeded")
	return res
}

func (r *Runner) log() logrus.FieldLogger {
	if r.Log == nil {
		return logger.Discard()
	}
	return r.Log
}

// checkOutput returns the candidate's file info once it is known to be a
// non-empty regular file.
func checkOutput(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, ErrNoOutput
	}
	if info.Size() == 0 {
		return nil, ErrEmptyOutput
	}
	return info, nil
}
