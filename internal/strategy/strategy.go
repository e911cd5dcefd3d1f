// Package strategy runs the candidate transformations tried on each PDF.
//
// A Strategy couples a name with a Transformer (one external tool invocation)
// and optionally the name of an earlier strategy whose output it consumes.
// The Runner executes strategies in order against a job's scratch directory,
// each writing to the fixed path <scratch>/<name>.pdf, and reports a Result per
// strategy. Failures are values, never panics or aborts: a failed strategy is
// simply excluded from selection.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// Strategy names in priority order.
const (
	NameStructure = "structure"
	NameLossy     = "lossy"
	NameCombined  = "combined"
)

// Failed is the Size sentinel of a failed or skipped strategy.
const Failed int64 = -1

var (
	ErrNoOutput         = errors.New("strategy produced no output file")
	ErrEmptyOutput      = errors.New("strategy produced an empty output file")
	ErrTimeout          = errors.New("strategy timed out")
	ErrDependencyFailed = errors.New("input strategy output unavailable")
	ErrInvalidOutput    = errors.New("strategy output failed validation")
)

// Transformer performs one transformation from in to out.
type Transformer interface {
	Transform(ctx context.Context, in, out string) error
}

// TransformFunc adapts a function to Transformer.
type TransformFunc func(ctx context.Context, in, out string) error

// Transform calls f(ctx, in, out).
func (f TransformFunc) Transform(ctx context.Context, in, out string) error {
	return f(ctx, in, out)
}

// Strategy is one candidate transformation of an input PDF.
type Strategy struct {
	Name        string
	Transformer Transformer
	// DependsOn names an earlier strategy whose output replaces the original
	// as input. Empty means the strategy reads the original file.
	DependsOn string
}

// OutputPath is the fixed scratch location this strategy writes to.
func (s Strategy) OutputPath(scratchDir string) string {
	return filepath.Join(scratchDir, s.Name+".pdf")
}

// Result is the outcome of one strategy invocation.
type Result struct {
	Name     string
	Path     string
	Size     int64
	Err      error
	Duration time.Duration
}

// OK reports whether the strategy produced a usable candidate.
func (r Result) OK() bool {
	return r.Err == nil && r.Size >= 0 && r.Path != ""
}

func failed(name string, err error) Result {
	return Result{Name: name, Size: Failed, Err: &Error{Strategy: name, Err: err}}
}

// Error wraps the reason a strategy was excluded from selection.
type Error struct {
	Strategy string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("strategy %s failed: %v", e.Strategy, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
