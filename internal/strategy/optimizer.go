package strategy

import (
	"context"
	"fmt"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"pdf-squeezer-go/internal/config"
)

// qpdf exits 3 when it succeeded with warnings.
const qpdfExitWarnings = 3

var disableConfigDir sync.Once

// pdfcpuConfig returns a fresh pdfcpu configuration that never touches the
// user's config directory.
func pdfcpuConfig() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)
	return model.NewDefaultConfiguration()
}

// Pdfcpu is the in-process structure-only optimizer. It rewrites the PDF
// with object and xref streams and drops redundant resources; image data is
// left untouched.
type Pdfcpu struct{}

// Transform optimizes in into out. pdfcpu cannot be interrupted once started,
// so only a context cancelled beforehand is honored.
func (Pdfcpu) Transform(ctx context.Context, in, out string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := api.OptimizeFile(in, out, pdfcpuConfig()); err != nil {
		return fmt.Errorf("pdfcpu optimize: %w", err)
	}
	return nil
}

// Qpdf is the subprocess structure-only optimizer.
type Qpdf struct {
	Binary string
}

// Args returns the qpdf command line for in -> out.
func (q *Qpdf) Args(in, out string) []string {
	return []string{
		"--object-streams=generate",
		"--compress-streams=y",
		"--recompress-flate",
		"--linearize",
		in,
		out,
	}
}

// Transform runs qpdf. Warnings (exit 3) still count as success; the runner
// checks the output exists.
func (q *Qpdf) Transform(ctx context.Context, in, out string) error {
	return runCommand(ctx, q.Binary, q.Args(in, out), qpdfExitWarnings)
}

// NewOptimizer returns the structure-only transformer selected by cfg.
func NewOptimizer(cfg *config.Config) Transformer {
	if cfg.Strategies.Optimizer == config.OptimizerQpdf {
		return &Qpdf{Binary: cfg.Strategies.QpdfPath}
	}
	return Pdfcpu{}
}

// Verify checks that path is a readable PDF using pdfcpu's relaxed validation.
func Verify(path string) error {
	conf := pdfcpuConfig()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(path, conf); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	return nil
}

// PageCount returns the number of pages in the PDF at path.
func PageCount(path string) (int, error) {
	return api.PageCountFile(path)
}
