// Package report renders per-file results, the batch summary table and the
// confirmation prompt for the terminal.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"pdf-squeezer-go/internal/compressor"
	"pdf-squeezer-go/internal/config"
	"pdf-squeezer-go/internal/statistics"
)

// maxSampleNames is how many inputs the confirmation summary lists.
const maxSampleNames = 5

// Reporter writes human-readable output. It is safe for concurrent use;
// lines from different workers never interleave.
type Reporter struct {
	mu    sync.Mutex
	out   io.Writer
	quiet bool

	ok, warn, bad, dim *color.Color
}

// New returns a Reporter writing to out. Colors are enabled only when out is
// a terminal, NO_COLOR is unset and quiet is false.
func New(out io.Writer, quiet bool) *Reporter {
	r := &Reporter{
		out:   out,
		quiet: quiet,
		ok:    color.New(color.FgGreen),
		warn:  color.New(color.FgYellow),
		bad:   color.New(color.FgRed, color.Bold),
		dim:   color.New(color.Faint),
	}
	r.SetColor(!quiet && colorAllowed(out))
	return r
}

// SetColor forces colors on or off.
func (r *Reporter) SetColor(enabled bool) {
	for _, c := range []*color.Color{r.ok, r.warn, r.bad, r.dim} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

func colorAllowed(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" || strings.EqualFold(os.Getenv("TERM"), "dumb") {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ResultLine formats one outcome without color.
func ResultLine(o compressor.JobOutcome) string {
	return formatResult(o, fmt.Sprint, fmt.Sprint, fmt.Sprint)
}

func formatResult(o compressor.JobOutcome, ok, warn, bad func(...interface{}) string) string {
	name := filepath.Base(o.Job.InputPath)
	var line string
	switch o.Status {
	case compressor.StatusCompressed:
		line = fmt.Sprintf("%s  %s -> %s %s via %s",
			name,
			statistics.FormatBytes(o.OriginalSize),
			statistics.FormatBytes(o.FinalSize),
			ok(fmt.Sprintf("(-%d%%)", o.ReductionPercent())),
			o.Strategy)
	case compressor.StatusUnchanged:
		line = fmt.Sprintf("%s  %s %s", name, statistics.FormatBytes(o.OriginalSize), warn("(no reduction)"))
	case compressor.StatusInterrupted:
		line = fmt.Sprintf("%s  %s", name, warn("interrupted"))
	default:
		msg := "unknown error"
		if o.Err != nil {
			msg = o.Err.Error()
		}
		line = fmt.Sprintf("%s  %s %s", name, bad("ERROR:"), msg)
	}
	if o.DryRun {
		line = "[dry-run] " + line
	}
	return line
}

// Result prints one outcome. In quiet mode only errors are printed.
func (r *Reporter) Result(o compressor.JobOutcome) {
	if r.quiet && o.Status != compressor.StatusError {
		return
	}
	line := formatResult(o, r.ok.Sprint, r.warn.Sprint, r.bad.Sprint)

	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, line)
}

// Summary prints a table of all outcomes with a TOTAL row.
func (r *Reporter) Summary(outcomes []compressor.JobOutcome) {
	if r.quiet || len(outcomes) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tw := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tORIGINAL\tFINAL\tSAVED\tSTRATEGY\t")

	var in, out int64
	for _, o := range outcomes {
		if o.Status == compressor.StatusError || o.Status == compressor.StatusInterrupted {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t%s\t\n", filepath.Base(o.Job.InputPath), o.Status)
			continue
		}
		in += o.OriginalSize
		out += o.FinalSize
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d%%\t%s\t\n",
			filepath.Base(o.Job.InputPath),
			statistics.FormatBytes(o.OriginalSize),
			statistics.FormatBytes(o.FinalSize),
			o.ReductionPercent(),
			o.Strategy)
	}
	total := compressor.JobOutcome{OriginalSize: in, FinalSize: out}
	fmt.Fprintf(tw, "TOTAL\t%s\t%s\t%d%%\t\t\n",
		statistics.FormatBytes(in),
		statistics.FormatBytes(out),
		total.ReductionPercent())
	_ = tw.Flush()
}

// Plan prints what is about to happen before the confirmation prompt.
func (r *Reporter) Plan(cwd string, inputs []string, cfg *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.out, "Working directory: %s\n", cwd)
	fmt.Fprintf(r.out, "Files to compress: %d\n", len(inputs))
	for i, in := range inputs {
		if i == maxSampleNames {
			fmt.Fprintf(r.out, "  %s\n", r.dim.Sprintf("... and %d more", len(inputs)-maxSampleNames))
			break
		}
		fmt.Fprintf(r.out, "  %s\n", in)
	}
	fmt.Fprintf(r.out, "Quality: %s\n", cfg.GetQualityPreset().Name)
	fmt.Fprintf(r.out, "Output: %s\n", Destination(cfg))
}

// Destination describes where outputs will be written.
func Destination(cfg *config.Config) string {
	switch cfg.GetOutputMode() {
	case config.OutputFile:
		return cfg.OutputFile
	case config.OutputInPlace:
		return "in place (inputs are overwritten)"
	case config.OutputDir:
		return filepath.Join(cfg.OutputDir, "<name>"+cfg.OutputSuffix+".pdf")
	default:
		return fmt.Sprintf("next to each input as <name>%s.pdf", cfg.OutputSuffix)
	}
}

// Confirm asks prompt on out and reads the answer from in. Only "y" or "yes"
// (any case) confirm; EOF declines.
func Confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
