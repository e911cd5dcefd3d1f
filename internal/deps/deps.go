// Package deps probes the host for the external tools the compression
// strategies shell out to. The probe runs once at startup; a missing tool is
// a hard failure reported before any file is processed.
package deps

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"pdf-squeezer-go/internal/config"
)

// ErrMissingDependency is wrapped by Require when at least one tool is absent.
var ErrMissingDependency = errors.New("missing dependencies")

// Tool describes one external binary and how to ask it for its version.
type Tool struct {
	Name        string
	Binary      string
	VersionArgs []string
	Hint        string
}

// Missing is one tool that could not be resolved on PATH.
type Missing struct {
	Name   string
	Binary string
	Hint   string
}

// Status is the result of probing one tool, used by the check command.
type Status struct {
	Tool    Tool
	Path    string
	Version string
	Err     error
}

// LookPathFunc resolves a binary name to a path. exec.LookPath in production.
type LookPathFunc func(file string) (string, error)

// RequiredTools lists the binaries the current configuration needs. Ghostscript
// is always required; qpdf only when it is the structure optimizer. The pdfcpu
// optimizer is linked in and needs nothing on the host.
func RequiredTools(cfg *config.Config) []Tool {
	tools := []Tool{{
		Name:        "ghostscript",
		Binary:      cfg.Strategies.GhostscriptPath,
		VersionArgs: []string{"--version"},
		Hint:        "install Ghostscript (apt install ghostscript / brew install ghostscript)",
	}}
	if cfg.Strategies.Optimizer == config.OptimizerQpdf {
		tools = append(tools, Tool{
			Name:        "qpdf",
			Binary:      cfg.Strategies.QpdfPath,
			VersionArgs: []string{"--version"},
			Hint:        "install qpdf (apt install qpdf / brew install qpdf) or set strategies.optimizer: pdfcpu",
		})
	}
	return tools
}

// Probe returns every required tool that lookPath cannot resolve.
// A nil lookPath uses exec.LookPath.
func Probe(cfg *config.Config, lookPath LookPathFunc) []Missing {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	var missing []Missing
	for _, t := range RequiredTools(cfg) {
		if _, err := lookPath(t.Binary); err != nil {
			missing = append(missing, Missing{Name: t.Name, Binary: t.Binary, Hint: t.Hint})
		}
	}
	return missing
}

// Require runs Probe and folds the result into a single error wrapping
// ErrMissingDependency, or nil when everything is present.
func Require(cfg *config.Config, lookPath LookPathFunc) ([]Missing, error) {
	missing := Probe(cfg, lookPath)
	if len(missing) == 0 {
		return nil, nil
	}
	names := make([]string, len(missing))
	for i, m := range missing {
		names[i] = m.Name
	}
	return missing, fmt.Errorf("%w: %s", ErrMissingDependency, strings.Join(names, ", "))
}

// Inspect resolves each required tool and reads the first line of its version
// output. Informational only; used by the check command.
func Inspect(ctx context.Context, cfg *config.Config) []Status {
	tools := RequiredTools(cfg)
	statuses := make([]Status, 0, len(tools))
	for _, t := range tools {
		st := Status{Tool: t}
		path, err := exec.LookPath(t.Binary)
		if err != nil {
			st.Err = err
			statuses = append(statuses, st)
			continue
		}
		st.Path = path

		vctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		out, err := exec.CommandContext(vctx, path, t.VersionArgs...).Output()
		cancel()
		if err != nil {
			st.Err = fmt.Errorf("%s found but version query failed: %w", t.Binary, err)
		} else {
			st.Version = firstLine(string(out))
		}
		statuses = append(statuses, st)
	}
	return statuses
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "\n"); idx > 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
