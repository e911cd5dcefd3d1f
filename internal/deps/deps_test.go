package deps

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-squeezer-go/internal/config"
)

func fakeLookPath(present ...string) LookPathFunc {
	set := make(map[string]bool, len(present))
	for _, p := range present {
		set[p] = true
	}
	return func(file string) (string, error) {
		if set[file] {
			return "/usr/bin/" + file, nil
		}
		return "", errors.New("not found")
	}
}

func TestRequiredTools_Pdfcpu(t *testing.T) {
	cfg := config.DefaultConfig()
	tools := RequiredTools(cfg)
	require.Len(t, tools, 1)
	assert.Equal(t, "ghostscript", tools[0].Name)
	assert.Equal(t, "gs", tools[0].Binary)
}

func TestRequiredTools_Qpdf(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Strategies.Optimizer = config.OptimizerQpdf
	cfg.Strategies.QpdfPath = "/opt/qpdf/bin/qpdf"
	tools := RequiredTools(cfg)
	require.Len(t, tools, 2)
	assert.Equal(t, "qpdf", tools[1].Name)
	assert.Equal(t, "/opt/qpdf/bin/qpdf", tools[1].Binary)
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name      string
		optimizer string
		present   []string
		want      []string
	}{
		{"all present pdfcpu", config.OptimizerPdfcpu, []string{"gs"}, nil},
		{"gs missing pdfcpu", config.OptimizerPdfcpu, nil, []string{"ghostscript"}},
		{"all present qpdf", config.OptimizerQpdf, []string{"gs", "qpdf"}, nil},
		{"qpdf missing", config.OptimizerQpdf, []string{"gs"}, []string{"qpdf"}},
		{"both missing", config.OptimizerQpdf, nil, []string{"ghostscript", "qpdf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Strategies.Optimizer = tt.optimizer
			missing := Probe(cfg, fakeLookPath(tt.present...))
			var got []string
			for _, m := range missing {
				got = append(got, m.Name)
				assert.NotEmpty(t, m.Hint)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequire(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Strategies.Optimizer = config.OptimizerQpdf

	missing, err := Require(cfg, fakeLookPath())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingDependency)
	assert.Contains(t, err.Error(), "ghostscript, qpdf")
	assert.Len(t, missing, 2)

	missing, err = Require(cfg, fakeLookPath("gs", "qpdf"))
	assert.NoError(t, err)
	assert.Empty(t, missing)
}

func TestInspect_MissingBinary(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Strategies.GhostscriptPath = "definitely-not-a-real-gs-binary"
	statuses := Inspect(context.Background(), cfg)
	require.Len(t, statuses, 1)
	assert.Error(t, statuses[0].Err)
	assert.Empty(t, statuses[0].Path)
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "10.02.1", firstLine("10.02.1\n"))
	assert.Equal(t, "qpdf version 11.9.0", firstLine("qpdf version 11.9.0\nRun qpdf --copyright\n"))
	assert.Equal(t, "", firstLine(""))
}
