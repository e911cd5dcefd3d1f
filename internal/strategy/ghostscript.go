package strategy

import (
	"context"
	"fmt"
	"strings"

	"pdf-squeezer-go/internal/config"
)

// Ghostscript re-renders a PDF through the pdfwrite device, downsampling
// images to the preset DPI. This is the lossy strategy.
type Ghostscript struct {
	Binary             string
	Preset             config.QualityPreset
	CompatibilityLevel string
}

// NewGhostscript builds the lossy transformer from configuration.
func NewGhostscript(cfg *config.Config) *Ghostscript {
	return &Ghostscript{
		Binary:             cfg.Strategies.GhostscriptPath,
		Preset:             cfg.GetQualityPreset(),
		CompatibilityLevel: cfg.Strategies.CompatibilityLevel,
	}
}

// Args returns the Ghostscript command line for in -> out.
func (g *Ghostscript) Args(in, out string) []string {
	level := g.CompatibilityLevel
	if level == "" {
		level = "1.4"
	}
	dpi := g.Preset.DPI
	if dpi <= 0 {
		dpi = 150
	}

	return []string{
		"-sDEVICE=pdfwrite",
		"-dPDFSETTINGS=/" + g.Preset.Name,
		"-dCompatibilityLevel=" + level,
		"-dNOPAUSE",
		"-dQUIET",
		"-dBATCH",
		"-dSAFER",
		"-dAutoRotatePages=/None",
		"-dDetectDuplicateImages=true",
		"-dCompressFonts=true",
		"-dSubsetFonts=true",
		"-dDownsampleColorImages=true",
		"-dDownsampleGrayImages=true",
		"-dDownsampleMonoImages=true",
		"-dColorImageDownsampleType=/Bicubic",
		fmt.Sprintf("-dColorImageResolution=%d", dpi),
		"-dGrayImageDownsampleType=/Bicubic",
		fmt.Sprintf("-dGrayImageResolution=%d", dpi),
		"-dMonoImageDownsampleType=/Subsample",
		fmt.Sprintf("-dMonoImageResolution=%d", dpi),
		// gs treats % in the output name as a page-number format
		"-sOutputFile=" + strings.ReplaceAll(out, "%", "%%"),
		in,
	}
}

// Transform runs Ghostscript.
func (g *Ghostscript) Transform(ctx context.Context, in, out string) error {
	return runCommand(ctx, g.Binary, g.Args(in, out))
}
