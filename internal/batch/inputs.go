package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"pdf-squeezer-go/internal/compressor"
	"pdf-squeezer-go/internal/config"
)

// DiscoverInputs returns the inputs to process. With no args every *.pdf in
// dir is used, sorted by name. Paths naming the same file are kept once, in
// first-seen order. Missing paths are kept so they surface as job errors.
func DiscoverInputs(args []string, dir string) ([]string, error) {
	if len(args) == 0 {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
				args = append(args, filepath.Join(dir, e.Name()))
			}
		}
		sort.Strings(args)
	}

	seen := make(map[string]struct{}, len(args))
	inputs := make([]string, 0, len(args))
	for _, arg := range args {
		key := arg
		if abs, err := filepath.Abs(arg); err == nil {
			key = abs
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		inputs = append(inputs, arg)
	}
	return inputs, nil
}

// OutputPaths derives one output path per input according to the configured
// output mode. In the sibling and directory modes, inputs that would share an
// output get -2, -3, ... so no two jobs write the same file. Discovery ignores
// the case of the extension, so a.pdf and a.PDF can sit side by side.
func OutputPaths(cfg *config.Config, inputs []string) []string {
	outputs := make([]string, len(inputs))
	used := make(map[string]struct{}, len(inputs))

	for i, in := range inputs {
		switch cfg.GetOutputMode() {
		case config.OutputFile:
			outputs[i] = cfg.OutputFile
		case config.OutputInPlace:
			outputs[i] = in
		case config.OutputDir:
			outputs[i] = uniquePath(cfg.OutputDir, stem(in), cfg.OutputSuffix, used)
		default:
			outputs[i] = uniquePath(filepath.Dir(in), stem(in), cfg.OutputSuffix, used)
		}
	}
	return outputs
}

// BuildJobs pairs inputs with their outputs.
func BuildJobs(cfg *config.Config, inputs []string) []compressor.CompressionJob {
	outputs := OutputPaths(cfg, inputs)
	quality := cfg.GetQualityPreset().Name

	jobs := make([]compressor.CompressionJob, len(inputs))
	for i, in := range inputs {
		jobs[i] = compressor.CompressionJob{
			ID:         uuid.NewString(),
			InputPath:  in,
			OutputPath: outputs[i],
			Quality:    quality,
		}
	}
	return jobs
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func uniquePath(dir, name, suffix string, used map[string]struct{}) string {
	candidate := filepath.Join(dir, name+suffix+".pdf")
	for n := 2; ; n++ {
		if _, taken := used[candidate]; !taken {
			used[candidate] = struct{}{}
			return candidate
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s-%d%s.pdf", name, n, suffix))
	}
}
