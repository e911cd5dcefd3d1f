package compressor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-squeezer-go/internal/strategy"
)

const kb = 1024

// sized returns a transformer that writes size bytes filled with fill.
func sized(size int, fill byte) strategy.TransformFunc {
	return func(ctx context.Context, in, out string) error {
		return os.WriteFile(out, bytes.Repeat([]byte{fill}, size), 0o644)
	}
}

func broken() strategy.TransformFunc {
	return func(ctx context.Context, in, out string) error {
		return errors.New("tool crashed")
	}
}

func strategies(structure, lossy, combined strategy.Transformer) []strategy.Strategy {
	return []strategy.Strategy{
		{Name: strategy.NameStructure, Transformer: structure},
		{Name: strategy.NameLossy, Transformer: lossy},
		{Name: strategy.NameCombined, Transformer: combined, DependsOn: strategy.NameLossy},
	}
}

func newCompressor(s []strategy.Strategy) *PDFCompressor {
	return &PDFCompressor{Runner: &strategy.Runner{}, Strategies: s}
}

func writeFile(t *testing.T, path string, size int) []byte {
	t.Helper()
	data := bytes.Repeat([]byte{'o'}, size)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return data
}

func TestSelect(t *testing.T) {
	ok := func(name string, size int64) strategy.Result {
		return strategy.Result{Name: name, Path: "/s/" + name + ".pdf", Size: size}
	}
	bad := strategy.Result{Name: strategy.NameLossy, Size: strategy.Failed, Err: errors.New("x")}

	tests := []struct {
		name     string
		original int64
		results  []strategy.Result
		want     string
		wantOK   bool
	}{
		{"smallest wins", 434, []strategy.Result{ok("structure", 400), ok("lossy", 38), ok("combined", 50)}, "lossy", true},
		{"tie goes to earlier", 100, []strategy.Result{ok("structure", 60), ok("lossy", 60), ok("combined", 60)}, "structure", true},
		{"equal to original is no reduction", 100, []strategy.Result{ok("structure", 100)}, "", false},
		{"larger than original", 100, []strategy.Result{ok("structure", 120), ok("lossy", 150)}, "", false},
		{"failures ignored", 100, []strategy.Result{bad, ok("combined", 90)}, "combined", true},
		{"all failed", 100, []strategy.Result{bad, bad}, "", false},
		{"empty", 100, nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, gotOK := Select(tt.original, tt.results)
			assert.Equal(t, tt.wantOK, gotOK)
			if tt.wantOK {
				assert.Equal(t, tt.want, got.Name)
			}
		})
	}
}

func TestJobOutcome_ReductionPercent(t *testing.T) {
	assert.Equal(t, 91, JobOutcome{OriginalSize: 434 * kb, FinalSize: 38 * kb}.ReductionPercent())
	assert.Equal(t, 0, JobOutcome{OriginalSize: 100, FinalSize: 100}.ReductionPercent())
	assert.Equal(t, 0, JobOutcome{OriginalSize: 0, FinalSize: 0}.ReductionPercent())
	assert.Equal(t, 99, JobOutcome{OriginalSize: 1000, FinalSize: 1}.ReductionPercent())
	assert.True(t, JobOutcome{OriginalSize: 2, FinalSize: 1}.Improved())
	assert.False(t, JobOutcome{OriginalSize: 2, FinalSize: 2}.Improved())
}

func TestCompress_PicksLossyScenario(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "doc.pdf")
	out := filepath.Join(dir, "doc.compressed.pdf")
	writeFile(t, in, 434*kb)

	c := newCompressor(strategies(sized(400*kb, 's'), sized(38*kb, 'l'), sized(50*kb, 'c')))
	res := c.Compress(context.Background(), CompressionJob{ID: "1", InputPath: in, OutputPath: out})

	require.NoError(t, res.Err)
	assert.Equal(t, StatusCompressed, res.Status)
	assert.Equal(t, strategy.NameLossy, res.Strategy)
	assert.Equal(t, int64(434*kb), res.OriginalSize)
	assert.Equal(t, int64(38*kb), res.FinalSize)
	assert.Equal(t, 91, res.ReductionPercent())

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{'l'}, 38*kb), got)
}

func TestCompress_AllFailCopiesOriginal(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.pdf")
	out := filepath.Join(dir, "a.compressed.pdf")
	orig := writeFile(t, in, 2048)

	c := newCompressor(strategies(broken(), broken(), broken()))
	res := c.Compress(context.Background(), CompressionJob{InputPath: in, OutputPath: out})

	require.NoError(t, res.Err)
	assert.Equal(t, StatusUnchanged, res.Status)
	assert.Equal(t, StrategyNone, res.Strategy)
	assert.Equal(t, res.OriginalSize, res.FinalSize)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, orig, got)
}

func TestCompress_LargerCandidatesKeepOriginal(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.pdf")
	out := filepath.Join(dir, "out.pdf")
	orig := writeFile(t, in, 100)

	c := newCompressor(strategies(sized(100, 's'), sized(300, 'l'), sized(200, 'c')))
	res := c.Compress(context.Background(), CompressionJob{InputPath: in, OutputPath: out})

	assert.Equal(t, StatusUnchanged, res.Status)
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, orig, got)
}

func TestCompress_SingleSuccessWins(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.pdf")
	out := filepath.Join(dir, "out.pdf")
	writeFile(t, in, 1000)

	c := newCompressor(strategies(sized(700, 's'), broken(), broken()))
	res := c.Compress(context.Background(), CompressionJob{InputPath: in, OutputPath: out})

	assert.Equal(t, strategy.NameStructure, res.Strategy)
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{'s'}, 700), got)
}

func TestCompress_InPlace(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.pdf")
	writeFile(t, in, 1000)
	require.NoError(t, os.Chmod(in, 0o600))

	c := newCompressor(strategies(sized(900, 's'), sized(500, 'l'), sized(400, 'c')))
	res := c.Compress(context.Background(), CompressionJob{InputPath: in, OutputPath: in})

	assert.Equal(t, StatusCompressed, res.Status)
	assert.Equal(t, strategy.NameCombined, res.Strategy)
	got, err := os.ReadFile(in)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{'c'}, 400), got)

	info, err := os.Stat(in)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestCompress_InPlaceNoReductionLeavesFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.pdf")
	orig := writeFile(t, in, 100)
	before, err := os.Stat(in)
	require.NoError(t, err)

	c := newCompressor(strategies(broken(), broken(), broken()))
	res := c.Compress(context.Background(), CompressionJob{InputPath: in, OutputPath: in})

	assert.Equal(t, StatusUnchanged, res.Status)
	after, err := os.Stat(in)
	require.NoError(t, err)
	assert.True(t, os.SameFile(before, after), "input must not be replaced")
	got, _ := os.ReadFile(in)
	assert.Equal(t, orig, got)
}

func TestCompress_DryRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.pdf")
	out := filepath.Join(dir, "a.compressed.pdf")
	writeFile(t, in, 1000)

	c := newCompressor(strategies(sized(900, 's'), sized(100, 'l'), sized(200, 'c')))
	c.DryRun = true
	res := c.Compress(context.Background(), CompressionJob{InputPath: in, OutputPath: out})

	assert.True(t, res.DryRun)
	assert.Equal(t, StatusCompressed, res.Status)
	assert.Equal(t, strategy.NameLossy, res.Strategy)
	assert.NoFileExists(t, out)
}

func TestCompress_MissingInput(t *testing.T) {
	dir := t.TempDir()
	c := newCompressor(strategies(sized(1, 's'), sized(1, 'l'), sized(1, 'c')))

	res := c.Compress(context.Background(), CompressionJob{
		InputPath:  filepath.Join(dir, "missing.pdf"),
		OutputPath: filepath.Join(dir, "out.pdf"),
	})

	assert.Equal(t, StatusError, res.Status)
	assert.ErrorIs(t, res.Err, os.ErrNotExist)
	assert.NoFileExists(t, filepath.Join(dir, "out.pdf"))
}

func TestCompress_DirectoryInput(t *testing.T) {
	dir := t.TempDir()
	c := newCompressor(strategies(sized(1, 's'), sized(1, 'l'), sized(1, 'c')))

	res := c.Compress(context.Background(), CompressionJob{InputPath: dir, OutputPath: filepath.Join(dir, "out.pdf")})

	assert.Equal(t, StatusError, res.Status)
	assert.ErrorIs(t, res.Err, ErrNotRegularFile)
}

func TestCompress_InterruptedWritesNothing(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.pdf")
	out := filepath.Join(dir, "out.pdf")
	writeFile(t, in, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	// lossy cancels the batch mid-job, as a signal would
	lossy := strategy.TransformFunc(func(ctx context.Context, in, out string) error {
		cancel()
		return ctx.Err()
	})
	c := newCompressor(strategies(sized(10, 's'), lossy, sized(5, 'c')))

	res := c.Compress(ctx, CompressionJob{InputPath: in, OutputPath: out})

	assert.Equal(t, StatusInterrupted, res.Status)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.NoFileExists(t, out)
}

func TestCompress_ScratchRemoved(t *testing.T) {
	dir := t.TempDir()
	scratchRoot := t.TempDir()
	in := filepath.Join(dir, "a.pdf")
	writeFile(t, in, 1000)

	c := newCompressor(strategies(sized(10, 's'), broken(), broken()))
	c.ScratchRoot = scratchRoot
	c.Compress(context.Background(), CompressionJob{InputPath: in, OutputPath: filepath.Join(dir, "o.pdf")})

	entries, err := os.ReadDir(scratchRoot)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCompress_OutputNeverLarger(t *testing.T) {
	sizes := [][3]int{{50, 60, 70}, {200, 10, 300}, {99, 100, 101}, {100, 100, 100}}
	for _, s := range sizes {
		dir := t.TempDir()
		in := filepath.Join(dir, "a.pdf")
		out := filepath.Join(dir, "b.pdf")
		writeFile(t, in, 100)

		c := newCompressor(strategies(sized(s[0], 's'), sized(s[1], 'l'), sized(s[2], 'c')))
		c.Compress(context.Background(), CompressionJob{InputPath: in, OutputPath: out})

		info, err := os.Stat(out)
		require.NoError(t, err)
		assert.LessOrEqual(t, info.Size(), int64(100), "sizes %v", s)
	}
}

func TestCompress_PageCountOnlyAtDebugLevel(t *testing.T) {
	for _, level := range []logrus.Level{logrus.InfoLevel, logrus.DebugLevel} {
		t.Run(level.String(), func(t *testing.T) {
			dir := t.TempDir()
			in := filepath.Join(dir, "a.pdf")
			writeFile(t, in, 100)

			log := logrus.New()
			log.SetOutput(io.Discard)
			log.SetLevel(level)

			calls := 0
			c := newCompressor(strategies(sized(10, 's'), broken(), broken()))
			c.Log = log.WithField("batch", "b1")
			c.Pages = func(string) (int, error) {
				calls++
				return 1, nil
			}

			out := c.Compress(context.Background(), CompressionJob{InputPath: in, OutputPath: filepath.Join(dir, "o.pdf")})

			require.Equal(t, StatusCompressed, out.Status)
			if level == logrus.DebugLevel {
				assert.Equal(t, 1, calls)
			} else {
				assert.Zero(t, calls)
			}
		})
	}
}
