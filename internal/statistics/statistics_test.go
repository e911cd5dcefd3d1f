package statistics

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-squeezer-go/internal/compressor"
)

func outcome(status compressor.Status, strategy string, orig, final int64) compressor.JobOutcome {
	return compressor.JobOutcome{
		Job:          compressor.CompressionJob{InputPath: "/in/" + string(status) + ".pdf"},
		Status:       status,
		Strategy:     strategy,
		OriginalSize: orig,
		FinalSize:    final,
	}
}

func TestRecord(t *testing.T) {
	s := NewStatistics()
	s.AddFilesFound(4)

	s.Record(outcome(compressor.StatusCompressed, "lossy", 2048, 512))
	s.Record(outcome(compressor.StatusUnchanged, "none", 2048, 2048))
	failed := outcome(compressor.StatusError, "none", 0, 0)
	failed.Err = errors.New("no such file")
	s.Record(failed)
	s.Record(outcome(compressor.StatusInterrupted, "none", 300, 300))
	s.Finalize()

	snap := s.Snapshot()
	assert.Equal(t, int64(4), snap.FilesFound)
	assert.Equal(t, int64(4), snap.FilesProcessed)
	assert.Equal(t, int64(1), snap.FilesCompressed)
	assert.Equal(t, int64(1), snap.FilesUnchanged)
	assert.Equal(t, int64(1), snap.FilesWithErrors)
	assert.Equal(t, int64(1), snap.FilesInterrupted)
	assert.Equal(t, int64(4096), snap.BytesIn)
	assert.Equal(t, int64(2560), snap.BytesOut)
	assert.Equal(t, int64(1536), snap.BytesSaved)
	assert.Equal(t, map[string]int64{"lossy": 1}, snap.StrategyWins)

	assert.Equal(t, 37, s.ReductionPercent())
	assert.True(t, s.HasFailures())
	require.Len(t, s.Errors, 1)
	assert.Equal(t, "no such file", s.Errors[0].Error)
}

func TestRecord_Concurrent(t *testing.T) {
	s := NewStatistics()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Record(outcome(compressor.StatusCompressed, "structure", 10, 5))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), s.GetTotalFilesProcessed())
	assert.Equal(t, int64(50), s.StrategyWins["structure"])
	assert.Equal(t, int64(250), s.BytesSaved())
	assert.False(t, s.HasFailures())
}

func TestReductionPercent_Empty(t *testing.T) {
	assert.Equal(t, 0, NewStatistics().ReductionPercent())
}

func TestSummaries(t *testing.T) {
	s := NewStatistics()
	assert.Equal(t, "No errors occurred during processing", s.GetErrorSummary())
	assert.Equal(t, "No strategy produced a smaller file", s.GetStrategyBreakdown())

	s.Record(outcome(compressor.StatusCompressed, "lossy", 2048, 1024))
	s.Record(outcome(compressor.StatusCompressed, "combined", 2048, 1024))
	s.AddError("/x.pdf", "compress", "boom")
	s.Finalize()

	assert.Contains(t, s.GetSummary(), "Compressed: 2")
	assert.Contains(t, s.GetSummary(), "Saved: 2.0 KB (50%)")
	assert.Equal(t, "Strategy Breakdown:\n  combined: 1\n  lossy: 1\n", s.GetStrategyBreakdown())
	assert.Contains(t, s.GetErrorSummary(), "compress: /x.pdf - boom")
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{434 * 1024, "434.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{-2048, "-2.0 KB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.in))
	}
}
