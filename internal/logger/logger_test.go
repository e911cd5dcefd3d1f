package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_ConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &buf

	log, err := NewLogger(cfg)
	require.NoError(t, err)

	WithJob(log, "job-1", "doc.pdf").Info("compressed")
	out := buf.String()
	assert.Contains(t, out, "compressed")
	assert.Contains(t, out, "job=job-1")
	assert.Contains(t, out, "file=doc.pdf")
}

func TestNewLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Level = "error"
	cfg.Output = &buf

	log, err := NewLogger(cfg)
	require.NoError(t, err)

	log.Info("hidden")
	log.Error("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "loud"
	_, err := NewLogger(cfg)
	assert.Error(t, err)
}

func TestNewLogger_WithFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	cfg := DefaultConfig()
	cfg.FilePath = filepath.Join(dir, "logs", "pdf-squeezer.log")
	cfg.Output = &console

	log, err := NewLogger(cfg)
	require.NoError(t, err)

	WithStrategy(log, "lossy").Warn("to file")

	b, err := os.ReadFile(cfg.FilePath)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"message":"to file"`)
	assert.Contains(t, string(b), `"strategy":"lossy"`)
	assert.Contains(t, console.String(), "to file")
	assert.Contains(t, console.String(), "strategy=lossy")
	assert.NotContains(t, console.String(), `"message"`)
}

func TestNewLogger_FileOnly(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	cfg := DefaultConfig()
	cfg.FilePath = filepath.Join(dir, "pdf-squeezer.log")
	cfg.Console = false
	cfg.Output = &console

	log, err := NewLogger(cfg)
	require.NoError(t, err)

	WithFile(log, "doc.pdf").Info("only in file")

	b, err := os.ReadFile(cfg.FilePath)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"file":"doc.pdf"`)
	assert.Empty(t, console.String())
}

func TestNewLogger_ConsoleDisabled(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Console = false
	cfg.Output = &buf

	log, err := NewLogger(cfg)
	require.NoError(t, err)
	log.Error("nowhere")
	assert.Empty(t, buf.String())
}

func TestDiscard(t *testing.T) {
	log := Discard()
	assert.NotPanics(t, func() { log.WithFields(logrus.Fields{"a": 1}).Info("x") })
}
