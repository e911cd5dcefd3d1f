package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrUsage marks invalid flag combinations and values. The CLI maps it to exit code 1
// before any file is touched.
var ErrUsage = errors.New("usage error")

// QualityPreset represents a named Ghostscript quality level
type QualityPreset struct {
	Name        string `json:"name"`
	DPI         int    `json:"dpi"`
	Description string `json:"description"`
}

// Optimizer names for the structure-only strategy
const (
	OptimizerPdfcpu = "pdfcpu"
	OptimizerQpdf   = "qpdf"
)

// OutputMode is how the output path of each input is derived.
type OutputMode int

const (
	OutputSibling OutputMode = iota // <input dir>/<stem><suffix>.pdf
	OutputFile                      // -o, single input only
	OutputDir                       // -d <dir>/<stem><suffix>.pdf
	OutputInPlace                   // -i
)

// Config represents the main configuration structure
type Config struct {
	Quality      string `mapstructure:"quality"`
	Jobs         int    `mapstructure:"jobs"`
	OutputSuffix string `mapstructure:"output_suffix"`
	OutputDir    string `mapstructure:"output_dir"`

	// Set from flags only
	OutputFile string `mapstructure:"-"`
	InPlace    bool   `mapstructure:"-"`
	Quiet      bool   `mapstructure:"-"`

	Strategies StrategyConfig `mapstructure:"strategies"`
	Security   SecurityConfig `mapstructure:"security"`
	Logging    LoggingConfig  `mapstructure:"logging"`
	Server     ServerConfig   `mapstructure:"server"`
}

// StrategyConfig contains settings for the external compression tools
type StrategyConfig struct {
	Optimizer          string        `mapstructure:"optimizer"`
	GhostscriptPath    string        `mapstructure:"ghostscript_path"`
	QpdfPath           string        `mapstructure:"qpdf_path"`
	CompatibilityLevel string        `mapstructure:"compatibility_level"`
	Timeout            time.Duration `mapstructure:"timeout"`
	VerifyOutput       bool          `mapstructure:"verify_output"`
}

// SecurityConfig contains safety settings
type SecurityConfig struct {
	DryRun             bool `mapstructure:"dry_run"`
	ConfirmBeforeStart bool `mapstructure:"confirm_before_start"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// ServerConfig contains settings for the serve command
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// GetAvailableQualityPresets returns all quality presets accepted by --quality
func GetAvailableQualityPresets() []QualityPreset {
	return []QualityPreset{
		{
			Name:        "screen",
			DPI:         72,
			Description: "Smallest output, images downsampled to screen resolution",
		},
		{
			Name:        "ebook",
			DPI:         150,
			Description: "Good balance of size and readability",
		},
		{
			Name:        "printer",
			DPI:         300,
			Description: "High quality for desktop printing",
		},
		{
			Name:        "prepress",
			DPI:         300,
			Description: "High quality with color preservation for press",
		},
		{
			Name:        "default",
			DPI:         72,
			Description: "Ghostscript's general purpose settings",
		},
	}
}

// LookupQualityPreset finds a preset by name, ignoring case
func LookupQualityPreset(name string) (QualityPreset, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range GetAvailableQualityPresets() {
		if p.Name == name {
			return p, true
		}
	}
	return QualityPreset{}, false
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Quality:      "ebook",
		Jobs:         0, // 0 means one worker per CPU
		OutputSuffix: ".compressed",
		Strategies: StrategyConfig{
			Optimizer:          OptimizerPdfcpu,
			GhostscriptPath:    "gs",
			QpdfPath:           "qpdf",
			CompatibilityLevel: "1.4",
			Timeout:            5 * time.Minute,
			VerifyOutput:       false,
		},
		Security: SecurityConfig{
			DryRun:             false,
			ConfirmBeforeStart: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
		Server: ServerConfig{
			Port: 8080,
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config file in current directory and home directory
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.pdf-squeezer")
		v.AddConfigPath("/etc/pdf-squeezer")
	}

	// Enable environment variable support
	v.SetEnvPrefix("PDF_SQUEEZER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	registerDefaults(v, config)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// registerDefaults makes every key known to viper so AutomaticEnv can override it.
func registerDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("quality", c.Quality)
	v.SetDefault("jobs", c.Jobs)
	v.SetDefault("output_suffix", c.OutputSuffix)
	v.SetDefault("output_dir", c.OutputDir)
	v.SetDefault("strategies.optimizer", c.Strategies.Optimizer)
	v.SetDefault("strategies.ghostscript_path", c.Strategies.GhostscriptPath)
	v.SetDefault("strategies.qpdf_path", c.Strategies.QpdfPath)
	v.SetDefault("strategies.compatibility_level", c.Strategies.CompatibilityLevel)
	v.SetDefault("strategies.timeout", c.Strategies.Timeout)
	v.SetDefault("strategies.verify_output", c.Strategies.VerifyOutput)
	v.SetDefault("security.dry_run", c.Security.DryRun)
	v.SetDefault("security.confirm_before_start", c.Security.ConfirmBeforeStart)
	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.file_path", c.Logging.FilePath)
	v.SetDefault("logging.max_size", c.Logging.MaxSize)
	v.SetDefault("logging.max_backups", c.Logging.MaxBackups)
	v.SetDefault("logging.max_age", c.Logging.MaxAge)
	v.SetDefault("logging.compress", c.Logging.Compress)
	v.SetDefault("server.port", c.Server.Port)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	preset, ok := LookupQualityPreset(c.Quality)
	if !ok {
		return fmt.Errorf("%w: invalid quality %q (valid: %s)", ErrUsage, c.Quality, strings.Join(presetNames(), ", "))
	}
	c.Quality = preset.Name

	if c.Jobs < 0 {
		return fmt.Errorf("%w: jobs must be >= 0, got %d", ErrUsage, c.Jobs)
	}

	if c.OutputSuffix == "" {
		c.OutputSuffix = ".compressed"
	}
	if strings.ContainsRune(c.OutputSuffix, filepath.Separator) {
		return fmt.Errorf("invalid output_suffix %q: must not contain a path separator", c.OutputSuffix)
	}

	c.Strategies.Optimizer = strings.ToLower(c.Strategies.Optimizer)
	switch c.Strategies.Optimizer {
	case OptimizerPdfcpu, OptimizerQpdf:
	default:
		return fmt.Errorf("invalid strategies.optimizer: %s (valid: pdfcpu, qpdf)", c.Strategies.Optimizer)
	}
	if c.Strategies.GhostscriptPath == "" {
		c.Strategies.GhostscriptPath = "gs"
	}
	if c.Strategies.QpdfPath == "" {
		c.Strategies.QpdfPath = "qpdf"
	}

	validLevels := map[string]bool{"1.3": true, "1.4": true, "1.5": true, "1.6": true, "1.7": true}
	if !validLevels[c.Strategies.CompatibilityLevel] {
		return fmt.Errorf("invalid strategies.compatibility_level: %s (valid: 1.3-1.7)", c.Strategies.CompatibilityLevel)
	}
	if c.Strategies.Timeout < 0 {
		return fmt.Errorf("strategies.timeout must not be negative")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}

	return nil
}

// ValidateOutputMode checks the output flags against the number of inputs.
// Every failure wraps ErrUsage.
func (c *Config) ValidateOutputMode(inputCount int) error {
	if c.OutputFile != "" && inputCount > 1 {
		return fmt.Errorf("%w: cannot use -o with multiple files, use -d instead", ErrUsage)
	}
	if c.OutputFile != "" && c.InPlace {
		return fmt.Errorf("%w: cannot use -o and -i together", ErrUsage)
	}
	if c.OutputDir != "" && (c.InPlace || c.OutputFile != "") {
		return fmt.Errorf("%w: -d cannot be combined with -o or -i", ErrUsage)
	}
	if c.Security.DryRun && (c.OutputFile != "" || c.InPlace) {
		return fmt.Errorf("%w: cannot use --dry-run with -o or -i", ErrUsage)
	}
	return nil
}

// GetOutputMode returns the active output mode. Call ValidateOutputMode first.
func (c *Config) GetOutputMode() OutputMode {
	switch {
	case c.OutputFile != "":
		return OutputFile
	case c.InPlace:
		return OutputInPlace
	case c.OutputDir != "":
		return OutputDir
	default:
		return OutputSibling
	}
}

// GetQualityPreset returns the preset selected by Quality
func (c *Config) GetQualityPreset() QualityPreset {
	p, ok := LookupQualityPreset(c.Quality)
	if !ok {
		p, _ = LookupQualityPreset("ebook")
	}
	return p
}

// ExpandPath resolves a leading ~ and environment variables in a user-supplied path.
func ExpandPath(path string) string {
	expanded := os.ExpandEnv(path)
	if strings.HasPrefix(expanded, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			expanded = filepath.Join(home, expanded[1:])
		}
	}
	return expanded
}

func presetNames() []string {
	presets := GetAvailableQualityPresets()
	names := make([]string, len(presets))
	for i, p := range presets {
		names[i] = p.Name
	}
	return names
}
