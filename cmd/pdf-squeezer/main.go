package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"pdf-squeezer-go/internal/batch"
	"pdf-squeezer-go/internal/compressor"
	"pdf-squeezer-go/internal/config"
	"pdf-squeezer-go/internal/deps"
	"pdf-squeezer-go/internal/logger"
	"pdf-squeezer-go/internal/report"
	"pdf-squeezer-go/internal/statistics"
	"pdf-squeezer-go/internal/strategy"
	"pdf-squeezer-go/internal/web"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	outputFile string
	outputDir  string
	inPlace    bool
	quality    string
	jobs       int
	dryRun     bool
	assumeYes  bool
	verbose    bool
	quiet      bool
	port       int
	version    = "dev"
)

var errInterrupted = errors.New("interrupted")

// rootCmd compresses the given PDF files.
var rootCmd = &cobra.Command{
	Use:   "pdf-squeezer [flags] [file.pdf ...]",
	Short: "Compress PDF files, keeping whichever strategy yields the smallest file",
	Long: `pdf-squeezer compresses PDF files by trying several strategies on each
input and keeping the smallest result:

  structure  lossless structure optimization (pdfcpu or qpdf)
  lossy      Ghostscript re-rendering with image downsampling
  combined   lossy followed by structure optimization

If no strategy produces a smaller file the original is kept unchanged.
With no file arguments every *.pdf in the current directory is processed.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(cmd, args)
	},
}

// checkCmd reports the external tools and their versions.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the external tools are installed",
	Long: `Resolves every external tool the current configuration needs and prints
its path and version. Exits with status 1 if anything is missing.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(cmd)
	},
}

// serveCmd starts the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Starts an HTTP server exposing the compressor:

  GET  /api/status    current batch state and statistics
  GET  /api/presets   available quality presets
  POST /api/compress  start a batch
  POST /api/stop      cancel the running batch
  GET  /ws            websocket with live progress`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")

	rootCmd.Flags().StringVarP(&outputFile, "output", "o", "", "output file (single input only)")
	rootCmd.Flags().StringVarP(&outputDir, "output-dir", "d", "", "output directory (created if missing)")
	rootCmd.Flags().BoolVarP(&inPlace, "in-place", "i", false, "overwrite the input files")
	rootCmd.Flags().StringVarP(&quality, "quality", "Q", "ebook", "quality preset: screen, ebook, printer, prepress, default")
	rootCmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "parallel jobs (0 = number of CPUs)")
	rootCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "run the strategies but write nothing")
	rootCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask for confirmation")

	serveCmd.Flags().IntVar(&port, "port", 0, "port to listen on (default from config, 8080)")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(serveCmd)
}

// runCompress executes a compression batch.
func runCompress(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	inputs, err := batch.DiscoverInputs(args, cwd)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		if !quiet {
			fmt.Println("No PDF files found in current directory.")
		}
		return nil
	}
	if err := cfg.ValidateOutputMode(len(inputs)); err != nil {
		return err
	}

	log := setupLogger(cfg)

	if err := requireTools(cfg, log); err != nil {
		return err
	}

	if cfg.OutputDir != "" && !cfg.Security.DryRun {
		if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	rep := report.New(os.Stdout, quiet)
	if needsConfirmation(cfg) {
		rep.Plan(cwd, inputs, cfg)
		ok, err := report.Confirm(os.Stdin, os.Stdout, "Proceed with compression?")
		if err != nil {
			return fmt.Errorf("read confirmation: %w", err)
		}
		if !ok {
			fmt.Println("Operation cancelled.")
			return nil
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := newCompressor(cfg, log)
	if err != nil {
		return err
	}
	stats := statistics.NewStatistics()
	driver := batch.NewDriver(c, cfg.Jobs, stats, log).
		WithOutcomeHook(func(_ int, o compressor.JobOutcome) {
			rep.Result(o)
		})

	outcomes := driver.Run(ctx, batch.BuildJobs(cfg, inputs))
	if len(outcomes) > 1 {
		rep.Summary(outcomes)
	}
	log.Debug("\n" + stats.GetSummary())
	log.Debug("\n" + stats.GetStrategyBreakdown())

	if ctx.Err() != nil {
		return errInterrupted
	}
	if stats.HasFailures() {
		log.Debug("\n" + stats.GetErrorSummary())
		return fmt.Errorf("%d of %d files failed", stats.GetFilesWithErrors(), stats.GetTotalFilesProcessed())
	}
	return nil
}

// runCheck prints each external tool with its path and version.
func runCheck(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tPATH\tVERSION")
	if cfg.Strategies.Optimizer == config.OptimizerPdfcpu {
		fmt.Fprintln(tw, "pdfcpu\t(built in)\t-")
	}

	var missing []string
	for _, st := range deps.Inspect(ctx, cfg) {
		if st.Err != nil {
			fmt.Fprintf(tw, "%s\tMISSING\t%s\n", st.Tool.Name, st.Tool.Hint)
			missing = append(missing, st.Tool.Name)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", st.Tool.Name, st.Path, st.Version)
	}
	_ = tw.Flush()

	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", deps.ErrMissingDependency, missing)
	}
	return nil
}

// runServe starts the web server and handles graceful shutdown.
func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = port
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := setupLogger(cfg)
	if err := requireTools(cfg, log); err != nil {
		return err
	}

	server := web.NewServer(cfg, log, newCompressor)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	if !quiet {
		fmt.Printf("pdf-squeezer API listening on http://localhost:%d\n", cfg.Server.Port)
		fmt.Printf("Press Ctrl+C to stop the server\n\n")
	}

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	case <-sigChan:
	}
	log.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}

// newCompressor wires the strategy runner into a PDFCompressor.
func newCompressor(cfg *config.Config, log logrus.FieldLogger) (compressor.Compressor, error) {
	runner := strategy.NewRunner(cfg, log)
	return compressor.NewPDFCompressor(runner, strategy.Default(cfg), cfg.Security.DryRun, log), nil
}

// requireTools logs every missing external tool with its install hint.
func requireTools(cfg *config.Config, log *logrus.Logger) error {
	missing, err := deps.Require(cfg, nil)
	for _, m := range missing {
		log.WithField("binary", m.Binary).Errorf("%s not found: %s", m.Name, m.Hint)
	}
	return err
}

// loadConfig loads configuration and applies explicitly set flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Lookup("quality") != nil && flags.Changed("quality") {
		cfg.Quality = quality
	}
	if flags.Lookup("jobs") != nil && flags.Changed("jobs") {
		cfg.Jobs = jobs
	}
	if flags.Lookup("output") != nil && flags.Changed("output") {
		cfg.OutputFile = config.ExpandPath(outputFile)
	}
	if flags.Lookup("output-dir") != nil && flags.Changed("output-dir") {
		cfg.OutputDir = config.ExpandPath(outputDir)
	}
	if flags.Lookup("in-place") != nil && flags.Changed("in-place") {
		cfg.InPlace = inPlace
	}
	if flags.Lookup("dry-run") != nil && flags.Changed("dry-run") {
		cfg.Security.DryRun = dryRun
	}
	cfg.Quiet = quiet

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func needsConfirmation(cfg *config.Config) bool {
	return cfg.Security.ConfirmBeforeStart && !cfg.Quiet && !cfg.Security.DryRun && !assumeYes
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.DefaultConfig()
	loggerCfg.Level = cfg.Logging.Level
	loggerCfg.FilePath = cfg.Logging.FilePath
	loggerCfg.MaxSize = cfg.Logging.MaxSize
	loggerCfg.MaxBackups = cfg.Logging.MaxBackups
	loggerCfg.MaxAge = cfg.Logging.MaxAge
	loggerCfg.Compress = cfg.Logging.Compress

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
