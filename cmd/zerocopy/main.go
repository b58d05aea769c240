package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bamsammich/zerocopy/internal/config"
	"github.com/bamsammich/zerocopy/internal/ui"
)

var version = "dev"

// defaultAddr is used by serve and send when neither a flag, the config
// file nor a running receiver names an address.
const defaultAddr = "127.0.0.1:8022"

func main() {
	os.Exit(run())
}

// app carries state shared by every subcommand once the root has parsed
// its persistent flags.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	verbose bool
	quiet   bool
	logFile string
}

func run() int {
	var (
		a           app
		showVersion bool
		closeLog    func()
	)

	rootCmd := &cobra.Command{
		Use:           "zerocopy",
		Short:         "Zero-copy file-to-socket transfers with sendfile(2)",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			var err error
			closeLog, err = a.setupLogging()
			if err != nil {
				return err
			}
			a.loadConfig()
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				fmt.Fprintf(os.Stdout, "zerocopy %s\n", version)
				return nil
			}
			return cmd.Help()
		},
	}

	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().StringVar(&a.logFile, "log-file", "", "write structured JSON log to FILE")

	rootCmd.AddCommand(newCapsCmd(&a))
	rootCmd.AddCommand(newServeCmd(&a))
	rootCmd.AddCommand(newSendCmd(&a))
	rootCmd.AddCommand(newBenchCmd(&a))
	rootCmd.AddCommand(newDocsCmd())

	err := rootCmd.Execute()
	if closeLog != nil {
		closeLog()
	}
	if err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			if exitErr.err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", exitErr.err)
			}
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

// setupLogging installs the default slog logger and returns a function that
// closes the log file, if any.
func (a *app) setupLogging() (func(), error) {
	logLevel := slog.LevelWarn
	if a.verbose {
		logLevel = slog.LevelDebug
	} else if !a.quiet {
		logLevel = slog.LevelInfo
	}
	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})

	var logHandler slog.Handler = textHandler
	closer := func() {}
	if a.logFile != "" {
		lf, err := os.Create(a.logFile)
		if err != nil {
			return closer, fmt.Errorf("open log file: %w", err)
		}
		closer = func() { lf.Close() }
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
		logHandler = ui.NewMultiHandler(textHandler, jsonHandler)
	}

	a.logger = slog.New(logHandler)
	slog.SetDefault(a.logger)
	return closer, nil
}

// loadConfig reads the optional config file. Problems are logged, never fatal.
func (a *app) loadConfig() {
	cfg, err := config.Load()
	var unknown *config.UnknownKeysError
	switch {
	case errors.As(err, &unknown):
		slog.Warn("ignoring unknown config keys", "path", unknown.Path, "keys", unknown.Keys)
	case err != nil:
		slog.Warn("failed to load config", "path", config.Path(), "error", err)
	}
	a.cfg = cfg
}

// exitError carries a process exit code. A nil err means the failure was
// already reported.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit code %d", e.code)
}

func (e *exitError) Unwrap() error { return e.err }
