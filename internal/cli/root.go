// Package cli provides the command-line interface for the harmonic scanner.
package cli

import (
	"context"
	"net/url"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"harmonic-scanner/internal/analysis/harmonic"
	"harmonic-scanner/internal/config"
	"harmonic-scanner/internal/logging"
	"harmonic-scanner/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-03-01"
)

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	ConfigDir string
	// ConfigErr is the error from loading the config file, if any. Commands run
	// on defaults and `config validate` reports it.
	ConfigErr error
	Logger    zerolog.Logger

	store store.DataStore
}

// Store opens the configured data store on first use.
func (a *App) Store(ctx context.Context) (store.DataStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	target := a.Config.Storage.SQLitePath
	if a.Config.Storage.Driver == store.DriverPostgres {
		target = a.Config.Storage.PostgresDSN
	}
	s, err := store.Open(ctx, a.Config.Storage.Driver, target, a.Logger)
	if err != nil {
		return nil, err
	}
	a.store = s
	return s, nil
}

// Detector builds a harmonic detector from the current configuration.
func (a *App) Detector() *harmonic.Detector {
	return harmonic.NewDetector(a.Config.DetectorConfig(), a.Logger)
}

// Close releases the data store if it was opened.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config:    cfg,
		ConfigDir: config.DefaultConfigDir(),
		Logger:    logger,
	}
	return newRootCmd(app)
}

func newRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "harmonic",
		Short: "Harmonic pattern scanner",
		Long: `Harmonic scans OHLCV candles for XABCD harmonic patterns (Gartley,
Butterfly, Bat, Crab, Cypher), scores each match against Fibonacci ratio
templates and derives entry, stop-loss and take-profit levels.

Use 'harmonic import' to load candles, 'harmonic scan' for a one-off scan
and 'harmonic run' to scan the configured pairs continuously.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if dir, _ := cmd.Flags().GetString("config"); dir != "" {
				cfg, err := config.Load(dir)
				app.ConfigDir = dir
				app.ConfigErr = err
				if err == nil {
					app.Config = cfg
					app.Logger = logging.NewLoggerWithConfig(cfg.LogConfig())
				}
			}

			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			cmd.SetContext(logging.WithLogger(cmd.Context(), app.Logger))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/harmonic-scanner)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addScanCommands(rootCmd, app)
	addPatternCommands(rootCmd, app)
	addDataCommands(rootCmd, app)

	return rootCmd
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("harmonic-scanner v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			path := filepath.Join(app.ConfigDir, "config.toml")
			if output.IsJSON() {
				output.JSON(map[string]string{"path": path})
			} else {
				output.Println(path)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			err := app.ConfigErr
			if err == nil {
				err = app.Config.Validate()
			}
			if err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Detection")
	output.Printf("  Min Confidence:  %.1f\n", cfg.Detection.MinConfidence)
	output.Printf("  Swing Window:    %d\n", cfg.Detection.SwingWindow)
	output.Printf("  Candle Window:   %d\n", cfg.Detection.CandleWindow)
	output.Printf("  Projection:      %v\n", cfg.Detection.Projection)
	output.Println()

	output.Bold("Setup")
	output.Printf("  Stop Buffer:     %.2f%%\n", cfg.Setup.StopBufferPercent)
	output.Printf("  Validity:        %d bars\n", cfg.Setup.ValidityBars)
	output.Printf("  Price Decimals:  %d\n", cfg.Setup.PriceDecimals)
	output.Println()

	output.Bold("Scanner")
	output.Printf("  Interval:        %s\n", cfg.Scanner.Interval)
	output.Printf("  Workers:         %d\n", cfg.Scanner.Workers)
	for _, p := range cfg.Scanner.Pairs {
		output.Printf("  Pair:            %s\n", p)
	}
	output.Println()

	output.Bold("Storage")
	output.Printf("  Driver:          %s\n", cfg.Storage.Driver)
	if cfg.Storage.Driver == store.DriverPostgres {
		output.Printf("  DSN:             %s\n", redactDSN(cfg.Storage.PostgresDSN))
	} else {
		output.Printf("  Path:            %s\n", cfg.Storage.SQLitePath)
	}
	output.Println()

	output.Bold("Publish")
	output.Printf("  Redis:           %v\n", cfg.Publish.Redis.Enabled)
	if cfg.Publish.Redis.Enabled {
		output.Printf("  Addr:            %s\n", cfg.Publish.Redis.Addr)
		output.Printf("  Channel Prefix:  %s\n", cfg.Publish.Redis.ChannelPrefix)
	}
	output.Println()

	output.Bold("Logging")
	output.Printf("  Level:           %s\n", cfg.Logging.Level)
	output.Printf("  File:            %v (%s)\n", cfg.Logging.File, cfg.Logging.Path)
}

// redactDSN hides the password of a postgres URL DSN.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
