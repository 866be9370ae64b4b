package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"harmonic-scanner/internal/errors"
	"harmonic-scanner/internal/logging"
	"harmonic-scanner/internal/models"
	"harmonic-scanner/internal/publish"
	"harmonic-scanner/internal/scanner"
	"harmonic-scanner/internal/store"
	"harmonic-scanner/internal/stream"
)

// addScanCommands adds data import and scanning commands.
func addScanCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newImportCmd(app))
	rootCmd.AddCommand(newScanCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newWatchCmd(app))
}

func parsePair(symbol, timeframe string) (models.Pair, error) {
	pair := models.Pair{Symbol: strings.ToUpper(symbol), Timeframe: models.Timeframe(timeframe)}
	if pair.Symbol == "" {
		return pair, fmt.Errorf("symbol is required")
	}
	if !pair.Timeframe.Valid() {
		return pair, fmt.Errorf("unsupported timeframe %q", timeframe)
	}
	return pair, nil
}

func newImportCmd(app *App) *cobra.Command {
	var symbol, timeframe string

	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import candles from CSV",
		Long: `Import OHLCV candles from a CSV file with a header row.

Columns: open_time (epoch ms), open, high, low, close, volume and optionally
symbol, timeframe and close_time. --symbol and --timeframe fill rows that
omit them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			s, err := app.Store(ctx)
			if err != nil {
				return err
			}

			def := models.Pair{Symbol: strings.ToUpper(symbol), Timeframe: models.Timeframe(timeframe)}
			start := time.Now()
			n, err := store.ImportCSV(ctx, s, f, def)
			if err != nil {
				output.Error("Import failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"file": args[0], "candles": n})
			}
			output.Success("✓ Imported %d candles from %s in %s", n, args[0], FormatDuration(time.Since(start)))
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "symbol for rows without one")
	cmd.Flags().StringVar(&timeframe, "timeframe", "", "timeframe for rows without one")
	return cmd
}

func newScanCmd(app *App) *cobra.Command {
	var csvPath string
	var noSave bool
	var limit int

	cmd := &cobra.Command{
		Use:   "scan <symbol> <timeframe>",
		Short: "Scan one pair for harmonic patterns",
		Long: `Run one scan cycle for a symbol and timeframe.

Candles come from the data store, or from --csv without touching the store.
Emitted patterns are saved unless --no-save is given.`,
		Example: `  harmonic scan BTCUSDT 1h
  harmonic scan ETHUSDT 4h --csv eth_4h.csv --no-save`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			pair, err := parsePair(args[0], args[1])
			if err != nil {
				return err
			}

			window := app.Config.Detection.CandleWindow
			if limit > 0 {
				window = limit
			}
			opts := []scanner.Option{scanner.WithLogger(app.Logger), scanner.WithCandleWindow(window)}

			var source store.CandleSource
			if csvPath == "" || !noSave {
				s, err := app.Store(ctx)
				if err != nil {
					return err
				}
				source = s
				if !noSave {
					opts = append(opts, scanner.WithSink(s), scanner.WithBookkeeper(s))
				}
			}

			sc := scanner.New(source, app.Detector(), opts...)

			var report *scanner.CycleReport
			var scanErr error
			if csvPath != "" {
				candles, err := readCSVFile(csvPath, pair)
				if err != nil {
					return err
				}
				if len(candles) > window {
					candles = candles[len(candles)-window:]
				}
				report, scanErr = sc.ScanCandles(ctx, pair, candles)
			} else {
				report, scanErr = sc.ScanPair(ctx, pair)
			}
			// Too little data skips the cycle; it is reported, not failed.
			if errors.Is(scanErr, errors.ErrInsufficientData) {
				scanErr = nil
			}

			if output.IsJSON() {
				if err := output.JSON(reportJSON(report)); err != nil {
					return err
				}
				return scanErr
			}
			printReport(output, report)
			if report.Result != nil {
				for _, em := range report.Result.Emissions {
					output.Println()
					printEmission(output, em)
				}
			}
			return scanErr
		},
	}

	cmd.Flags().StringVar(&csvPath, "csv", "", "read candles from a CSV file instead of the store")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not persist emitted patterns")
	cmd.Flags().IntVar(&limit, "limit", 0, "number of recent candles to scan (default: detection.candle_window)")
	return cmd
}

func readCSVFile(path string, pair models.Pair) ([]models.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	all, err := store.ReadCSV(f, pair)
	if err != nil {
		return nil, err
	}
	candles := make([]models.Candle, 0, len(all))
	for _, c := range all {
		if c.Symbol == pair.Symbol && c.Timeframe == pair.Timeframe {
			candles = append(candles, c)
		}
	}
	return candles, nil
}

func newRunCmd(app *App) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scan the configured pairs continuously",
		Long: `Scan every [[scanner.pairs]] entry immediately and then on each interval
until interrupted. Emissions are saved, printed and, when enabled, published
to Redis.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cfg := app.Config
			if len(cfg.Scanner.Pairs) == 0 {
				return fmt.Errorf("no pairs configured: add [[scanner.pairs]] to %s/config.toml", app.ConfigDir)
			}
			if interval <= 0 {
				interval = cfg.Scanner.Interval
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			s, err := app.Store(ctx)
			if err != nil {
				return err
			}

			var printMu sync.Mutex
			hub := stream.NewHub()

			if cfg.Publish.Redis.Enabled {
				pub := publish.NewRedisPublisher(publish.Options{
					Addr:          cfg.Publish.Redis.Addr,
					Password:      cfg.Publish.Redis.Password,
					DB:            cfg.Publish.Redis.DB,
					ChannelPrefix: cfg.Publish.Redis.ChannelPrefix,
				}, app.Logger)
				defer pub.Close()
				defer func() {
					if st := pub.BreakerStats(); st.TotalFailures > 0 {
						app.Logger.Warn().
							Str("state", string(st.State)).
							Int64("failures", st.TotalFailures).
							Int64("rejected", st.TotalRejected).
							Float64("failure_rate", st.FailureRate()).
							Str("last_error", st.LastError).
							Msg("Redis publishing had failures")
					}
				}()

				if err := pub.HealthCheck(ctx); err != nil {
					return fmt.Errorf("redis health check failed: %w", err)
				}
				hub.RegisterConsumer(pub)
			}

			emissions := hub.Subscribe("")
			printed := make(chan struct{})
			go func() {
				defer close(printed)
				for em := range emissions {
					printMu.Lock()
					if output.IsJSON() {
						output.JSON(em)
					} else {
						printEmission(output, em)
						output.Println()
					}
					printMu.Unlock()
				}
			}()

			hub.Start(ctx)
			defer func() {
				hub.Stop()
				<-printed
				if m := hub.GetMetrics(); m.Dropped > 0 {
					app.Logger.Warn().
						Uint64("received", m.Received).
						Uint64("dropped", m.Dropped).
						Msg("Pattern hub dropped emissions")
				}
			}()

			sc := scanner.New(s, app.Detector(),
				scanner.WithSink(s),
				scanner.WithHub(hub),
				scanner.WithBookkeeper(s),
				scanner.WithCandleWindow(cfg.Detection.CandleWindow),
				scanner.WithLogger(app.Logger),
			)
			sched := scanner.NewScheduler(sc, cfg.Scanner.Pairs, interval, cfg.Scanner.Workers, app.Logger)

			if !output.IsJSON() {
				output.Info("Scanning %d pairs every %s (Ctrl+C to stop)", len(cfg.Scanner.Pairs), interval)
			}
			return sched.Run(ctx, func(reports []*scanner.CycleReport) {
				if output.IsJSON() {
					return
				}
				printMu.Lock()
				defer printMu.Unlock()
				for _, r := range reports {
					output.Printf("%s %-20s %s\n", output.DimText(FormatTime(time.Now())), r.Pair.String(), output.Status(r.Summary()))
				}
			})
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "scan interval (default: scanner.interval)")
	return cmd
}

func newWatchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print pattern events published to Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			rc := app.Config.Publish.Redis

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			pub := publish.NewRedisPublisher(publish.Options{
				Addr:          rc.Addr,
				Password:      rc.Password,
				DB:            rc.DB,
				ChannelPrefix: rc.ChannelPrefix,
			}, app.Logger)
			defer pub.Close()

			if !output.IsJSON() {
				output.Info("Watching %s (Ctrl+C to stop)", pub.Channel(publish.EventPatternDetected))
			}
			return pub.Subscribe(ctx, publish.EventPatternDetected, func(ctx context.Context, e *publish.Event) error {
				logger := logging.FromContext(ctx)
				logger.Debug().
					Str("correlation_id", e.CorrelationID).
					Str("source", e.Source).
					Msg("Received pattern event")
				if output.IsJSON() {
					return output.JSON(e)
				}
				output.Dim("%s from %s", FormatDateTime(e.Timestamp), e.Source)
				printEmission(output, e.Payload)
				output.Println()
				return nil
			})
		},
	}
}

func reportJSON(r *scanner.CycleReport) map[string]interface{} {
	out := map[string]interface{}{
		"symbol":      r.Pair.Symbol,
		"timeframe":   r.Pair.Timeframe,
		"status":      r.Summary(),
		"saved":       r.Saved,
		"duration_ms": r.Duration.Milliseconds(),
	}
	if r.Result != nil {
		out["candles"] = r.Result.Candles
		out["swings"] = r.Result.Swings
		out["windows"] = r.Result.Windows
		out["emissions"] = r.Result.Emissions
	}
	if r.Err != nil {
		out["error"] = r.Err.Error()
	}
	return out
}

func printReport(output *Output, r *scanner.CycleReport) {
	output.Printf("%s  %s\n", output.BoldText(r.Pair.String()), output.Status(r.Summary()))
	if r.Result != nil {
		output.Dim("  candles %d · swings %d · windows %d · candidates %d · %s",
			r.Result.Candles, r.Result.Swings, r.Result.Windows, r.Result.Candidates, FormatDuration(r.Duration))
	}
	if r.Err != nil {
		output.Warning("  %v", r.Err)
	}
	if r.SaveErrors > 0 {
		output.Warning("  %d patterns could not be saved", r.SaveErrors)
	}
}

func printEmission(output *Output, em models.Emission) {
	p, s := em.Pattern, em.Setup

	title := fmt.Sprintf("%s %s %s", p.Type, p.Symbol, p.Timeframe)
	if p.Projected() {
		title += " (projected)"
	}

	lines := []string{
		fmt.Sprintf("Direction:   %s", output.Direction(p.Direction)),
		fmt.Sprintf("Confidence:  %s", output.Confidence(p.Confidence)),
		fmt.Sprintf("Ratios:      XAB %.3f  ABC %.3f  BCD %.3f  XAD %.3f", p.Ratios.XAB, p.Ratios.ABC, p.Ratios.BCD, p.Ratios.XAD),
		fmt.Sprintf("Entry:       %s", FormatPrice(s.Entry)),
		fmt.Sprintf("Stop-loss:   %s", output.Red(FormatPrice(s.StopLoss))),
	}
	for i, tp := range s.TakeProfits {
		lines = append(lines, fmt.Sprintf("TP%d:         %s", i+1, output.Green(FormatPrice(tp))))
	}
	lines = append(lines,
		fmt.Sprintf("Risk/Reward: %s", FormatRiskReward(s.RiskReward)),
		fmt.Sprintf("Valid until: %s", FormatDateTime(s.ValidUntil)),
	)
	if !s.Valid {
		lines = append(lines, output.Yellow("Setup invalid: "+s.InvalidReason))
	}
	lines = append(lines, output.DimText("ID "+p.ID))

	output.Box(title, lines)
}
