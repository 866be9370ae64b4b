package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"harmonic-scanner/internal/models"
	"harmonic-scanner/internal/store"
)

// addDataCommands adds commands that inspect and export stored data.
func addDataCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newCandlesCmd(app))
	rootCmd.AddCommand(newPairsCmd(app))
	rootCmd.AddCommand(newExportCmd(app))
}

func newCandlesCmd(app *App) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "candles <symbol> <timeframe>",
		Short:   "Show stored candles",
		Example: `  harmonic candles BTCUSDT 1h --limit 20`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			pair, err := parsePair(args[0], args[1])
			if err != nil {
				return err
			}
			s, err := app.Store(ctx)
			if err != nil {
				return err
			}
			candles, err := s.RecentCandles(ctx, pair, limit)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"symbol":    pair.Symbol,
					"timeframe": pair.Timeframe,
					"count":     len(candles),
					"candles":   candles,
				})
			}
			displayCandles(output, pair, candles)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 50, "number of recent candles")
	return cmd
}

func displayCandles(output *Output, pair models.Pair, candles []models.Candle) {
	output.Bold("%s", pair)
	output.Printf("  %d candles\n\n", len(candles))

	table := NewTable(output, "Open Time", "Open", "High", "Low", "Close", "Volume", "Change")
	for i, c := range candles {
		change := "-"
		if i > 0 && candles[i-1].Close != 0 {
			pct := (c.Close - candles[i-1].Close) / candles[i-1].Close * 100
			change = FormatPercent(pct)
			if pct > 0 {
				change = output.Green(change)
			} else if pct < 0 {
				change = output.Red(change)
			}
		}

		table.AddRow(
			FormatDateTime(c.OpenAt()),
			FormatPrice(c.Open),
			output.Green(FormatPrice(c.High)),
			output.Red(FormatPrice(c.Low)),
			FormatPrice(c.Close),
			fmt.Sprintf("%.2f", c.Volume),
			change,
		)
	}
	table.Render()
}

func newPairsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "pairs",
		Short: "List stored pairs with data freshness and last scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			s, err := app.Store(ctx)
			if err != nil {
				return err
			}
			pairs, err := s.ListPairs(ctx)
			if err != nil {
				return err
			}

			type pairInfo struct {
				Symbol     string           `json:"symbol"`
				Timeframe  models.Timeframe `json:"timeframe"`
				LastCandle string           `json:"last_candle"`
				LastScan   string           `json:"last_scan,omitempty"`
			}
			infos := make([]pairInfo, 0, len(pairs))
			for _, p := range pairs {
				info := pairInfo{Symbol: p.Symbol, Timeframe: p.Timeframe}
				if fresh, err := s.GetCandlesFreshness(ctx, p); err == nil && !fresh.IsZero() {
					info.LastCandle = FormatDateTime(fresh)
				}
				if last, err := s.GetLastScan(ctx, p); err == nil && !last.IsZero() {
					info.LastScan = FormatDateTime(last)
				}
				infos = append(infos, info)
			}

			if output.IsJSON() {
				return output.JSON(infos)
			}
			if len(infos) == 0 {
				output.Dim("No candles stored. Use 'harmonic import' to load some.")
				return nil
			}

			table := NewTable(output, "Symbol", "Timeframe", "Last Candle", "Last Scan")
			for _, info := range infos {
				lastScan := info.LastScan
				if lastScan == "" {
					lastScan = output.DimText("never")
				}
				table.AddRow(info.Symbol, string(info.Timeframe), info.LastCandle, lastScan)
			}
			table.Render()
			return nil
		},
	}
}

func newExportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export data to CSV files",
	}

	candlesCmd := &cobra.Command{
		Use:   "candles <symbol> <timeframe>",
		Short: "Export stored candles",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			outFile, _ := cmd.Flags().GetString("output")
			limit, _ := cmd.Flags().GetInt("limit")

			pair, err := parsePair(args[0], args[1])
			if err != nil {
				return err
			}
			if outFile == "" {
				outFile = fmt.Sprintf("%s_%s_candles.csv", pair.Symbol, pair.Timeframe)
			}

			s, err := app.Store(ctx)
			if err != nil {
				return err
			}
			candles, err := s.RecentCandles(ctx, pair, limit)
			if err != nil {
				return err
			}
			if len(candles) == 0 {
				output.Warning("No candles stored for %s", pair)
				return nil
			}

			if err := writeFile(outFile, func(f *os.File) error { return store.WriteCandlesCSV(f, candles) }); err != nil {
				output.Error("Export failed: %v", err)
				return err
			}
			output.Success("✓ Exported %d candles to %s", len(candles), outFile)
			return nil
		},
	}
	candlesCmd.Flags().StringP("output", "o", "", "output file")
	candlesCmd.Flags().Int("limit", 100000, "maximum number of recent candles")

	patternsCmd := &cobra.Command{
		Use:   "patterns",
		Short: "Export stored patterns with their setups",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			outFile, _ := cmd.Flags().GetString("output")
			symbol, _ := cmd.Flags().GetString("symbol")
			if outFile == "" {
				outFile = "patterns.csv"
			}

			s, err := app.Store(ctx)
			if err != nil {
				return err
			}
			patterns, err := s.ListPatterns(ctx, store.PatternFilter{Symbol: symbol})
			if err != nil {
				return err
			}

			emissions := make([]models.Emission, 0, len(patterns))
			for _, p := range patterns {
				setup, err := s.GetSetup(ctx, p.ID)
				if err != nil {
					return err
				}
				emissions = append(emissions, models.Emission{Pattern: p, Setup: *setup})
			}

			if err := writeFile(outFile, func(f *os.File) error { return store.WritePatternsCSV(f, emissions) }); err != nil {
				output.Error("Export failed: %v", err)
				return err
			}
			output.Success("✓ Exported %d patterns to %s", len(emissions), outFile)
			return nil
		},
	}
	patternsCmd.Flags().StringP("output", "o", "", "output file")
	patternsCmd.Flags().String("symbol", "", "only this symbol")

	cmd.AddCommand(candlesCmd, patternsCmd)
	return cmd
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
