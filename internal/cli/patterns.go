package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"harmonic-scanner/internal/analysis/harmonic"
	"harmonic-scanner/internal/models"
	"harmonic-scanner/internal/store"
)

// addPatternCommands adds commands that read stored patterns and templates.
func addPatternCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newPatternsCmd(app))
	rootCmd.AddCommand(newPatternCmd(app))
	rootCmd.AddCommand(newTemplatesCmd())
}

func newPatternsCmd(app *App) *cobra.Command {
	var (
		filter    store.PatternFilter
		timeframe string
		pattern   string
		direction string
		since     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "List detected patterns",
		Example: `  harmonic patterns --symbol BTCUSDT --min-confidence 85
  harmonic patterns --type BAT --since 24h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			filter.Symbol = strings.ToUpper(filter.Symbol)
			filter.Timeframe = models.Timeframe(timeframe)
			filter.Type = models.PatternType(strings.ToUpper(pattern))
			filter.Direction = models.Direction(strings.ToUpper(direction))
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}

			s, err := app.Store(ctx)
			if err != nil {
				return err
			}
			patterns, err := s.ListPatterns(ctx, filter)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(patterns)
			}
			if len(patterns) == 0 {
				output.Dim("No patterns found")
				return nil
			}

			table := NewTable(output, "Detected", "Pair", "Type", "Direction", "Confidence", "D", "ID")
			for _, p := range patterns {
				d := p.Point(models.PointD)
				table.AddRow(
					FormatDateTime(p.DetectedAt),
					models.Pair{Symbol: p.Symbol, Timeframe: p.Timeframe}.String(),
					string(p.Type),
					output.Direction(p.Direction),
					output.Confidence(p.Confidence),
					FormatPrice(d.Price),
					TruncateString(p.ID, 13),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&filter.Symbol, "symbol", "", "filter by symbol")
	cmd.Flags().StringVar(&timeframe, "timeframe", "", "filter by timeframe")
	cmd.Flags().StringVar(&pattern, "type", "", "filter by pattern type (GARTLEY, BUTTERFLY, BAT, CRAB, CYPHER)")
	cmd.Flags().StringVar(&direction, "direction", "", "filter by direction (LONG, SHORT)")
	cmd.Flags().Float64Var(&filter.MinConfidence, "min-confidence", 0, "minimum confidence")
	cmd.Flags().DurationVar(&since, "since", 0, "only patterns detected within this duration")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "maximum number of patterns")
	return cmd
}

func newPatternCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pattern <id>",
		Short: "Show one pattern with its points and trade setup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			s, err := app.Store(ctx)
			if err != nil {
				return err
			}
			p, err := s.GetPattern(ctx, args[0])
			if err != nil {
				return err
			}
			setup, err := s.GetSetup(ctx, p.ID)
			if err != nil {
				return err
			}

			em := models.Emission{Pattern: *p, Setup: *setup}
			if output.IsJSON() {
				return output.JSON(em)
			}

			printEmission(output, em)
			output.Println()

			table := NewTable(output, "Point", "Price", "Time", "Ratio", "Score")
			for _, pt := range p.Points {
				price := FormatPrice(pt.Price)
				if pt.Projected {
					price += output.DimText(" (proj)")
				}
				table.AddRow(
					string(pt.Label),
					price,
					FormatDateTime(time.UnixMilli(pt.Timestamp)),
					FormatRatio(pt.Ratio),
					fmt.Sprintf("%.1f", pt.Contribution),
				)
			}
			table.Render()
			output.Dim("Setup status: %s", setup.Status)
			return nil
		},
	}
	return cmd
}

func newTemplatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "Show the Fibonacci ratio templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			templates := harmonic.Templates()

			if output.IsJSON() {
				out := make(map[models.PatternType]map[harmonic.Leg]harmonic.Band, len(templates))
				for _, t := range templates {
					bands := make(map[harmonic.Leg]harmonic.Band, len(harmonic.Legs))
					for _, leg := range harmonic.Legs {
						bands[leg] = t.Band(leg)
					}
					out[t.Type] = bands
				}
				return output.JSON(out)
			}

			headers := []string{"Pattern"}
			for _, leg := range harmonic.Legs {
				headers = append(headers, string(leg))
			}
			table := NewTable(output, headers...)
			for _, t := range templates {
				row := []string{string(t.Type)}
				for _, leg := range harmonic.Legs {
					b := t.Band(leg)
					row = append(row, fmt.Sprintf("%.3f–%.3f (%.3f)", b.Min, b.Max, b.Ideal))
				}
				table.AddRow(row...)
			}
			table.Render()
			output.Dim("Bands are inclusive; ideal in parentheses. Ties resolve in the order listed.")
			return nil
		},
	}
}
