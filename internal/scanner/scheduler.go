package scanner

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"harmonic-scanner/internal/models"
)

// Scheduler scans a fixed set of pairs immediately and then on every tick.
type Scheduler struct {
	scanner  *Scanner
	pairs    []models.Pair
	interval time.Duration
	workers  int
	logger   zerolog.Logger
}

// NewScheduler creates a scheduler. workers bounds how many pairs scan at once.
func NewScheduler(scanner *Scanner, pairs []models.Pair, interval time.Duration, workers int, logger zerolog.Logger) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		scanner:  scanner,
		pairs:    pairs,
		interval: interval,
		workers:  workers,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// Run blocks until ctx is cancelled. onCycle, when set, receives the reports
// of every completed round.
func (s *Scheduler) Run(ctx context.Context, onCycle func([]*CycleReport)) error {
	s.logger.Info().
		Int("pairs", len(s.pairs)).
		Dur("interval", s.interval).
		Int("workers", s.workers).
		Msg("Starting periodic scan loop")

	s.round(ctx, onCycle)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Periodic scan loop stopped")
			return nil
		case <-ticker.C:
			s.round(ctx, onCycle)
		}
	}
}

func (s *Scheduler) round(ctx context.Context, onCycle func([]*CycleReport)) {
	start := time.Now()
	reports := s.ScanAll(ctx)
	if ctx.Err() != nil {
		return
	}

	if _, err := s.scanner.ExpireSetups(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Setup expiry failed")
	}

	emitted, aborted := 0, 0
	for _, r := range reports {
		if r.Err != nil {
			aborted++
		} else if r.Result != nil {
			emitted += len(r.Result.Emissions)
		}
	}
	s.logger.Info().
		Int("pairs", len(reports)).
		Int("emitted", emitted).
		Int("aborted", aborted).
		Dur("elapsed", time.Since(start).Round(time.Millisecond)).
		Msg("Scan round complete")

	if onCycle != nil {
		onCycle(reports)
	}
}

// ScanAll scans every pair once with bounded parallelism. Reports come back in
// the order of the configured pairs.
func (s *Scheduler) ScanAll(ctx context.Context) []*CycleReport {
	reports := make([]*CycleReport, len(s.pairs))

	p := pool.New().WithMaxGoroutines(s.workers)
	for i, pair := range s.pairs {
		i, pair := i, pair
		p.Go(func() {
			report, _ := s.scanner.ScanPair(ctx, pair)
			reports[i] = report
		})
	}
	p.Wait()

	return reports
}
