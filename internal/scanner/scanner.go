// Package scanner drives the harmonic detector over stored candles and routes
// its emissions to persistence and the pattern hub.
package scanner

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"harmonic-scanner/internal/analysis"
	"harmonic-scanner/internal/errors"
	"harmonic-scanner/internal/logging"
	"harmonic-scanner/internal/models"
	"harmonic-scanner/internal/store"
	"harmonic-scanner/internal/stream"
)

// DefaultCandleWindow is how many recent candles one cycle reads.
const DefaultCandleWindow = 500

// Bookkeeper records scan progress and retires stale setups.
type Bookkeeper interface {
	SetLastScan(ctx context.Context, pair models.Pair, t time.Time) error
	ExpireSetups(ctx context.Context, now time.Time) (int, error)
}

// CycleReport summarises one scan cycle for one pair.
type CycleReport struct {
	Pair       models.Pair
	Result     *analysis.ScanResult
	Saved      int
	SaveErrors int
	Published  int
	Duration   time.Duration
	Err        error
}

// Summary returns the operator-facing status of the cycle.
func (r *CycleReport) Summary() string {
	if r.Result == nil {
		return "aborted"
	}
	return r.Result.Summary()
}

// Scanner runs scan cycles. It is safe for concurrent use across pairs when
// its collaborators are.
type Scanner struct {
	source       store.CandleSource
	detector     analysis.PatternDetector
	sink         store.PatternSink
	hub          *stream.Hub
	bookkeeper   Bookkeeper
	candleWindow int
	logger       zerolog.Logger
	now          func() time.Time
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithSink persists every emission before it is published.
func WithSink(sink store.PatternSink) Option {
	return func(s *Scanner) { s.sink = sink }
}

// WithHub publishes every emission to the hub.
func WithHub(hub *stream.Hub) Option {
	return func(s *Scanner) { s.hub = hub }
}

// WithBookkeeper records last-scan times through b.
func WithBookkeeper(b Bookkeeper) Option {
	return func(s *Scanner) { s.bookkeeper = b }
}

// WithCandleWindow sets how many recent candles a cycle reads.
func WithCandleWindow(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.candleWindow = n
		}
	}
}

// WithLogger sets the scanner logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Scanner) { s.logger = logger }
}

// New creates a scanner reading from source and detecting with detector.
func New(source store.CandleSource, detector analysis.PatternDetector, opts ...Option) *Scanner {
	s := &Scanner{
		source:       source,
		detector:     detector,
		candleWindow: DefaultCandleWindow,
		logger:       zerolog.Nop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "scanner").Logger()
	return s
}

// ScanPair runs one cycle for one pair: read the snapshot, detect, persist and
// publish. An aborted cycle returns its report together with the error.
// Persistence failures are counted in the report and do not fail the cycle.
func (s *Scanner) ScanPair(ctx context.Context, pair models.Pair) (*CycleReport, error) {
	start := s.now()
	logger := logging.WithOperation(logging.WithPair(s.logger, pair), "scan")
	report := &CycleReport{Pair: pair}

	candles, err := s.source.RecentCandles(ctx, pair, s.candleWindow)
	logging.LogCall(logger, "store", "recent_candles", s.now().Sub(start), err)
	if err != nil {
		report.Err = errors.NewScanError(pair.Symbol, string(pair.Timeframe), errors.StageCollecting, err)
		report.Result = &analysis.ScanResult{Pair: pair, Status: analysis.ScanAborted}
		report.Duration = s.now().Sub(start)
		logging.LogScan(logger, report.Result, report.Duration, report.Err)
		return report, report.Err
	}

	return s.scan(ctx, pair, candles, start, logger, report)
}

// ScanCandles runs one cycle on a caller-supplied snapshot instead of the source.
func (s *Scanner) ScanCandles(ctx context.Context, pair models.Pair, candles []models.Candle) (*CycleReport, error) {
	logger := logging.WithOperation(logging.WithPair(s.logger, pair), "scan")
	return s.scan(ctx, pair, candles, s.now(), logger, &CycleReport{Pair: pair})
}

func (s *Scanner) scan(ctx context.Context, pair models.Pair, candles []models.Candle, start time.Time, logger zerolog.Logger, report *CycleReport) (*CycleReport, error) {
	result, err := s.detector.Scan(ctx, pair, candles)
	report.Result = result
	if err != nil {
		report.Err = err
		report.Duration = s.now().Sub(start)
		if result != nil {
			logging.LogScan(logger, result, report.Duration, err)
		}
		return report, err
	}

	for _, em := range result.Emissions {
		logging.LogPattern(logger, em)

		if s.sink != nil {
			if err := s.sink.SaveEmission(ctx, em); err != nil {
				report.SaveErrors++
				logger.Error().Err(err).Str("pattern_id", em.Pattern.ID).Msg("Failed to save pattern")
			} else {
				report.Saved++
			}
		}

		if s.hub != nil && s.hub.Publish(em) {
			report.Published++
		}
	}

	if s.bookkeeper != nil {
		if err := s.bookkeeper.SetLastScan(ctx, pair, s.now()); err != nil {
			logger.Warn().Err(err).Msg("Failed to record last scan")
		}
	}

	report.Duration = s.now().Sub(start)
	logging.LogScan(logger, result, report.Duration, nil)
	return report, nil
}

// ExpireSetups retires setups whose validity window has passed.
func (s *Scanner) ExpireSetups(ctx context.Context) (int, error) {
	if s.bookkeeper == nil {
		return 0, nil
	}
	n, err := s.bookkeeper.ExpireSetups(ctx, s.now())
	if err != nil {
		return 0, errors.Wrap(err, "expiring setups")
	}
	if n > 0 {
		s.logger.Info().Int("expired", n).Msg("Expired trade setups")
	}
	return n, nil
}
