package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"harmonic-scanner/internal/errors"
	"harmonic-scanner/internal/models"
	"harmonic-scanner/pkg/utils"
)

const candleBatchSize = 1000

// PostgresStore implements DataStore on a pgx connection pool.
type PostgresStore struct {
	pool      *pgxpool.Pool
	logger    zerolog.Logger
	mu        sync.RWMutex
	scanTimes map[models.Pair]time.Time
}

var _ DataStore = (*PostgresStore)(nil)

// NewPostgresStore connects to PostgreSQL and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string, logger zerolog.Logger) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// The database may still be starting when the scanner comes up.
	if err := utils.Retry(ctx, utils.DefaultRetryConfig(), func() error { return pool.Ping(ctx) }); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &PostgresStore{
		pool:      pool,
		logger:    logger.With().Str("component", "postgres").Logger(),
		scanTimes: make(map[models.Pair]time.Time),
	}

	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Info().
		Int32("max_conns", config.MaxConns).
		Int32("min_conns", config.MinConns).
		Msg("Database connection pool established")

	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS candles (
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		open_time BIGINT NOT NULL,
		close_time BIGINT NOT NULL,
		open DOUBLE PRECISION NOT NULL,
		high DOUBLE PRECISION NOT NULL,
		low DOUBLE PRECISION NOT NULL,
		close DOUBLE PRECISION NOT NULL,
		volume DOUBLE PRECISION NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		PRIMARY KEY (symbol, timeframe, open_time)
	);

	CREATE TABLE IF NOT EXISTS harmonic_patterns (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		type TEXT NOT NULL,
		direction TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		points JSONB NOT NULL,
		ratios JSONB NOT NULL,
		projected BOOLEAN DEFAULT FALSE,
		detected_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS trade_setups (
		id TEXT PRIMARY KEY,
		pattern_id TEXT NOT NULL UNIQUE REFERENCES harmonic_patterns(id),
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		direction TEXT NOT NULL,
		entry DOUBLE PRECISION NOT NULL,
		stop_loss DOUBLE PRECISION NOT NULL,
		take_profits JSONB NOT NULL,
		risk_reward DOUBLE PRECISION NOT NULL,
		valid BOOLEAN NOT NULL,
		invalid_reason TEXT,
		status TEXT DEFAULT 'PENDING',
		valid_from TIMESTAMPTZ NOT NULL,
		valid_until TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS scan_status (
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		last_scan TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ DEFAULT NOW(),
		PRIMARY KEY (symbol, timeframe)
	);

	CREATE INDEX IF NOT EXISTS idx_patterns_symbol ON harmonic_patterns(symbol, timeframe);
	CREATE INDEX IF NOT EXISTS idx_patterns_detected ON harmonic_patterns(detected_at);
	CREATE INDEX IF NOT EXISTS idx_setups_status ON trade_setups(status);
	`)
	return err
}

// Close shuts down the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	s.logger.Info().Msg("Database connection pool closed")
	return nil
}

// HealthCheck verifies database connectivity.
func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// SaveCandles upserts candles in batches of candleBatchSize using pgx.Batch.
func (s *PostgresStore) SaveCandles(ctx context.Context, candles []models.Candle) error {
	for i := 0; i < len(candles); i += candleBatchSize {
		end := i + candleBatchSize
		if end > len(candles) {
			end = len(candles)
		}
		chunk := candles[i:end]

		batch := &pgx.Batch{}
		for _, c := range chunk {
			batch.Queue(
				`INSERT INTO candles (symbol, timeframe, open_time, close_time, open, high, low, close, volume)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				 ON CONFLICT (symbol, timeframe, open_time) DO UPDATE SET
				   close_time = EXCLUDED.close_time, open = EXCLUDED.open, high = EXCLUDED.high,
				   low = EXCLUDED.low, close = EXCLUDED.close, volume = EXCLUDED.volume`,
				c.Symbol, string(c.Timeframe), c.OpenTime, c.CloseTime,
				c.Open, c.High, c.Low, c.Close, c.Volume,
			)
		}

		results := s.pool.SendBatch(ctx, batch)
		for range chunk {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return fmt.Errorf("executing batch insert: %w", err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("closing batch results: %w", err)
		}

		s.logger.Debug().
			Int("chunk_size", len(chunk)).
			Int("offset", i).
			Msg("Batch insert complete")
	}
	return nil
}

// GetCandles retrieves candles opened within [from, to].
func (s *PostgresStore) GetCandles(ctx context.Context, pair models.Pair, from, to time.Time) ([]models.Candle, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT open_time, close_time, open, high, low, close, volume
		 FROM candles
		 WHERE symbol = $1 AND timeframe = $2 AND open_time >= $3 AND open_time <= $4
		 ORDER BY open_time ASC`,
		pair.Symbol, string(pair.Timeframe), from.UnixMilli(), to.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying candles: %w", err)
	}
	defer rows.Close()

	return collectCandles(rows, pair)
}

// RecentCandles returns the newest limit candles in chronological order.
func (s *PostgresStore) RecentCandles(ctx context.Context, pair models.Pair, limit int) ([]models.Candle, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT open_time, close_time, open, high, low, close, volume
		 FROM candles
		 WHERE symbol = $1 AND timeframe = $2
		 ORDER BY open_time DESC
		 LIMIT $3`,
		pair.Symbol, string(pair.Timeframe), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying candles: %w", err)
	}
	defer rows.Close()

	candles, err := collectCandles(rows, pair)
	if err != nil {
		return nil, err
	}
	reverseCandles(candles)
	return candles, nil
}

func collectCandles(rows pgx.Rows, pair models.Pair) ([]models.Candle, error) {
	var candles []models.Candle
	for rows.Next() {
		c := models.Candle{Symbol: pair.Symbol, Timeframe: pair.Timeframe}
		if err := rows.Scan(&c.OpenTime, &c.CloseTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scanning candle row: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// GetCandlesFreshness returns the open time of the most recent candle.
func (s *PostgresStore) GetCandlesFreshness(ctx context.Context, pair models.Pair) (time.Time, error) {
	var openTime *int64
	err := s.pool.QueryRow(ctx,
		`SELECT MAX(open_time) FROM candles WHERE symbol = $1 AND timeframe = $2`,
		pair.Symbol, string(pair.Timeframe),
	).Scan(&openTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("getting candles freshness: %w", err)
	}
	if openTime == nil {
		return time.Time{}, nil
	}
	return time.UnixMilli(*openTime).UTC(), nil
}

// ListPairs returns every (symbol, timeframe) with stored candles.
func (s *PostgresStore) ListPairs(ctx context.Context) ([]models.Pair, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT symbol, timeframe FROM candles ORDER BY symbol, timeframe`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying pairs: %w", err)
	}
	defer rows.Close()

	var pairs []models.Pair
	for rows.Next() {
		var p models.Pair
		var tf string
		if err := rows.Scan(&p.Symbol, &tf); err != nil {
			return nil, fmt.Errorf("scanning pair row: %w", err)
		}
		p.Timeframe = models.Timeframe(tf)
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// SaveEmission stores a pattern and its setup in one transaction. Re-saving an
// already stored pattern is a no-op.
func (s *PostgresStore) SaveEmission(ctx context.Context, em models.Emission) error {
	p, st := em.Pattern, em.Setup

	enc, err := encodePattern(&p)
	if err != nil {
		return err
	}
	targets, err := json.Marshal(st.TakeProfits)
	if err != nil {
		return fmt.Errorf("marshalling take profits: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO harmonic_patterns (id, symbol, timeframe, type, direction, confidence, points, ratios, projected, detected_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Symbol, string(p.Timeframe), string(p.Type), string(p.Direction), p.Confidence,
		string(enc.points), string(enc.ratios), p.Projected(), p.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting pattern %s: %w", p.ID, err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO trade_setups (id, pattern_id, symbol, timeframe, direction, entry, stop_loss, take_profits, risk_reward, valid, invalid_reason, status, valid_from, valid_until)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (id) DO NOTHING`,
		st.ID, st.PatternID, st.Symbol, string(st.Timeframe), string(st.Direction), st.Entry, st.StopLoss,
		string(targets), st.RiskReward, st.Valid, st.InvalidReason, string(st.Status), st.ValidFrom, st.ValidUntil,
	)
	if err != nil {
		return fmt.Errorf("inserting setup %s: %w", st.ID, err)
	}

	return tx.Commit(ctx)
}

// ListPatterns retrieves patterns, newest first.
func (s *PostgresStore) ListPatterns(ctx context.Context, filter PatternFilter) ([]models.HarmonicPattern, error) {
	query := "SELECT id, symbol, timeframe, type, direction, confidence, points::text, ratios::text, detected_at FROM harmonic_patterns WHERE 1=1"
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Symbol != "" {
		query += " AND symbol = " + arg(filter.Symbol)
	}
	if filter.Timeframe != "" {
		query += " AND timeframe = " + arg(string(filter.Timeframe))
	}
	if filter.Type != "" {
		query += " AND type = " + arg(string(filter.Type))
	}
	if filter.Direction != "" {
		query += " AND direction = " + arg(string(filter.Direction))
	}
	if filter.MinConfidence > 0 {
		query += " AND confidence >= " + arg(filter.MinConfidence)
	}
	if !filter.Since.IsZero() {
		query += " AND detected_at >= " + arg(filter.Since)
	}

	query += " ORDER BY detected_at DESC, confidence DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying patterns: %w", err)
	}
	defer rows.Close()

	var patterns []models.HarmonicPattern
	for rows.Next() {
		p, err := scanPatternRow(rows)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, *p)
	}
	return patterns, rows.Err()
}

// GetPattern retrieves a pattern by ID.
func (s *PostgresStore) GetPattern(ctx context.Context, id string) (*models.HarmonicPattern, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, symbol, timeframe, type, direction, confidence, points::text, ratios::text, detected_at
		 FROM harmonic_patterns WHERE id = $1`, id,
	)
	p, err := scanPatternRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NewDataError("pattern", id, "not found", errors.ErrDataNotFound)
	}
	return p, err
}

func scanPatternRow(row pgx.Row) (*models.HarmonicPattern, error) {
	var p models.HarmonicPattern
	var tf, pt, dir, points, ratios string
	if err := row.Scan(&p.ID, &p.Symbol, &tf, &pt, &dir, &p.Confidence, &points, &ratios, &p.DetectedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning pattern row: %w", err)
	}
	p.Timeframe = models.Timeframe(tf)
	p.Type = models.PatternType(pt)
	p.Direction = models.Direction(dir)
	p.DetectedAt = p.DetectedAt.UTC()
	if err := decodePattern(&p, []byte(points), []byte(ratios)); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetSetup retrieves the setup derived from a pattern.
func (s *PostgresStore) GetSetup(ctx context.Context, patternID string) (*models.TradeSetup, error) {
	var st models.TradeSetup
	var tf, dir, status, targets string
	var reason *string

	err := s.pool.QueryRow(ctx,
		`SELECT id, pattern_id, symbol, timeframe, direction, entry, stop_loss, take_profits::text, risk_reward, valid, invalid_reason, status, valid_from, valid_until
		 FROM trade_setups WHERE pattern_id = $1`, patternID,
	).Scan(&st.ID, &st.PatternID, &st.Symbol, &tf, &dir, &st.Entry, &st.StopLoss, &targets,
		&st.RiskReward, &st.Valid, &reason, &status, &st.ValidFrom, &st.ValidUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NewDataError("setup", patternID, "not found", errors.ErrDataNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting setup: %w", err)
	}

	if err := json.Unmarshal([]byte(targets), &st.TakeProfits); err != nil {
		return nil, fmt.Errorf("unmarshalling take profits: %w", err)
	}
	st.Timeframe = models.Timeframe(tf)
	st.Direction = models.Direction(dir)
	st.Status = models.SetupStatus(status)
	if reason != nil {
		st.InvalidReason = *reason
	}
	st.ValidFrom = st.ValidFrom.UTC()
	st.ValidUntil = st.ValidUntil.UTC()
	return &st, nil
}

// UpdateSetupStatus updates a setup's lifecycle status.
func (s *PostgresStore) UpdateSetupStatus(ctx context.Context, setupID string, status models.SetupStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE trade_setups SET status = $1 WHERE id = $2`, string(status), setupID,
	)
	if err != nil {
		return fmt.Errorf("updating setup status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewDataError("setup", setupID, "not found", errors.ErrDataNotFound)
	}
	return nil
}

// ExpireSetups marks pending setups whose validity window has passed as EXPIRED.
func (s *PostgresStore) ExpireSetups(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE trade_setups SET status = $1 WHERE status = $2 AND valid_until < $3`,
		string(models.SetupExpired), string(models.SetupPending), now,
	)
	if err != nil {
		return 0, fmt.Errorf("expiring setups: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// GetLastScan returns the last scan time for a pair, or the zero time.
func (s *PostgresStore) GetLastScan(ctx context.Context, pair models.Pair) (time.Time, error) {
	s.mu.RLock()
	if t, ok := s.scanTimes[pair]; ok {
		s.mu.RUnlock()
		return t, nil
	}
	s.mu.RUnlock()

	var lastScan time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT last_scan FROM scan_status WHERE symbol = $1 AND timeframe = $2`,
		pair.Symbol, string(pair.Timeframe),
	).Scan(&lastScan)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("getting last scan: %w", err)
	}

	s.mu.Lock()
	s.scanTimes[pair] = lastScan
	s.mu.Unlock()
	return lastScan, nil
}

// SetLastScan records the last scan time for a pair.
func (s *PostgresStore) SetLastScan(ctx context.Context, pair models.Pair, t time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scan_status (symbol, timeframe, last_scan, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (symbol, timeframe) DO UPDATE SET last_scan = EXCLUDED.last_scan, updated_at = NOW()`,
		pair.Symbol, string(pair.Timeframe), t,
	)
	if err != nil {
		return fmt.Errorf("setting last scan: %w", err)
	}

	s.mu.Lock()
	s.scanTimes[pair] = t
	s.mu.Unlock()
	return nil
}
