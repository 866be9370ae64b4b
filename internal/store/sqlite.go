package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"harmonic-scanner/internal/errors"
	"harmonic-scanner/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	scanTimes map[models.Pair]time.Time
}

var _ DataStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:        db,
		scanTimes: make(map[models.Pair]time.Time),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Candles table for OHLCV data, times in epoch milliseconds
	CREATE TABLE IF NOT EXISTS candles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		open_time INTEGER NOT NULL,
		close_time INTEGER NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, timeframe, open_time)
	);

	-- Emitted harmonic patterns
	CREATE TABLE IF NOT EXISTS harmonic_patterns (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		type TEXT NOT NULL,
		direction TEXT NOT NULL,
		confidence REAL NOT NULL,
		points TEXT NOT NULL,
		ratios TEXT NOT NULL,
		projected INTEGER DEFAULT 0,
		detected_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Trade setups, one per pattern
	CREATE TABLE IF NOT EXISTS trade_setups (
		id TEXT PRIMARY KEY,
		pattern_id TEXT NOT NULL UNIQUE,
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		direction TEXT NOT NULL,
		entry REAL NOT NULL,
		stop_loss REAL NOT NULL,
		take_profits TEXT NOT NULL,
		risk_reward REAL NOT NULL,
		valid INTEGER NOT NULL,
		invalid_reason TEXT,
		status TEXT DEFAULT 'PENDING',
		valid_from DATETIME NOT NULL,
		valid_until DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (pattern_id) REFERENCES harmonic_patterns(id)
	);

	-- Last scan per pair
	CREATE TABLE IF NOT EXISTS scan_status (
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		last_scan DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (symbol, timeframe)
	);

	-- Create indexes for performance
	CREATE INDEX IF NOT EXISTS idx_candles_symbol_timeframe ON candles(symbol, timeframe);
	CREATE INDEX IF NOT EXISTS idx_patterns_symbol ON harmonic_patterns(symbol, timeframe);
	CREATE INDEX IF NOT EXISTS idx_patterns_detected ON harmonic_patterns(detected_at);
	CREATE INDEX IF NOT EXISTS idx_setups_status ON trade_setups(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Candles Methods
// ============================================================================

// SaveCandles saves candles to the database. Each candle carries its own pair.
func (s *SQLiteStore) SaveCandles(ctx context.Context, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, timeframe, open_time, close_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.ExecContext(ctx, c.Symbol, string(c.Timeframe), c.OpenTime, c.CloseTime, c.Open, c.High, c.Low, c.Close, c.Volume)
		if err != nil {
			return fmt.Errorf("failed to insert candle: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetCandles retrieves candles opened within [from, to].
func (s *SQLiteStore) GetCandles(ctx context.Context, pair models.Pair, from, to time.Time) ([]models.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT open_time, close_time, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND timeframe = ? AND open_time >= ? AND open_time <= ?
		ORDER BY open_time ASC
	`, pair.Symbol, string(pair.Timeframe), from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()

	return scanCandleRows(rows, pair)
}

// RecentCandles returns the newest limit candles in chronological order.
func (s *SQLiteStore) RecentCandles(ctx context.Context, pair models.Pair, limit int) ([]models.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT open_time, close_time, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND timeframe = ?
		ORDER BY open_time DESC
		LIMIT ?
	`, pair.Symbol, string(pair.Timeframe), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()

	candles, err := scanCandleRows(rows, pair)
	if err != nil {
		return nil, err
	}
	reverseCandles(candles)
	return candles, nil
}

func scanCandleRows(rows *sql.Rows, pair models.Pair) ([]models.Candle, error) {
	var candles []models.Candle
	for rows.Next() {
		c := models.Candle{Symbol: pair.Symbol, Timeframe: pair.Timeframe}
		if err := rows.Scan(&c.OpenTime, &c.CloseTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		candles = append(candles, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candles: %w", err)
	}

	return candles, nil
}

// GetCandlesFreshness returns the open time of the most recent candle.
func (s *SQLiteStore) GetCandlesFreshness(ctx context.Context, pair models.Pair) (time.Time, error) {
	var openTime sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(open_time) FROM candles WHERE symbol = ? AND timeframe = ?
	`, pair.Symbol, string(pair.Timeframe)).Scan(&openTime)
	if err != nil && err != sql.ErrNoRows {
		return time.Time{}, fmt.Errorf("failed to get candles freshness: %w", err)
	}
	if !openTime.Valid {
		return time.Time{}, nil
	}
	return time.UnixMilli(openTime.Int64).UTC(), nil
}

// ListPairs returns every (symbol, timeframe) with stored candles.
func (s *SQLiteStore) ListPairs(ctx context.Context) ([]models.Pair, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT symbol, timeframe FROM candles ORDER BY symbol, timeframe
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pairs: %w", err)
	}
	defer rows.Close()

	var pairs []models.Pair
	for rows.Next() {
		var p models.Pair
		var tf string
		if err := rows.Scan(&p.Symbol, &tf); err != nil {
			return nil, fmt.Errorf("failed to scan pair: %w", err)
		}
		p.Timeframe = models.Timeframe(tf)
		pairs = append(pairs, p)
	}

	return pairs, rows.Err()
}

// ============================================================================
// Pattern Methods
// ============================================================================

// SaveEmission stores a pattern and its setup in one transaction. Re-saving an
// already stored pattern is a no-op, so a setup's status survives later scans.
func (s *SQLiteStore) SaveEmission(ctx context.Context, em models.Emission) error {
	p, st := em.Pattern, em.Setup

	enc, err := encodePattern(&p)
	if err != nil {
		return err
	}
	targets, err := json.Marshal(st.TakeProfits)
	if err != nil {
		return fmt.Errorf("marshalling take profits: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO harmonic_patterns (id, symbol, timeframe, type, direction, confidence, points, ratios, projected, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Symbol, string(p.Timeframe), string(p.Type), string(p.Direction), p.Confidence,
		string(enc.points), string(enc.ratios), boolToInt(p.Projected()), p.DetectedAt)
	if err != nil {
		return fmt.Errorf("failed to save pattern: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO trade_setups (id, pattern_id, symbol, timeframe, direction, entry, stop_loss, take_profits, risk_reward, valid, invalid_reason, status, valid_from, valid_until)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, st.ID, st.PatternID, st.Symbol, string(st.Timeframe), string(st.Direction), st.Entry, st.StopLoss,
		string(targets), st.RiskReward, boolToInt(st.Valid), st.InvalidReason, string(st.Status), st.ValidFrom, st.ValidUntil)
	if err != nil {
		return fmt.Errorf("failed to save setup: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListPatterns retrieves patterns, newest first.
func (s *SQLiteStore) ListPatterns(ctx context.Context, filter PatternFilter) ([]models.HarmonicPattern, error) {
	query := "SELECT id, symbol, timeframe, type, direction, confidence, points, ratios, detected_at FROM harmonic_patterns WHERE 1=1"
	args := []interface{}{}

	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if filter.Timeframe != "" {
		query += " AND timeframe = ?"
		args = append(args, string(filter.Timeframe))
	}
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, string(filter.Type))
	}
	if filter.Direction != "" {
		query += " AND direction = ?"
		args = append(args, string(filter.Direction))
	}
	if filter.MinConfidence > 0 {
		query += " AND confidence >= ?"
		args = append(args, filter.MinConfidence)
	}
	if !filter.Since.IsZero() {
		query += " AND detected_at >= ?"
		args = append(args, filter.Since)
	}

	query += " ORDER BY detected_at DESC, confidence DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	var patterns []models.HarmonicPattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, *p)
	}

	return patterns, rows.Err()
}

// GetPattern retrieves a pattern by ID.
func (s *SQLiteStore) GetPattern(ctx context.Context, id string) (*models.HarmonicPattern, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, symbol, timeframe, type, direction, confidence, points, ratios, detected_at
		FROM harmonic_patterns WHERE id = ?
	`, id)

	p, err := scanPattern(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewDataError("pattern", id, "not found", errors.ErrDataNotFound)
	}
	return p, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPattern(row rowScanner) (*models.HarmonicPattern, error) {
	var p models.HarmonicPattern
	var tf, pt, dir, points, ratios string
	if err := row.Scan(&p.ID, &p.Symbol, &tf, &pt, &dir, &p.Confidence, &points, &ratios, &p.DetectedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan pattern: %w", err)
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
func (s *SQLiteStore) GetSetup(ctx context.Context, patternID string) (*models.TradeSetup, error) {
	var st models.TradeSetup
	var tf, dir, status, targets string
	var valid int
	var reason sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, pattern_id, symbol, timeframe, direction, entry, stop_loss, take_profits, risk_reward, valid, invalid_reason, status, valid_from, valid_until
		FROM trade_setups WHERE pattern_id = ?
	`, patternID).Scan(&st.ID, &st.PatternID, &st.Symbol, &tf, &dir, &st.Entry, &st.StopLoss, &targets,
		&st.RiskReward, &valid, &reason, &status, &st.ValidFrom, &st.ValidUntil)
	if err == sql.ErrNoRows {
		return nil, errors.NewDataError("setup", patternID, "not found", errors.ErrDataNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setup: %w", err)
	}

	if err := json.Unmarshal([]byte(targets), &st.TakeProfits); err != nil {
		return nil, fmt.Errorf("unmarshalling take profits: %w", err)
	}
	st.Timeframe = models.Timeframe(tf)
	st.Direction = models.Direction(dir)
	st.Status = models.SetupStatus(status)
	st.Valid = valid != 0
	st.InvalidReason = reason.String
	st.ValidFrom = st.ValidFrom.UTC()
	st.ValidUntil = st.ValidUntil.UTC()
	return &st, nil
}

// UpdateSetupStatus updates a setup's lifecycle status.
func (s *SQLiteStore) UpdateSetupStatus(ctx context.Context, setupID string, status models.SetupStatus) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE trade_setups SET status = ? WHERE id = ?
	`, string(status), setupID)
	if err != nil {
		return fmt.Errorf("failed to update setup status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return errors.NewDataError("setup", setupID, "not found", errors.ErrDataNotFound)
	}
	return nil
}

// ExpireSetups marks pending setups whose validity window has passed as EXPIRED.
func (s *SQLiteStore) ExpireSetups(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE trade_setups SET status = ? WHERE status = ? AND valid_until < ?
	`, string(models.SetupExpired), string(models.SetupPending), now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire setups: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(n), nil
}

// ============================================================================
// Scan Bookkeeping
// ============================================================================

// GetLastScan returns the last scan time for a pair, or the zero time.
func (s *SQLiteStore) GetLastScan(ctx context.Context, pair models.Pair) (time.Time, error) {
	s.mu.RLock()
	if t, ok := s.scanTimes[pair]; ok {
		s.mu.RUnlock()
		return t, nil
	}
	s.mu.RUnlock()

	var lastScan time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT last_scan FROM scan_status WHERE symbol = ? AND timeframe = ?
	`, pair.Symbol, string(pair.Timeframe)).Scan(&lastScan)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last scan: %w", err)
	}

	s.mu.Lock()
	s.scanTimes[pair] = lastScan
	s.mu.Unlock()

	return lastScan, nil
}

// SetLastScan records the last scan time for a pair.
func (s *SQLiteStore) SetLastScan(ctx context.Context, pair models.Pair, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO scan_status (symbol, timeframe, last_scan, updated_at)
		VALUES (?, ?, ?, ?)
	`, pair.Symbol, string(pair.Timeframe), t, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set last scan: %w", err)
	}

	s.mu.Lock()
	s.scanTimes[pair] = t
	s.mu.Unlock()

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
