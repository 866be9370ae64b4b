// Package analysis defines the contracts shared by pattern detectors and the
// collaborators that drive them.
package analysis

import (
	"context"
	"fmt"

	"harmonic-scanner/internal/models"
)

// PatternDetector defines the interface for pattern detection over a candle snapshot.
type PatternDetector interface {
	Name() string
	Scan(ctx context.Context, pair models.Pair, candles []models.Candle) (*ScanResult, error)
}

// ScanStatus is the coarse outcome of one scan cycle.
type ScanStatus string

const (
	ScanAborted ScanStatus = "ABORTED"
	ScanNoMatch ScanStatus = "NO_MATCH"
	ScanEmitted ScanStatus = "EMITTED"
)

// ScanResult describes one scan cycle over one (symbol, timeframe) snapshot.
type ScanResult struct {
	Pair             models.Pair
	Status           ScanStatus
	Candles          int
	Swings           int
	Windows          int // 5-point windows evaluated
	UndefinedWindows int // windows skipped on a zero-length reference leg
	Candidates       int // windows where at least one template matched
	Emissions        []models.Emission
}

// Summary renders the status the way operators read it: aborted, no-match or emitted-N.
func (r *ScanResult) Summary() string {
	switch r.Status {
	case ScanAborted:
		return "aborted"
	case ScanNoMatch:
		return "no-match"
	default:
		return fmt.Sprintf("emitted-%d", len(r.Emissions))
	}
}
