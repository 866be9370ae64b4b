package models

import "time"

// SetupStatus represents the lifecycle status of a trade setup.
// The engine only creates PENDING setups; later transitions belong to trade management.
type SetupStatus string

const (
	SetupPending   SetupStatus = "PENDING"
	SetupActive    SetupStatus = "ACTIVE"
	SetupTriggered SetupStatus = "TRIGGERED"
	SetupExpired   SetupStatus = "EXPIRED"
)

// InvalidDegenerateRR marks a setup whose entry equals its stop-loss.
const InvalidDegenerateRR = "DEGENERATE_RR"

// TradeSetup is an entry/stop/target plan derived from exactly one HarmonicPattern.
type TradeSetup struct {
	ID            string      `json:"id"`
	PatternID     string      `json:"pattern_id"`
	Symbol        string      `json:"symbol"`
	Timeframe     Timeframe   `json:"timeframe"`
	Direction     Direction   `json:"direction"`
	Entry         float64     `json:"entry"`
	StopLoss      float64     `json:"stop_loss"`
	TakeProfits   []float64   `json:"take_profits"` // TP1..TP3
	RiskReward    float64     `json:"risk_reward"`
	Valid         bool        `json:"valid"`
	InvalidReason string      `json:"invalid_reason,omitempty"`
	Status        SetupStatus `json:"status"`
	ValidFrom     time.Time   `json:"valid_from"`
	ValidUntil    time.Time   `json:"valid_until"`
}

// TakeProfit returns the n-th (1-based) take-profit level, or 0 when absent.
func (s *TradeSetup) TakeProfit(n int) float64 {
	if n < 1 || n > len(s.TakeProfits) {
		return 0
	}
	return s.TakeProfits[n-1]
}

// Emission pairs an emitted pattern with the setup derived from it.
type Emission struct {
	Pattern HarmonicPattern `json:"pattern"`
	Setup   TradeSetup      `json:"setup"`
}
