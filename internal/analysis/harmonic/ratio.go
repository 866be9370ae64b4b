package harmonic

import (
	"math"

	"harmonic-scanner/internal/errors"
	"harmonic-scanner/internal/models"
)

// LegRatio returns |p2-p1| / |p1-p0|: the length of the leg p1->p2 relative to
// the reference leg p0->p1. A zero-length reference leg yields ErrUndefinedRatio.
func LegRatio(p0, p1, p2 float64) (float64, error) {
	ref := math.Abs(p1 - p0)
	if ref == 0 || math.IsNaN(ref) {
		return 0, errors.ErrUndefinedRatio
	}
	r := math.Abs(p2-p1) / ref
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, errors.ErrUndefinedRatio
	}
	return r, nil
}

// ComputeRatios returns the four leg ratios of an XABCD window. XAD is measured
// directly as the AD distance relative to XA, not chained through the other legs.
func ComputeRatios(x, a, b, c, d float64) (models.LegRatios, error) {
	var (
		r   models.LegRatios
		err error
	)
	if r.XAB, err = LegRatio(x, a, b); err != nil {
		return models.LegRatios{}, err
	}
	if r.ABC, err = LegRatio(a, b, c); err != nil {
		return models.LegRatios{}, err
	}
	if r.BCD, err = LegRatio(b, c, d); err != nil {
		return models.LegRatios{}, err
	}
	if r.XAD, err = LegRatio(x, a, d); err != nil {
		return models.LegRatios{}, err
	}
	return r, nil
}

// windowRatios computes the ratios for five consecutive swing points.
func windowRatios(w []models.SwingPoint) (models.LegRatios, error) {
	return ComputeRatios(w[0].Price, w[1].Price, w[2].Price, w[3].Price, w[4].Price)
}

// legValue returns the ratio for one named leg.
func legValue(r models.LegRatios, leg Leg) float64 {
	switch leg {
	case LegXAB:
		return r.XAB
	case LegABC:
		return r.ABC
	case LegBCD:
		return r.BCD
	case LegXAD:
		return r.XAD
	}
	return math.NaN()
}
