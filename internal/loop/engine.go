package loop

import (
	"context"
	"time"

	"pumpd/pkg/types"
)

// Engine is the dosing decision engine: pure, possibly slow, fallible
// functions over glucose/carb/insulin history. The loop core never
// computes a recommendation itself; it only decides whether and how to
// request and apply one.
type Engine interface {
	// MakeProfile materializes the therapy profile, optionally applying
	// autotune adjustments.
	MakeProfile(ctx context.Context, useAutotune bool) (*types.Profile, error)
	// EstimateSensitivity re-runs the autosens estimate.
	EstimateSensitivity(ctx context.Context) (*types.SensitivityEstimate, error)
	// Autotune runs the daily parameter recalibration.
	Autotune(ctx context.Context) (*types.AutotuneResult, error)
	// DetermineBasal computes a suggestion from the reconciled temp basal
	// and current time. A nil suggestion with nil error means "no
	// recommendation" and is a valid outcome.
	DetermineBasal(ctx context.Context, current types.TempBasalState, now time.Time) (*types.Suggestion, error)
}
