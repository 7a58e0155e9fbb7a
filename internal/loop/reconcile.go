package loop

import (
	"time"

	"pumpd/internal/store"
	"pumpd/pkg/types"
)

// Reconciler derives the effective temp basal from the last persisted
// command and live device status. The two can diverge, e.g. after a manual
// override or a pump-initiated suspension, and the decision engine needs
// the temp basal that is actually running, not the last one commanded.
type Reconciler struct {
	store  *store.Store
	driver Driver
}

// NewReconciler returns a reconciler over the given store and driver. The
// driver may be nil when no pump is configured.
func NewReconciler(st *store.Store, driver Driver) *Reconciler {
	return &Reconciler{store: st, driver: driver}
}

// EffectiveTempBasal resolves the currently-running temp basal at now.
// A temp basal the pump itself reports overrides any persisted record;
// otherwise the persisted record is decayed by elapsed minutes. Duration
// never goes negative.
func (r *Reconciler) EffectiveTempBasal(now time.Time) (types.TempBasalState, error) {
	zero := types.TempBasalState{Kind: types.TempBasalAbsolute, Timestamp: now}

	if r.driver != nil {
		if active := r.driver.Status().TempBasal; active != nil {
			remaining := int(active.EndsAt.Sub(now).Minutes())
			if remaining < 0 {
				remaining = 0
			}
			return types.TempBasalState{
				Rate:            active.Rate,
				DurationMinutes: remaining,
				Kind:            types.TempBasalAbsolute,
				Timestamp:       now,
			}, nil
		}
	}

	last, err := r.store.TempBasal()
	if err != nil {
		return zero, ErrDeviceSync("read temp basal: " + err.Error())
	}
	if last == nil {
		return zero, nil
	}
	elapsed := int(now.Sub(last.Timestamp).Minutes())
	remaining := last.DurationMinutes - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return types.TempBasalState{
		Rate:            last.Rate,
		DurationMinutes: remaining,
		Kind:            last.Kind,
		Timestamp:       now,
	}, nil
}
