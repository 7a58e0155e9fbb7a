package loop

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

// OverrideTracker observes pump-initiated manual temp basal events. While
// the override is active, orchestrated looping and temp-basal announcements
// are refused. The flag persists across restarts.
type OverrideTracker struct {
	active  atomic.Bool
	persist func(active bool) error
	// onResume force-triggers a loop run: the override may have left
	// actuator state stale relative to the algorithm's view.
	onResume func()
	log      zerolog.Logger
}

// NewOverrideTracker builds a tracker. persist stores the flag; onResume is
// invoked on every active→inactive transition.
func NewOverrideTracker(initial bool, persist func(bool) error, onResume func(), log zerolog.Logger) *OverrideTracker {
	t := &OverrideTracker{persist: persist, onResume: onResume, log: log}
	t.active.Store(initial)
	return t
}

// Active reports whether a manual temp basal currently suppresses looping.
func (t *OverrideTracker) Active() bool { return t.active.Load() }

// SetActive records a manual temp basal start or stop from the device.
func (t *OverrideTracker) SetActive(active bool) error {
	was := t.active.Swap(active)
	if was == active {
		return nil
	}
	t.log.Info().Bool("active", active).Msg("manual override changed")
	if t.persist != nil {
		if err := t.persist(active); err != nil {
			return ErrDeviceSync("persist override flag: " + err.Error())
		}
	}
	if was && !active && t.onResume != nil {
		t.onResume()
	}
	return nil
}
