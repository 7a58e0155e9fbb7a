package loop

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"pumpd/internal/store"
	"pumpd/pkg/types"
)

// Enactor applies the persisted suggestion to the pump: temp basal first,
// then bolus, with the safety gate re-checked before each step. A failed
// temp basal aborts the bolus. A failed bolus does NOT roll back an already
// successful temp basal; the partial outcome stands and the error reports
// the bolus alone.
type Enactor struct {
	store    *store.Store
	actuator *Actuator
	gate     *SafetyGate
	override *OverrideTracker
	driver   Driver
	expiry   time.Duration
	log      zerolog.Logger

	// onBolusFailure lets the orchestrator surface bolus failures
	// distinctly from generic loop failures.
	onBolusFailure func(error)
}

// NewEnactor builds a suggestion enactor.
func NewEnactor(st *store.Store, actuator *Actuator, gate *SafetyGate, override *OverrideTracker, driver Driver, expiry time.Duration, onBolusFailure func(error), log zerolog.Logger) *Enactor {
	if expiry <= 0 {
		expiry = defaultSuggestionExpiry
	}
	return &Enactor{
		store:          st,
		actuator:       actuator,
		gate:           gate,
		override:       override,
		driver:         driver,
		expiry:         expiry,
		log:            log,
		onBolusFailure: onBolusFailure,
	}
}

// Enact validates freshness and applies the persisted suggestion.
func (e *Enactor) Enact(ctx context.Context, now time.Time) error {
	sugg, err := e.store.Suggestion()
	if err != nil {
		return ErrDeviceSync("read suggestion: " + err.Error())
	}
	if sugg == nil {
		return ErrAps("no suggestion to enact")
	}
	// Boundary inclusive on the fresh side: age == expiry still enacts.
	if now.Sub(sugg.DeliverAt) > e.expiry {
		return ErrAps("expired")
	}
	if e.driver == nil {
		return ErrInvalidPumpState("not set")
	}
	if e.override.Active() {
		return ErrManualTemp("override active, enactment refused")
	}

	if sugg.WantsTempBasal() {
		if err := e.gate.Check(); err != nil {
			return err
		}
		if _, err := e.actuator.TempBasal(ctx, *sugg.Rate, *sugg.DurationMinutes); err != nil {
			return err
		}
		commanded := types.TempBasalState{
			Rate:            *sugg.Rate,
			DurationMinutes: *sugg.DurationMinutes,
			Kind:            types.TempBasalAbsolute,
			Timestamp:       now,
		}
		if err := e.store.SetTempBasal(commanded); err != nil {
			return ErrDeviceSync("persist temp basal: " + err.Error())
		}
	} else {
		e.log.Debug().Msg("no temp basal change needed")
	}

	if sugg.WantsBolus() {
		if err := e.gate.Check(); err != nil {
			e.notifyBolusFailure(err)
			return err
		}
		if _, err := e.actuator.Bolus(ctx, *sugg.BolusUnits); err != nil {
			e.notifyBolusFailure(err)
			return err
		}
	} else {
		e.log.Debug().Msg("no bolus needed")
	}
	return nil
}

func (e *Enactor) notifyBolusFailure(err error) {
	if e.onBolusFailure != nil {
		e.onBolusFailure(err)
	}
}
