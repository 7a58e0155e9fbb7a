package loop

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pumpd/pkg/types"
)

// Actuator is a uniform wrapper around the driver's callback-based
// primitives. Each call blocks until the device completes or ctx is done,
// and every device-native failure comes back as a pump error. The actuator
// never retries; retry policy belongs to the caller.
type Actuator struct {
	driver Driver
	log    zerolog.Logger

	settleDelay time.Duration

	mu       sync.Mutex
	progress *float64
	detach   func()
}

// NewActuator wraps the given driver. A nil driver yields "not set"
// refusals on every actuation.
func NewActuator(driver Driver, settleDelay time.Duration, log zerolog.Logger) *Actuator {
	if settleDelay <= 0 {
		settleDelay = defaultBolusSettle
	}
	return &Actuator{driver: driver, settleDelay: settleDelay, log: log}
}

type doseResult struct {
	dose *types.DoseEntry
	err  error
}

func (a *Actuator) await(ctx context.Context, ch <-chan doseResult, kind string) (*types.DoseEntry, error) {
	select {
	case res := <-ch:
		observeActuation(kind, res.err)
		if res.err != nil {
			return nil, ErrPump(res.err)
		}
		return res.dose, nil
	case <-ctx.Done():
		observeActuation(kind, ctx.Err())
		return nil, ctx.Err()
	}
}

// TempBasal commands an absolute temp basal on the pump.
func (a *Actuator) TempBasal(ctx context.Context, rate float64, durationMinutes int) (*types.DoseEntry, error) {
	if a.driver == nil {
		return nil, ErrInvalidPumpState("not set")
	}
	ch := make(chan doseResult, 1)
	a.driver.EnactTempBasal(rate, durationMinutes, func(d *types.DoseEntry, err error) {
		ch <- doseResult{dose: d, err: err}
	})
	dose, err := a.await(ctx, ch, "temp_basal")
	if err != nil {
		a.log.Warn().Err(err).Float64("rate", rate).Int("duration_min", durationMinutes).Msg("temp basal failed")
		return nil, err
	}
	a.log.Info().Float64("rate", rate).Int("duration_min", durationMinutes).Msg("temp basal enacted")
	return dose, nil
}

// Bolus commands a one-time dose. On success it emits a 0%-progress signal
// and observes device progress callbacks until completion or cancellation.
func (a *Actuator) Bolus(ctx context.Context, units float64) (*types.DoseEntry, error) {
	if a.driver == nil {
		return nil, ErrInvalidPumpState("not set")
	}
	ch := make(chan doseResult, 1)
	a.driver.EnactBolus(units, func(d *types.DoseEntry, err error) {
		ch <- doseResult{dose: d, err: err}
	})
	dose, err := a.await(ctx, ch, "bolus")
	if err != nil {
		a.log.Warn().Err(err).Float64("units", units).Msg("bolus failed")
		return nil, err
	}
	a.log.Info().Float64("units", units).Msg("bolus enacted")
	a.beginBolusObservation()
	return dose, nil
}

// CancelBolus aborts an in-flight bolus and detaches progress observation.
func (a *Actuator) CancelBolus(ctx context.Context) error {
	if a.driver == nil {
		return ErrInvalidPumpState("not set")
	}
	ch := make(chan doseResult, 1)
	a.driver.CancelBolus(func(err error) { ch <- doseResult{err: err} })
	if _, err := a.await(ctx, ch, "cancel_bolus"); err != nil {
		return err
	}
	a.endBolusObservation()
	return nil
}

// Suspend halts insulin delivery.
func (a *Actuator) Suspend(ctx context.Context) error {
	if a.driver == nil {
		return ErrInvalidPumpState("not set")
	}
	ch := make(chan doseResult, 1)
	a.driver.SuspendDelivery(func(err error) { ch <- doseResult{err: err} })
	_, err := a.await(ctx, ch, "suspend")
	return err
}

// Resume restarts insulin delivery.
func (a *Actuator) Resume(ctx context.Context) error {
	if a.driver == nil {
		return ErrInvalidPumpState("not set")
	}
	ch := make(chan doseResult, 1)
	a.driver.ResumeDelivery(func(err error) { ch <- doseResult{err: err} })
	_, err := a.await(ctx, ch, "resume")
	return err
}

// BolusProgress returns delivery progress in 0..1, or nil when no bolus is
// being observed.
func (a *Actuator) BolusProgress() *float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.progress == nil {
		return nil
	}
	v := *a.progress
	return &v
}

func (a *Actuator) setProgress(v float64) {
	a.mu.Lock()
	a.progress = &v
	a.mu.Unlock()
	bolusProgressGauge.Set(v)
}

func (a *Actuator) clearProgress() {
	a.mu.Lock()
	a.progress = nil
	a.mu.Unlock()
	bolusProgressGauge.Set(0)
}

func (a *Actuator) beginBolusObservation() {
	a.setProgress(0)
	cancel := a.driver.ObserveBolusProgress(func(p float64) {
		a.setProgress(p)
		if p >= 1 {
			a.endBolusObservation()
		}
	})
	a.mu.Lock()
	prev := a.detach
	a.detach = cancel
	a.mu.Unlock()
	if prev != nil {
		prev()
	}
}

// endBolusObservation detaches the progress observer and, after a short
// grace delay to let the device settle, emits the final "no progress"
// signal.
func (a *Actuator) endBolusObservation() {
	a.mu.Lock()
	detach := a.detach
	a.detach = nil
	a.mu.Unlock()
	if detach == nil {
		return
	}
	detach()
	time.AfterFunc(a.settleDelay, a.clearProgress)
}
