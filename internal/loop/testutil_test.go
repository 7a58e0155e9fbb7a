package loop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pumpd/internal/store"
	"pumpd/pkg/types"
)

type tempCall struct {
	rate     float64
	duration int
}

// fakeDriver is a scriptable pump: completions fire synchronously with the
// configured error, successful suspend/resume flip the cached status.
type fakeDriver struct {
	mu     sync.Mutex
	status types.PumpStatus

	tempErr    error
	bolusErr   error
	cancelErr  error
	suspendErr error
	resumeErr  error

	tempCalls  []tempCall
	bolusCalls []float64
	cancels    int
	suspends   int
	resumes    int

	progressCB func(float64)
	detaches   int
}

func (d *fakeDriver) Status() types.PumpStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *fakeDriver) setStatus(st types.PumpStatus) {
	d.mu.Lock()
	d.status = st
	d.mu.Unlock()
}

func (d *fakeDriver) EnactTempBasal(rate float64, durationMinutes int, completion func(*types.DoseEntry, error)) {
	d.mu.Lock()
	d.tempCalls = append(d.tempCalls, tempCall{rate: rate, duration: durationMinutes})
	err := d.tempErr
	d.mu.Unlock()
	if err != nil {
		completion(nil, err)
		return
	}
	completion(&types.DoseEntry{Rate: rate, DurationMinutes: durationMinutes, At: time.Now()}, nil)
}

func (d *fakeDriver) EnactBolus(units float64, completion func(*types.DoseEntry, error)) {
	d.mu.Lock()
	d.bolusCalls = append(d.bolusCalls, units)
	err := d.bolusErr
	d.mu.Unlock()
	if err != nil {
		completion(nil, err)
		return
	}
	completion(&types.DoseEntry{Units: units, At: time.Now()}, nil)
}

func (d *fakeDriver) CancelBolus(completion func(error)) {
	d.mu.Lock()
	d.cancels++
	err := d.cancelErr
	d.mu.Unlock()
	completion(err)
}

func (d *fakeDriver) SuspendDelivery(completion func(error)) {
	d.mu.Lock()
	d.suspends++
	err := d.suspendErr
	if err == nil {
		d.status.Suspended = true
	}
	d.mu.Unlock()
	completion(err)
}

func (d *fakeDriver) ResumeDelivery(completion func(error)) {
	d.mu.Lock()
	d.resumes++
	err := d.resumeErr
	if err == nil {
		d.status.Suspended = false
	}
	d.mu.Unlock()
	completion(err)
}

func (d *fakeDriver) ObserveBolusProgress(cb func(float64)) (cancel func()) {
	d.mu.Lock()
	d.progressCB = cb
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		d.progressCB = nil
		d.detaches++
		d.mu.Unlock()
	}
}

func (d *fakeDriver) emitProgress(p float64) {
	d.mu.Lock()
	cb := d.progressCB
	d.mu.Unlock()
	if cb != nil {
		cb(p)
	}
}

func (d *fakeDriver) tempCallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tempCalls)
}

func (d *fakeDriver) bolusCallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.bolusCalls)
}

// fakeEngine scripts the decision engine and counts calls.
type fakeEngine struct {
	mu sync.Mutex

	profileErr   error
	sensitivity  *types.SensitivityEstimate
	sensErr      error
	autotuneErr  error
	determineErr error
	suggestion   *types.Suggestion

	profileCalls   int
	sensCalls      int
	autotuneCalls  int
	determineCalls int
	lastCurrent    types.TempBasalState
}

func (e *fakeEngine) MakeProfile(_ context.Context, _ bool) (*types.Profile, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profileCalls++
	if e.profileErr != nil {
		return nil, e.profileErr
	}
	return &types.Profile{BasalRateUnitsPerHour: 1.0, BuiltAt: time.Now()}, nil
}

func (e *fakeEngine) EstimateSensitivity(_ context.Context) (*types.SensitivityEstimate, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sensCalls++
	if e.sensErr != nil {
		return nil, e.sensErr
	}
	if e.sensitivity != nil {
		return e.sensitivity, nil
	}
	return &types.SensitivityEstimate{Ratio: 1.0, EstimatedAt: time.Now()}, nil
}

func (e *fakeEngine) Autotune(_ context.Context) (*types.AutotuneResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.autotuneCalls++
	if e.autotuneErr != nil {
		return nil, e.autotuneErr
	}
	return &types.AutotuneResult{RanAt: time.Now()}, nil
}

func (e *fakeEngine) DetermineBasal(_ context.Context, current types.TempBasalState, _ time.Time) (*types.Suggestion, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.determineCalls++
	e.lastCurrent = current
	if e.determineErr != nil {
		return nil, e.determineErr
	}
	return e.suggestion, nil
}

func (e *fakeEngine) calls() (profile, sens, autotune, determine int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.profileCalls, e.sensCalls, e.autotuneCalls, e.determineCalls
}

// fakeReporter records uploads.
type fakeReporter struct {
	mu      sync.Mutex
	uploads []types.StatusResponse
	err     error
}

func (r *fakeReporter) UploadStatus(_ context.Context, st types.StatusResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads = append(r.uploads, st)
	return r.err
}

func (r *fakeReporter) uploadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.uploads)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testLogger() zerolog.Logger { return zerolog.Nop() }

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

// freshGlucose seeds a usable CGM series: recent, rising, not flat.
func freshGlucose(t *testing.T, st *store.Store, now time.Time) {
	t.Helper()
	for i := 0; i < 6; i++ {
		r := types.GlucoseReading{
			Value:     100 + float64(i)*5,
			Timestamp: now.Add(-time.Duration(5-i) * 5 * time.Minute),
		}
		if err := st.AppendGlucose(r, now, defaultHistoryKeep); err != nil {
			t.Fatalf("seed glucose: %v", err)
		}
	}
}

// basalSuggestion is a plain temp-basal-only suggestion delivered at now.
func basalSuggestion(now time.Time) *types.Suggestion {
	return &types.Suggestion{
		Rate:            floatPtr(1.5),
		DurationMinutes: intPtr(30),
		DeliverAt:       now,
		Insulin:         types.InsulinBreakdown{BasalUnits: 12.5, BolusUnits: 4.0},
		Reason:          "above target",
	}
}

func newTestManager(t *testing.T, drv Driver, eng Engine, rep Reporter, settings types.Settings) *Manager {
	t.Helper()
	st := newTestStore(t)
	m, err := New(Config{InitialSettings: settings}, Options{
		Store:    st,
		Driver:   drv,
		Engine:   eng,
		Reporter: rep,
		Logger:   testLogger(),
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}
