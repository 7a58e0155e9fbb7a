package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pumpd/internal/store"
	"pumpd/pkg/types"
)

// TriggerReason identifies what started a loop cycle.
type TriggerReason string

const (
	TriggerHeartbeat     TriggerReason = "heartbeat"
	TriggerStatusChange  TriggerReason = "status_change"
	TriggerGlucose       TriggerReason = "glucose"
	TriggerManual        TriggerReason = "manual"
	TriggerOverrideEnded TriggerReason = "override_ended"
)

// Reporter is the external reporting sink, notified on every loop
// completion and on announcement-driven state changes.
type Reporter interface {
	UploadStatus(ctx context.Context, st types.StatusResponse) error
}

// Options carries the Manager's collaborators.
type Options struct {
	Store *store.Store
	// Driver may be nil when no pump is configured; every actuation then
	// fails the safety gate.
	Driver   Driver
	Engine   Engine
	Reporter Reporter
	Logger   zerolog.Logger
}

// Manager is the loop orchestrator: single-flight guard, phase sequencing,
// completion bookkeeping. All cycle execution and announcement actuation is
// serialized on one worker goroutine; triggers arriving while a cycle runs
// are dropped, not queued.
type Manager struct {
	cfg      Config
	log      zerolog.Logger
	store    *store.Store
	driver   Driver
	engine   Engine
	reporter Reporter

	gate       *SafetyGate
	actuator   *Actuator
	reconciler *Reconciler
	pipeline   *Pipeline
	enactor    *Enactor
	override   *OverrideTracker

	running atomic.Bool
	started atomic.Bool

	triggerCh chan TriggerReason
	annCh     chan annRequest
	stopCh    chan struct{}
	done      chan struct{}

	mu           sync.RWMutex
	settings     types.Settings
	lastLoop     time.Time
	lastErr      string
	lastBolusErr string

	startTime time.Time
}

// New constructs a Manager and its sub-components, loading persisted
// settings (seeded from cfg.InitialSettings on first start).
func New(cfg Config, opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New("loop: store is required")
	}
	if opts.Engine == nil {
		return nil, errors.New("loop: engine is required")
	}
	cfg = cfg.withDefaults()

	settings, found, err := opts.Store.Settings()
	if err != nil {
		return nil, err
	}
	if !found {
		settings = cfg.InitialSettings
		if err := opts.Store.SetSettings(settings); err != nil {
			return nil, err
		}
	}

	m := &Manager{
		cfg:       cfg,
		log:       opts.Logger,
		store:     opts.Store,
		driver:    opts.Driver,
		engine:    opts.Engine,
		reporter:  opts.Reporter,
		settings:  settings,
		triggerCh: make(chan TriggerReason, 1),
		annCh:     make(chan annRequest),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
		startTime: time.Now(),
	}
	m.gate = NewSafetyGate(opts.Driver)
	m.actuator = NewActuator(opts.Driver, cfg.BolusSettleDelay, opts.Logger)
	m.reconciler = NewReconciler(opts.Store, opts.Driver)
	m.override = NewOverrideTracker(
		settings.OverrideActive,
		func(active bool) error {
			return m.updateSettings(func(s *types.Settings) { s.OverrideActive = active })
		},
		func() { m.Trigger(TriggerOverrideEnded) },
		opts.Logger,
	)
	m.pipeline = NewPipeline(opts.Engine, opts.Store, opts.Driver, m.actuator, m.Settings, cfg, opts.Logger)
	m.enactor = NewEnactor(opts.Store, m.actuator, m.gate, m.override, opts.Driver, cfg.SuggestionExpiry, m.noteBolusFailure, opts.Logger)
	return m, nil
}

// Start launches the worker goroutine with its heartbeat ticker.
func (m *Manager) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return errors.New("loop: already started")
	}
	go m.worker(ctx)
	return nil
}

// Stop halts the worker and waits for it to drain.
func (m *Manager) Stop() {
	if !m.started.Load() {
		return
	}
	select {
	case <-m.stopCh:
	default:
		close(m.stopCh)
	}
	<-m.done
}

func (m *Manager) worker(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.cfg.LoopInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.runCycle(ctx, TriggerHeartbeat)
		case reason := <-m.triggerCh:
			m.runCycle(ctx, reason)
		case req := <-m.annCh:
			req.reply <- m.handleAnnouncement(ctx, req.ann)
		}
	}
}

// Trigger requests a loop run. Returns false when the trigger was dropped
// because a cycle is already running or one is pending; there is no
// backlog, the next trigger re-attempts from idle.
func (m *Manager) Trigger(reason TriggerReason) bool {
	if m.running.Load() {
		m.log.Debug().Str("reason", string(reason)).Msg("trigger dropped: cycle running")
		return false
	}
	select {
	case m.triggerCh <- reason:
		return true
	default:
		m.log.Debug().Str("reason", string(reason)).Msg("trigger dropped: one pending")
		return false
	}
}

// HandlePumpStatusChange is called by the driver integration on every
// device status callback.
func (m *Manager) HandlePumpStatusChange() { m.Trigger(TriggerStatusChange) }

// HandleManualTempEvent records a pump-initiated manual temp basal start
// or stop.
func (m *Manager) HandleManualTempEvent(active bool) error { return m.override.SetActive(active) }

// runCycle is the single-flight entry. A concurrent entry is refused, not
// queued; the guard is an atomic compare-and-set.
func (m *Manager) runCycle(ctx context.Context, reason TriggerReason) {
	if !m.running.CompareAndSwap(false, true) {
		m.log.Debug().Str("reason", string(reason)).Msg("cycle refused: already running")
		return
	}
	defer m.running.Store(false)

	start := time.Now()
	rec := types.CycleRecord{ID: uuid.NewString(), StartedAt: start, Status: types.CycleStarting}
	m.log.Info().Str("cycle_id", rec.ID).Str("reason", string(reason)).Msg("loop cycle started")

	err := m.executeCycle(ctx, start)

	end := time.Now()
	rec.FinishedAt = &end
	mins := end.Sub(start).Minutes()
	rec.DurationMinutes = &mins

	m.mu.Lock()
	if err != nil {
		rec.Status = types.CycleFailure
		rec.Error = err.Error()
		m.lastErr = err.Error()
	} else {
		rec.Status = types.CycleSuccess
		m.lastErr = ""
		m.lastLoop = end
	}
	m.mu.Unlock()

	if aerr := m.store.AppendCycle(rec, end, m.cfg.HistoryKeep); aerr != nil {
		m.log.Error().Err(aerr).Str("cycle_id", rec.ID).Msg("append cycle record failed")
	}
	cyclesTotal.WithLabelValues(string(rec.Status)).Inc()
	cycleDuration.Observe(end.Sub(start).Seconds())

	if err != nil {
		m.log.Warn().Err(err).Str("cycle_id", rec.ID).Msg("loop cycle failed")
	} else {
		m.log.Info().Str("cycle_id", rec.ID).Float64("duration_min", mins).Msg("loop cycle succeeded")
	}
	m.uploadStatus(ctx)
}

// executeCycle runs the phases: reconcile → decide → (closed loop) enact.
func (m *Manager) executeCycle(ctx context.Context, now time.Time) error {
	current, err := m.reconciler.EffectiveTempBasal(now)
	if err != nil {
		return err
	}

	sugg, err := m.pipeline.Run(ctx, now, current)
	if err != nil {
		return err
	}
	if sugg == nil {
		return ErrAps("no suggestion issued")
	}
	if err := m.store.SetSuggestion(*sugg); err != nil {
		return ErrDeviceSync("persist suggestion: " + err.Error())
	}

	if !m.Settings().ClosedLoop {
		// Open loop: the suggestion is surfaced, never actuated.
		m.recordEnacted(*sugg, time.Now(), true)
		m.log.Info().Msg("open loop: suggestion recorded, no actuation")
		return nil
	}

	enactErr := m.enactor.Enact(ctx, time.Now())
	m.recordEnacted(*sugg, time.Now(), enactErr == nil)
	return enactErr
}

// recordEnacted writes the terminal enacted-suggestion record with a
// derived total-daily-dose snapshot.
func (m *Manager) recordEnacted(sugg types.Suggestion, at time.Time, received bool) {
	tdd := deriveTotalDailyDose(sugg)
	sugg.TotalDailyDose = &tdd
	en := types.EnactedSuggestion{Suggestion: sugg, EnactedAt: at, Received: received}
	if err := m.store.SetEnacted(en); err != nil {
		m.log.Error().Err(err).Msg("persist enacted suggestion failed")
	}
}

func deriveTotalDailyDose(s types.Suggestion) float64 {
	if s.TotalDailyDose != nil {
		return *s.TotalDailyDose
	}
	return s.Insulin.BasalUnits + s.Insulin.BolusUnits
}

// Settings returns the current process-wide toggles.
func (m *Manager) Settings() types.Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

func (m *Manager) updateSettings(mut func(*types.Settings)) error {
	m.mu.Lock()
	mut(&m.settings)
	st := m.settings
	m.mu.Unlock()
	return m.store.SetSettings(st)
}

func (m *Manager) noteBolusFailure(err error) {
	m.mu.Lock()
	m.lastBolusErr = err.Error()
	m.mu.Unlock()
	m.log.Warn().Err(err).Msg("bolus delivery failed")
}

func (m *Manager) uploadStatus(ctx context.Context) {
	if m.reporter == nil {
		return
	}
	upCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := m.reporter.UploadStatus(upCtx, m.Status()); err != nil {
		m.log.Warn().Err(err).Msg("status upload failed")
	}
}

// AddGlucose appends a CGM reading and nudges the loop.
func (m *Manager) AddGlucose(r types.GlucoseReading) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	if err := m.store.AppendGlucose(r, time.Now(), m.cfg.HistoryKeep); err != nil {
		return ErrDeviceSync("append glucose: " + err.Error())
	}
	m.Trigger(TriggerGlucose)
	return nil
}

// Cycles returns the bounded cycle history.
func (m *Manager) Cycles() ([]types.CycleRecord, error) { return m.store.Cycles() }

// TriggerLoop requests a manual loop run; false when dropped.
func (m *Manager) TriggerLoop() bool { return m.Trigger(TriggerManual) }

// Ready reports whether the worker is serving.
func (m *Manager) Ready() bool { return m.started.Load() }
