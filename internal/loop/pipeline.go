package loop

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"pumpd/internal/store"
	"pumpd/pkg/types"
)

// Pipeline sequences profile build, sensitivity re-estimation, periodic
// autotune, and the decision-engine call. Every sub-step failure is the
// terminal result of the whole run; there are no internal retries.
type Pipeline struct {
	engine   Engine
	store    *store.Store
	driver   Driver
	actuator *Actuator
	settings func() types.Settings
	log      zerolog.Logger

	glucoseStaleAfter time.Duration
	flatWindow        time.Duration
	autosensMaxAge    time.Duration

	lastSensitivity *types.SensitivityEstimate
	lastAutotune    time.Time
}

// NewPipeline builds a decision pipeline. settings must return the current
// process-wide toggles; it is called once per run.
func NewPipeline(engine Engine, st *store.Store, driver Driver, actuator *Actuator, settings func() types.Settings, cfg Config, log zerolog.Logger) *Pipeline {
	cfg = cfg.withDefaults()
	return &Pipeline{
		engine:            engine,
		store:             st,
		driver:            driver,
		actuator:          actuator,
		settings:          settings,
		log:               log,
		glucoseStaleAfter: cfg.GlucoseStaleAfter,
		flatWindow:        defaultFlatWindow,
		autosensMaxAge:    cfg.AutosensMaxAge,
	}
}

// Run executes the pipeline at now with the reconciled temp basal. A nil
// suggestion with nil error means the engine had no recommendation.
func (p *Pipeline) Run(ctx context.Context, now time.Time, current types.TempBasalState) (*types.Suggestion, error) {
	if err := p.checkGlucose(now); err != nil {
		return nil, err
	}

	settings := p.settings()

	if _, err := p.engine.MakeProfile(ctx, settings.AutotuneEnabled); err != nil {
		return nil, ErrAps("make profile: " + err.Error())
	}

	if p.lastSensitivity == nil || now.Sub(p.lastSensitivity.EstimatedAt) >= p.autosensMaxAge {
		est, err := p.engine.EstimateSensitivity(ctx)
		if err != nil {
			return nil, ErrAps("estimate sensitivity: " + err.Error())
		}
		if est != nil {
			p.lastSensitivity = est
			p.log.Debug().Float64("ratio", est.Ratio).Msg("sensitivity re-estimated")
		}
	}

	if settings.AutotuneEnabled && p.autotuneDue(now) {
		res, err := p.engine.Autotune(ctx)
		if err != nil {
			return nil, ErrAps("autotune: " + err.Error())
		}
		p.lastAutotune = now
		if res != nil && !res.RanAt.IsZero() {
			p.lastAutotune = res.RanAt
		}
		p.log.Info().Time("ran_at", p.lastAutotune).Msg("autotune completed")
	}

	// A suspended pump with no temp basal running would starve delivery in
	// closed loop; resume first when the preference allows it. The decision
	// engine is only consulted if the resume lands.
	if current.Zero() && settings.ClosedLoop && settings.ResumeIfNoTemp &&
		p.driver != nil && p.driver.Status().Suspended {
		if err := p.actuator.Resume(ctx); err != nil {
			return nil, err
		}
		p.log.Info().Msg("delivery resumed before decision")
	}

	sugg, err := p.engine.DetermineBasal(ctx, current, now)
	if err != nil {
		return nil, ErrAps("determine basal: " + err.Error())
	}
	return sugg, nil
}

// autotuneDue reports whether the last autotune ran on a prior calendar day.
func (p *Pipeline) autotuneDue(now time.Time) bool {
	if p.lastAutotune.IsZero() {
		return true
	}
	ly, ld := p.lastAutotune.Year(), p.lastAutotune.YearDay()
	ny, nd := now.Year(), now.YearDay()
	return ly != ny || ld != nd
}

// checkGlucose enforces the CGM preconditions: data exists, the latest
// reading is fresh, and the short-term series is not degenerate.
func (p *Pipeline) checkGlucose(now time.Time) error {
	series, err := p.store.Glucose()
	if err != nil {
		return ErrDeviceSync("read glucose: " + err.Error())
	}
	if len(series) == 0 {
		return ErrGlucose("no glucose data")
	}
	latest := series[len(series)-1]
	if now.Sub(latest.Timestamp) > p.glucoseStaleAfter {
		return ErrGlucose("stale glucose data")
	}

	cutoff := now.Add(-p.flatWindow)
	var recent []float64
	for _, g := range series {
		if g.Timestamp.After(cutoff) {
			recent = append(recent, g.Value)
		}
	}
	if len(recent) >= flatMinReadings {
		min, max := recent[0], recent[0]
		for _, v := range recent[1:] {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		if max-min < flatSpreadMGDL {
			return ErrGlucose("glucose data too flat")
		}
	}
	return nil
}
