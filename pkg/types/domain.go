package types

import "time"

// CycleStatus is the lifecycle state of a single loop cycle.
type CycleStatus string

const (
	CycleStarting CycleStatus = "starting"
	CycleSuccess  CycleStatus = "success"
	CycleFailure  CycleStatus = "failure"
)

// CycleRecord captures one loop iteration. It is created when the cycle
// starts and closed exactly once when the cycle reaches a terminal state.
type CycleRecord struct {
	ID              string      `json:"id"`
	StartedAt       time.Time   `json:"started_at"`
	FinishedAt      *time.Time  `json:"finished_at,omitempty"`
	DurationMinutes *float64    `json:"duration_minutes,omitempty"`
	Status          CycleStatus `json:"status"`
	// Error holds the failure reason when Status is "failure".
	Error string `json:"error,omitempty"`
}

// Closed reports whether the record has reached a terminal state.
func (r CycleRecord) Closed() bool { return r.FinishedAt != nil }

// TempBasalKind distinguishes temp basal variants. Only absolute-rate
// temp basals are commanded by this daemon.
type TempBasalKind string

const TempBasalAbsolute TempBasalKind = "absolute"

// TempBasalState is the last commanded temp basal, or the reconciled
// effective state derived from it and live pump status.
type TempBasalState struct {
	// Rate in insulin units per hour.
	Rate            float64       `json:"rate"`
	DurationMinutes int           `json:"duration_minutes"`
	Kind            TempBasalKind `json:"kind"`
	Timestamp       time.Time     `json:"timestamp"`
}

// Zero reports whether no temp basal is in effect.
func (t TempBasalState) Zero() bool { return t.DurationMinutes <= 0 }

// InsulinBreakdown splits delivered insulin into basal and bolus parts.
type InsulinBreakdown struct {
	BasalUnits float64 `json:"basal_units"`
	BolusUnits float64 `json:"bolus_units"`
}

// Suggestion is the decision engine's recommendation. Nil pointer fields
// mean "no change recommended" for that lever.
type Suggestion struct {
	Rate            *float64         `json:"rate,omitempty"`
	DurationMinutes *int             `json:"duration_minutes,omitempty"`
	BolusUnits      *float64         `json:"bolus_units,omitempty"`
	TotalDailyDose  *float64         `json:"total_daily_dose,omitempty"`
	DeliverAt       time.Time        `json:"deliver_at"`
	Insulin         InsulinBreakdown `json:"insulin"`
	Reason          string           `json:"reason,omitempty"`
}

// WantsTempBasal reports whether the suggestion carries a temp basal change.
func (s Suggestion) WantsTempBasal() bool { return s.Rate != nil && s.DurationMinutes != nil }

// WantsBolus reports whether the suggestion carries a bolus.
func (s Suggestion) WantsBolus() bool { return s.BolusUnits != nil && *s.BolusUnits > 0 }

// EnactedSuggestion is the terminal record of a suggestion that was acted
// upon (or acknowledged without actuation in open-loop mode).
type EnactedSuggestion struct {
	Suggestion
	EnactedAt time.Time `json:"enacted_at"`
	Received  bool      `json:"received"`
}

// ActiveTempBasal is a temp basal the pump itself reports as running.
type ActiveTempBasal struct {
	Rate   float64   `json:"rate"`
	EndsAt time.Time `json:"ends_at"`
}

// PumpStatus is a read-only projection of live device state, refreshed on
// every device status callback.
type PumpStatus struct {
	Bolusing       bool             `json:"bolusing"`
	Suspended      bool             `json:"suspended"`
	BatteryPercent *int             `json:"battery_percent,omitempty"`
	ReservoirUnits *float64         `json:"reservoir_units,omitempty"`
	TempBasal      *ActiveTempBasal `json:"temp_basal,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
}

// DoseEntry is the dose record a pump may return from an actuation.
type DoseEntry struct {
	Units           float64   `json:"units,omitempty"`
	Rate            float64   `json:"rate,omitempty"`
	DurationMinutes int       `json:"duration_minutes,omitempty"`
	At              time.Time `json:"at"`
}

// GlucoseReading is a single CGM sample in mg/dL.
type GlucoseReading struct {
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// AnnouncementKind enumerates remote/manual command variants.
type AnnouncementKind string

const (
	AnnounceBolus     AnnouncementKind = "bolus"
	AnnouncePump      AnnouncementKind = "pump"
	AnnounceLooping   AnnouncementKind = "looping"
	AnnounceTempBasal AnnouncementKind = "tempbasal"
)

// PumpAction is the action requested by a "pump" announcement.
type PumpAction string

const (
	PumpSuspend PumpAction = "suspend"
	PumpResume  PumpAction = "resume"
)

// Announcement is an externally supplied manual command. It is consumed
// once and marked enacted on success.
type Announcement struct {
	ID   string           `json:"id"`
	Kind AnnouncementKind `json:"kind"`
	// BolusUnits applies to kind "bolus".
	BolusUnits float64 `json:"bolus_units,omitempty"`
	// Action applies to kind "pump".
	Action PumpAction `json:"action,omitempty"`
	// Enabled applies to kind "looping" (closed loop on/off).
	Enabled bool `json:"enabled,omitempty"`
	// Rate and DurationMinutes apply to kind "tempbasal".
	Rate            float64    `json:"rate,omitempty"`
	DurationMinutes int        `json:"duration_minutes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	EnactedAt       *time.Time `json:"enacted_at,omitempty"`
}

// Settings are the process-wide persisted toggles, loaded at start and
// persisted on change.
type Settings struct {
	ClosedLoop      bool `json:"closed_loop"`
	ResumeIfNoTemp  bool `json:"resume_if_no_temp"`
	AutotuneEnabled bool `json:"autotune_enabled"`
	// OverrideActive records a pump-initiated manual temp basal; it
	// survives restarts so looping stays suppressed.
	OverrideActive bool `json:"override_active"`
}

// Profile is the materialized therapy profile handed to the decision engine.
type Profile struct {
	BasalRateUnitsPerHour  float64   `json:"basal_rate_units_per_hour"`
	SensitivityMGDLPerUnit float64   `json:"sensitivity_mgdl_per_unit"`
	CarbRatioGramsPerUnit  float64   `json:"carb_ratio_grams_per_unit"`
	BuiltAt                time.Time `json:"built_at"`
	Autotuned              bool      `json:"autotuned"`
}

// SensitivityEstimate is the cached autosens output.
type SensitivityEstimate struct {
	Ratio       float64   `json:"ratio"`
	EstimatedAt time.Time `json:"estimated_at"`
}

// AutotuneResult marks a completed autotune run.
type AutotuneResult struct {
	RanAt time.Time `json:"ran_at"`
}
