package types

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// True while a loop cycle is running.
	// example: false
	Looping bool `json:"looping" example:"false"`
	// Whether suggestions are auto-enacted.
	// example: true
	ClosedLoop bool `json:"closed_loop" example:"true"`
	// True while a pump-initiated manual temp basal suppresses looping.
	// example: false
	OverrideActive bool `json:"override_active" example:"false"`
	// Unix seconds of the last successful loop cycle, 0 if none yet.
	// example: 1700000000
	LastLoopUnix int64 `json:"last_loop_unix,omitempty" example:"1700000000"`
	// Last cycle error, empty after a successful cycle.
	LastError string `json:"last_error,omitempty"`
	// Last bolus delivery error; surfaced separately so UIs can show an
	// explicit bolus-failed affordance.
	LastBolusError string `json:"last_bolus_error,omitempty"`
	// Bolus delivery progress in 0..1; absent when no bolus is in flight.
	BolusProgress *float64 `json:"bolus_progress,omitempty"`
	// Reconciled effective temp basal at response time.
	TempBasal *TempBasalState `json:"temp_basal,omitempty"`
	// Latest cached pump status, if a pump is configured.
	Pump *PumpStatus `json:"pump,omitempty"`
	// Uptime of the daemon in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

// CyclesResponse wraps the bounded loop cycle history for GET /cycles.
type CyclesResponse struct {
	Cycles []CycleRecord `json:"cycles"`
}

// TriggerResponse is returned by POST /loop.
type TriggerResponse struct {
	// False when the trigger was dropped because a cycle was running.
	// example: true
	Started bool `json:"started" example:"true"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}
