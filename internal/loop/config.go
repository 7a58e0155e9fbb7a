package loop

import (
	"time"

	"pumpd/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultLoopInterval     = 5 * time.Minute
	defaultSuggestionExpiry = 10 * time.Minute
	defaultHistoryKeep      = 24 * time.Hour
	defaultGlucoseStale     = 12 * time.Minute
	defaultFlatWindow       = 45 * time.Minute
	defaultAutosensMaxAge   = 30 * time.Minute
	defaultBolusSettle      = 5 * time.Second

	// Spread below which the recent glucose series is considered
	// degenerate ("too flat" to trust), in mg/dL.
	flatSpreadMGDL = 2.0
	// Minimum readings inside the flatness window before the check applies.
	flatMinReadings = 4

	// Assumed remaining units when the pump omits a reservoir reading.
	reservoirSentinelUnits = 50.0
)

// Config encapsulates all tunables for Manager construction.
type Config struct {
	// LoopInterval is the heartbeat cadence.
	LoopInterval time.Duration
	// SuggestionExpiry bounds how old a suggestion's DeliverAt may be and
	// still be enacted. The boundary itself is fresh.
	SuggestionExpiry time.Duration
	// HistoryKeep bounds the cycle and glucose histories.
	HistoryKeep time.Duration
	// GlucoseStaleAfter is the CGM staleness window.
	GlucoseStaleAfter time.Duration
	// AutosensMaxAge is how long a cached sensitivity estimate stays valid.
	AutosensMaxAge time.Duration
	// BolusSettleDelay is the grace period before the final "no progress"
	// signal after a bolus completes or is cancelled.
	BolusSettleDelay time.Duration
	// InitialSettings seeds the store on first start only; persisted
	// settings always win afterwards.
	InitialSettings types.Settings
}

func (c Config) withDefaults() Config {
	if c.LoopInterval <= 0 {
		c.LoopInterval = defaultLoopInterval
	}
	if c.SuggestionExpiry <= 0 {
		c.SuggestionExpiry = defaultSuggestionExpiry
	}
	if c.HistoryKeep <= 0 {
		c.HistoryKeep = defaultHistoryKeep
	}
	if c.GlucoseStaleAfter <= 0 {
		c.GlucoseStaleAfter = defaultGlucoseStale
	}
	if c.AutosensMaxAge <= 0 {
		c.AutosensMaxAge = defaultAutosensMaxAge
	}
	if c.BolusSettleDelay <= 0 {
		c.BolusSettleDelay = defaultBolusSettle
	}
	return c
}
