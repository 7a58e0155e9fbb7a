package loop

// SafetyGate validates pump preconditions immediately before an actuation.
// It is a pure read of the latest cached status; a pass at loop start does
// not authorize a later actuation in the same cycle, so every call site
// re-checks.
type SafetyGate struct {
	driver Driver
}

// NewSafetyGate returns a gate over the given driver. A nil driver means
// no pump is configured and every check fails.
func NewSafetyGate(driver Driver) *SafetyGate { return &SafetyGate{driver: driver} }

// Check returns nil when actuation is safe. Conditions are evaluated in
// order and the first failure wins.
func (g *SafetyGate) Check() error {
	if g == nil || g.driver == nil {
		return ErrInvalidPumpState("not set")
	}
	st := g.driver.Status()
	if st.Bolusing {
		return ErrInvalidPumpState("bolusing")
	}
	if st.Suspended {
		return ErrInvalidPumpState("suspended")
	}
	reservoir := reservoirSentinelUnits
	if st.ReservoirUnits != nil {
		reservoir = *st.ReservoirUnits
	}
	if reservoir < 0 {
		return ErrInvalidPumpState("reservoir empty")
	}
	return nil
}
