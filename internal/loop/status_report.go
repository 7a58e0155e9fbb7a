package loop

import (
	"time"

	"pumpd/pkg/types"
)

// Status assembles the live snapshot served by the HTTP API and pushed to
// the reporting sink.
func (m *Manager) Status() types.StatusResponse {
	now := time.Now()

	m.mu.RLock()
	settings := m.settings
	lastLoop := m.lastLoop
	lastErr := m.lastErr
	lastBolusErr := m.lastBolusErr
	m.mu.RUnlock()

	resp := types.StatusResponse{
		Looping:        m.running.Load(),
		ClosedLoop:     settings.ClosedLoop,
		OverrideActive: m.override.Active(),
		LastError:      lastErr,
		LastBolusError: lastBolusErr,
		BolusProgress:  m.actuator.BolusProgress(),
		UptimeSeconds:  int64(now.Sub(m.startTime).Seconds()),
		ServerTimeUnix: now.Unix(),
	}
	if !lastLoop.IsZero() {
		resp.LastLoopUnix = lastLoop.Unix()
	}
	if tb, err := m.reconciler.EffectiveTempBasal(now); err == nil && !tb.Zero() {
		resp.TempBasal = &tb
	}
	if m.driver != nil {
		ps := m.driver.Status()
		resp.Pump = &ps
	}
	return resp
}
