package loop

import (
	"testing"

	"pumpd/pkg/types"
)

func TestSafetyGateNoDriver(t *testing.T) {
	g := NewSafetyGate(nil)
	err := g.Check()
	if !IsInvalidPumpState(err) {
		t.Fatalf("expected invalid pump state, got %v", err)
	}
}

func TestSafetyGatePassesIdlePump(t *testing.T) {
	drv := &fakeDriver{}
	drv.setStatus(types.PumpStatus{ReservoirUnits: floatPtr(120)})
	if err := NewSafetyGate(drv).Check(); err != nil {
		t.Fatalf("expected pass, got %v", err)
	}
}

func TestSafetyGateRefusesBolusing(t *testing.T) {
	drv := &fakeDriver{}
	drv.setStatus(types.PumpStatus{Bolusing: true})
	err := NewSafetyGate(drv).Check()
	if !IsInvalidPumpState(err) {
		t.Fatalf("expected invalid pump state, got %v", err)
	}
}

func TestSafetyGateRefusesSuspended(t *testing.T) {
	drv := &fakeDriver{}
	drv.setStatus(types.PumpStatus{Suspended: true})
	err := NewSafetyGate(drv).Check()
	if !IsInvalidPumpState(err) {
		t.Fatalf("expected invalid pump state, got %v", err)
	}
}

func TestSafetyGateRefusesEmptyReservoir(t *testing.T) {
	drv := &fakeDriver{}
	drv.setStatus(types.PumpStatus{ReservoirUnits: floatPtr(-1)})
	err := NewSafetyGate(drv).Check()
	if !IsInvalidPumpState(err) {
		t.Fatalf("expected invalid pump state, got %v", err)
	}
}

func TestSafetyGateMissingReservoirPasses(t *testing.T) {
	// No reservoir reading falls back to the sentinel, which passes.
	drv := &fakeDriver{}
	drv.setStatus(types.PumpStatus{})
	if err := NewSafetyGate(drv).Check(); err != nil {
		t.Fatalf("expected pass with sentinel reservoir, got %v", err)
	}
}

func TestSafetyGateOrderBolusingBeforeSuspended(t *testing.T) {
	drv := &fakeDriver{}
	drv.setStatus(types.PumpStatus{Bolusing: true, Suspended: true})
	err := NewSafetyGate(drv).Check()
	if err == nil || err.Error() != "invalid pump state: bolusing" {
		t.Fatalf("expected bolusing refusal first, got %v", err)
	}
}
