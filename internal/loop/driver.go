package loop

import "pumpd/pkg/types"

// Driver is the capability set a pump hardware family must provide. Each
// actuation primitive is single-shot and asynchronous: the driver invokes
// the completion callback exactly once, from any goroutine, with either a
// dose record or a device-native error. The orchestrator depends only on
// this interface; transport and protocol live behind it.
type Driver interface {
	// Status returns the latest cached pump status. Drivers refresh it on
	// every device status callback; callers never block on the radio.
	Status() types.PumpStatus

	EnactTempBasal(rate float64, durationMinutes int, completion func(*types.DoseEntry, error))
	EnactBolus(units float64, completion func(*types.DoseEntry, error))
	CancelBolus(completion func(error))
	SuspendDelivery(completion func(error))
	ResumeDelivery(completion func(error))

	// ObserveBolusProgress registers cb for delivery progress callbacks
	// (0..1) and returns a detach func. The subscription is narrower than
	// the loop context so progress can update independent of a cycle.
	ObserveBolusProgress(cb func(progress float64)) (cancel func())
}
