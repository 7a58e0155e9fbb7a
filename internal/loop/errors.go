package loop

import "errors"

// The loop core maps every failure into a small taxonomy so callers can
// branch on kind without knowing device internals.

// pumpError wraps a device-native actuation failure.
type pumpError struct{ underlying error }

func (e pumpError) Error() string { return "pump error: " + e.underlying.Error() }
func (e pumpError) Unwrap() error { return e.underlying }

// ErrPump wraps an underlying device error into the taxonomy.
func ErrPump(underlying error) error {
	if underlying == nil {
		return nil
	}
	return pumpError{underlying: underlying}
}

// IsPumpError reports whether err is a device actuation failure.
func IsPumpError(err error) bool {
	var pe pumpError
	return errors.As(err, &pe)
}

// invalidPumpStateError signals a safety-gate refusal.
type invalidPumpStateError struct{ reason string }

func (e invalidPumpStateError) Error() string { return "invalid pump state: " + e.reason }

// ErrInvalidPumpState constructs a safety-gate refusal.
func ErrInvalidPumpState(reason string) error { return invalidPumpStateError{reason: reason} }

// IsInvalidPumpState reports whether err is a safety-gate refusal.
func IsInvalidPumpState(err error) bool {
	var e invalidPumpStateError
	return errors.As(err, &e)
}

// glucoseError signals missing, stale, or degenerate CGM data.
type glucoseError struct{ reason string }

func (e glucoseError) Error() string { return "glucose error: " + e.reason }

// ErrGlucose constructs a glucose precondition failure.
func ErrGlucose(reason string) error { return glucoseError{reason: reason} }

// IsGlucoseError reports whether err is a glucose precondition failure.
func IsGlucoseError(err error) bool {
	var e glucoseError
	return errors.As(err, &e)
}

// apsError signals a pipeline- or enactment-level failure.
type apsError struct{ reason string }

func (e apsError) Error() string { return "aps error: " + e.reason }

// ErrAps constructs a pipeline/enactment failure.
func ErrAps(reason string) error { return apsError{reason: reason} }

// IsApsError reports whether err is a pipeline/enactment failure.
func IsApsError(err error) bool {
	var e apsError
	return errors.As(err, &e)
}

// deviceSyncError signals a persistence or state-sync failure.
type deviceSyncError struct{ reason string }

func (e deviceSyncError) Error() string { return "device sync error: " + e.reason }

// ErrDeviceSync constructs a persistence/state-sync failure.
func ErrDeviceSync(reason string) error { return deviceSyncError{reason: reason} }

// IsDeviceSyncError reports whether err is a persistence/state-sync failure.
func IsDeviceSyncError(err error) bool {
	var e deviceSyncError
	return errors.As(err, &e)
}

// manualTempError signals a refusal because a pump-initiated manual temp
// basal is active; looping is categorically incompatible with it.
type manualTempError struct{ reason string }

func (e manualTempError) Error() string { return "manual temp basal: " + e.reason }

// ErrManualTemp constructs a manual-override refusal.
func ErrManualTemp(reason string) error { return manualTempError{reason: reason} }

// IsManualTempError reports whether err is a manual-override refusal.
func IsManualTempError(err error) bool {
	var e manualTempError
	return errors.As(err, &e)
}

// ErrUncertainDelivery is surfaced by drivers when a bolus command may or
// may not have reached the pump. Announcement handling suppresses it from
// user-visible reporting.
var ErrUncertainDelivery = errors.New("uncertain delivery")

// IsUncertainDelivery reports whether err wraps an uncertain-delivery
// device outcome.
func IsUncertainDelivery(err error) bool { return errors.Is(err, ErrUncertainDelivery) }
