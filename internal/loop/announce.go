package loop

import (
	"context"
	"time"

	"github.com/google/uuid"

	"pumpd/pkg/types"
)

type annRequest struct {
	ann   types.Announcement
	reply chan error
}

// Announce persists a remote command and hands it to the worker for
// serialized actuation. It blocks until the worker finishes the command or
// ctx is done. The persisted record survives a crash before actuation and
// shows up in PendingAnnouncements on the next start.
func (m *Manager) Announce(ctx context.Context, a types.Announcement) error {
	switch a.Kind {
	case types.AnnounceBolus, types.AnnouncePump, types.AnnounceLooping, types.AnnounceTempBasal:
	default:
		return ErrAps("unknown announcement kind: " + string(a.Kind))
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if err := m.store.SaveAnnouncement(a); err != nil {
		return ErrDeviceSync("save announcement: " + err.Error())
	}

	req := annRequest{ann: a, reply: make(chan error, 1)}
	select {
	case m.annCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stopCh:
		return ErrDeviceSync("loop worker stopped")
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleAnnouncement actuates one remote command on the worker goroutine.
// On success the record is marked enacted and a status upload follows.
func (m *Manager) handleAnnouncement(ctx context.Context, a types.Announcement) error {
	m.log.Info().Str("announcement_id", a.ID).Str("kind", string(a.Kind)).Msg("handling announcement")

	var err error
	uncertain := false
	switch a.Kind {
	case types.AnnounceBolus:
		uncertain, err = m.announceBolus(ctx, a)
	case types.AnnouncePump:
		err = m.announcePumpAction(ctx, a)
	case types.AnnounceLooping:
		err = m.updateSettings(func(s *types.Settings) { s.ClosedLoop = a.Enabled })
		if err == nil {
			m.log.Info().Bool("closed_loop", a.Enabled).Msg("looping toggled by announcement")
		}
	case types.AnnounceTempBasal:
		err = m.announceTempBasal(ctx, a)
	default:
		err = ErrAps("unknown announcement kind: " + string(a.Kind))
	}

	if err != nil {
		m.log.Warn().Err(err).Str("announcement_id", a.ID).Msg("announcement failed")
		return err
	}
	if uncertain {
		// Delivery outcome is ambiguous: the command may have landed. The
		// record stays pending and no fresh status goes out, so the caller
		// re-syncs from pump history instead of alarming on a maybe-failure.
		return nil
	}
	if merr := m.store.MarkAnnouncementEnacted(a.ID, time.Now()); merr != nil {
		m.log.Error().Err(merr).Str("announcement_id", a.ID).Msg("mark announcement enacted failed")
	}
	m.uploadStatus(ctx)
	return nil
}

func (m *Manager) announceBolus(ctx context.Context, a types.Announcement) (uncertain bool, err error) {
	if a.BolusUnits <= 0 {
		return false, ErrAps("bolus announcement without units")
	}
	if err := m.gate.Check(); err != nil {
		return false, err
	}
	if _, err := m.actuator.Bolus(ctx, a.BolusUnits); err != nil {
		if IsUncertainDelivery(err) {
			m.log.Warn().Err(err).Float64("units", a.BolusUnits).Msg("bolus announcement outcome uncertain")
			return true, nil
		}
		m.noteBolusFailure(err)
		return false, err
	}
	return false, nil
}

func (m *Manager) announcePumpAction(ctx context.Context, a types.Announcement) error {
	switch a.Action {
	case types.PumpSuspend:
		if err := m.gate.Check(); err != nil {
			return err
		}
		return m.actuator.Suspend(ctx)
	case types.PumpResume:
		if m.driver == nil {
			return ErrInvalidPumpState("not set")
		}
		// Resume is a no-op unless delivery is actually suspended.
		if !m.driver.Status().Suspended {
			m.log.Debug().Msg("resume announcement ignored: not suspended")
			return nil
		}
		return m.actuator.Resume(ctx)
	default:
		return ErrAps("unknown pump action: " + string(a.Action))
	}
}

func (m *Manager) announceTempBasal(ctx context.Context, a types.Announcement) error {
	if m.Settings().ClosedLoop {
		return ErrAps("temp basal announcements refused in closed loop")
	}
	if m.override.Active() {
		return ErrManualTemp("override active, temp basal refused")
	}
	if a.DurationMinutes < 0 || a.Rate < 0 {
		return ErrAps("invalid temp basal announcement")
	}
	if err := m.gate.Check(); err != nil {
		return err
	}
	if _, err := m.actuator.TempBasal(ctx, a.Rate, a.DurationMinutes); err != nil {
		return err
	}
	commanded := types.TempBasalState{
		Rate:            a.Rate,
		DurationMinutes: a.DurationMinutes,
		Kind:            types.TempBasalAbsolute,
		Timestamp:       time.Now(),
	}
	if err := m.store.SetTempBasal(commanded); err != nil {
		return ErrDeviceSync("persist temp basal: " + err.Error())
	}
	return nil
}
