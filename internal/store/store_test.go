package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pumpd/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTempBasalRoundTrip(t *testing.T) {
	s := openTestStore(t)

	tb, err := s.TempBasal()
	require.NoError(t, err)
	assert.Nil(t, tb, "expected no record before first write")

	now := time.Now().UTC().Truncate(time.Second)
	want := types.TempBasalState{Rate: 0.5, DurationMinutes: 30, Kind: types.TempBasalAbsolute, Timestamp: now}
	require.NoError(t, s.SetTempBasal(want))

	got, err := s.TempBasal()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)
}

func TestTempBasalTimestampNeverRegresses(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()
	require.NoError(t, s.SetTempBasal(types.TempBasalState{Rate: 1, DurationMinutes: 30, Kind: types.TempBasalAbsolute, Timestamp: now}))

	stale := types.TempBasalState{Rate: 2, DurationMinutes: 15, Kind: types.TempBasalAbsolute, Timestamp: now.Add(-time.Minute)}
	err := s.SetTempBasal(stale)
	require.Error(t, err)

	got, err := s.TempBasal()
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Rate, "stale write must not clobber the record")
}

func TestAppendCyclePrunesOldEntries(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	old := types.CycleRecord{ID: "old", StartedAt: now.Add(-25 * time.Hour), Status: types.CycleSuccess}
	require.NoError(t, s.AppendCycle(old, now.Add(-25*time.Hour), 24*time.Hour))

	fresh := types.CycleRecord{ID: "fresh", StartedAt: now, Status: types.CycleFailure, Error: "pump error"}
	require.NoError(t, s.AppendCycle(fresh, now, 24*time.Hour))

	recs, err := s.Cycles()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "fresh", recs[0].ID)
}

func TestGlucoseSeriesSortedAndPruned(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	// Append out of order; reads must come back oldest first.
	require.NoError(t, s.AppendGlucose(types.GlucoseReading{Value: 120, Timestamp: now}, now, 24*time.Hour))
	require.NoError(t, s.AppendGlucose(types.GlucoseReading{Value: 110, Timestamp: now.Add(-5 * time.Minute)}, now, 24*time.Hour))
	require.NoError(t, s.AppendGlucose(types.GlucoseReading{Value: 90, Timestamp: now.Add(-25 * time.Hour)}, now, 24*time.Hour))

	series, err := s.Glucose()
	require.NoError(t, err)
	require.Len(t, series, 2, "25h-old reading must be pruned")
	assert.Equal(t, 110.0, series[0].Value)
	assert.Equal(t, 120.0, series[1].Value)
}

func TestSettingsSeedAndUpdate(t *testing.T) {
	s := openTestStore(t)

	_, found, err := s.Settings()
	require.NoError(t, err)
	assert.False(t, found)

	want := types.Settings{ClosedLoop: true, ResumeIfNoTemp: true}
	require.NoError(t, s.SetSettings(want))

	got, found, err := s.Settings()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want, got)
}

func TestSuggestionAndEnactedRoundTrip(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	rate := 0.5
	dur := 30
	sg := types.Suggestion{Rate: &rate, DurationMinutes: &dur, DeliverAt: now}
	require.NoError(t, s.SetSuggestion(sg))

	got, err := s.Suggestion()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 0.5, *got.Rate)

	en := types.EnactedSuggestion{Suggestion: sg, EnactedAt: now, Received: true}
	require.NoError(t, s.SetEnacted(en))
	gotEn, err := s.Enacted()
	require.NoError(t, err)
	require.NotNil(t, gotEn)
	assert.True(t, gotEn.Received)
}

func TestAnnouncementLifecycle(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	require.Error(t, s.SaveAnnouncement(types.Announcement{}), "missing id must be rejected")

	a := types.Announcement{ID: "a1", Kind: types.AnnounceBolus, BolusUnits: 1.5, CreatedAt: now.Add(-time.Minute)}
	b := types.Announcement{ID: "a2", Kind: types.AnnouncePump, Action: types.PumpResume, CreatedAt: now}
	require.NoError(t, s.SaveAnnouncement(a))
	require.NoError(t, s.SaveAnnouncement(b))

	pending, err := s.PendingAnnouncements()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a1", pending[0].ID, "pending list is oldest first")

	require.NoError(t, s.MarkAnnouncementEnacted("a1", now))
	pending, err = s.PendingAnnouncements()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a2", pending[0].ID)

	require.Error(t, s.MarkAnnouncementEnacted("missing", now))
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Path: dir}

	s, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, s.SetSettings(types.Settings{OverrideActive: true}))
	require.NoError(t, s.Close())

	s2, err := Open(cfg)
	require.NoError(t, err)
	defer s2.Close()
	st, found, err := s2.Settings()
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, st.OverrideActive, "override flag must survive restart")
}
