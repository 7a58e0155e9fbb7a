// Package store persists loop state in an embedded BadgerDB keyed by
// logical names. History updates (cycles, glucose) run as read-modify-write
// transactions so append-and-prune is atomic.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"pumpd/internal/common/fsutil"
	"pumpd/pkg/types"
)

const (
	keyTempBasal  = "loop/temp_basal"
	keySuggestion = "loop/suggestion"
	keyEnacted    = "loop/enacted"
	keySettings   = "loop/settings"
	keyCycles     = "loop/cycles"
	keyGlucose    = "glucose/series"

	announcePrefix = "announce/"
)

// Config holds store construction options.
type Config struct {
	// Path is the directory for database files. Ignored when InMemory is set.
	Path string
	// InMemory disables disk persistence; used by tests.
	InMemory bool
	// SyncWrites forces synchronous writes for durability.
	SyncWrites bool
	Logger     zerolog.Logger
}

// Store wraps a BadgerDB instance.
type Store struct {
	db  *badger.DB
	log zerolog.Logger
}

// badgerLogger adapts zerolog to badger's Logger interface.
type badgerLogger struct{ log zerolog.Logger }

func (l badgerLogger) Errorf(f string, args ...interface{})   { l.log.Error().Msgf(f, args...) }
func (l badgerLogger) Warningf(f string, args ...interface{}) { l.log.Warn().Msgf(f, args...) }
func (l badgerLogger) Infof(f string, args ...interface{})    { l.log.Debug().Msgf(f, args...) }
func (l badgerLogger) Debugf(f string, args ...interface{})   { l.log.Debug().Msgf(f, args...) }

// Open opens (and creates if needed) the store.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("store: path is required for persistent database")
		}
		if err := fsutil.EnsureDir(cfg.Path); err != nil {
			return nil, fmt.Errorf("store: create dir: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithLogger(badgerLogger{log: cfg.Logger})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	return &Store{db: db, log: cfg.Logger}, nil
}

// OpenInMemory opens an in-memory store for tests.
func OpenInMemory() (*Store, error) {
	return Open(Config{InMemory: true, Logger: zerolog.Nop()})
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) getJSON(txn *badger.Txn, key string, out any) (bool, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	err = item.Value(func(val []byte) error { return json.Unmarshal(val, out) })
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) setJSON(txn *badger.Txn, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), b)
}

func (s *Store) readJSON(key string, out any) (bool, error) {
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = s.getJSON(txn, key, out)
		return err
	})
	return found, err
}

func (s *Store) writeJSON(key string, v any) error {
	return s.db.Update(func(txn *badger.Txn) error { return s.setJSON(txn, key, v) })
}

// TempBasal returns the last commanded temp basal, or nil if none was
// persisted yet.
func (s *Store) TempBasal() (*types.TempBasalState, error) {
	var tb types.TempBasalState
	found, err := s.readJSON(keyTempBasal, &tb)
	if err != nil || !found {
		return nil, err
	}
	return &tb, nil
}

// SetTempBasal persists a newly commanded temp basal. Writes whose
// timestamp would regress behind the stored record are rejected.
func (s *Store) SetTempBasal(tb types.TempBasalState) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var prev types.TempBasalState
		found, err := s.getJSON(txn, keyTempBasal, &prev)
		if err != nil {
			return err
		}
		if found && tb.Timestamp.Before(prev.Timestamp) {
			return fmt.Errorf("store: temp basal timestamp regression: %s < %s",
				tb.Timestamp.Format(time.RFC3339), prev.Timestamp.Format(time.RFC3339))
		}
		return s.setJSON(txn, keyTempBasal, tb)
	})
}

// Suggestion returns the persisted suggestion, or nil if none.
func (s *Store) Suggestion() (*types.Suggestion, error) {
	var sg types.Suggestion
	found, err := s.readJSON(keySuggestion, &sg)
	if err != nil || !found {
		return nil, err
	}
	return &sg, nil
}

// SetSuggestion persists the latest decision-engine suggestion.
func (s *Store) SetSuggestion(sg types.Suggestion) error { return s.writeJSON(keySuggestion, sg) }

// Enacted returns the last enacted-suggestion record, or nil if none.
func (s *Store) Enacted() (*types.EnactedSuggestion, error) {
	var en types.EnactedSuggestion
	found, err := s.readJSON(keyEnacted, &en)
	if err != nil || !found {
		return nil, err
	}
	return &en, nil
}

// SetEnacted persists the terminal enacted-suggestion record.
func (s *Store) SetEnacted(en types.EnactedSuggestion) error { return s.writeJSON(keyEnacted, en) }

// Settings returns the persisted process-wide toggles. Missing settings
// return the zero value and found=false so the caller can seed defaults.
func (s *Store) Settings() (types.Settings, bool, error) {
	var st types.Settings
	found, err := s.readJSON(keySettings, &st)
	return st, found, err
}

// SetSettings persists the process-wide toggles.
func (s *Store) SetSettings(st types.Settings) error { return s.writeJSON(keySettings, st) }

// AppendCycle appends a closed cycle record and prunes entries whose start
// is older than keep, in one transaction.
func (s *Store) AppendCycle(rec types.CycleRecord, now time.Time, keep time.Duration) error {
	cutoff := now.Add(-keep)
	return s.db.Update(func(txn *badger.Txn) error {
		var recs []types.CycleRecord
		if _, err := s.getJSON(txn, keyCycles, &recs); err != nil {
			return err
		}
		recs = append(recs, rec)
		kept := recs[:0]
		for _, r := range recs {
			if r.StartedAt.After(cutoff) {
				kept = append(kept, r)
			}
		}
		return s.setJSON(txn, keyCycles, kept)
	})
}

// Cycles returns the bounded cycle history, oldest first.
func (s *Store) Cycles() ([]types.CycleRecord, error) {
	var recs []types.CycleRecord
	if _, err := s.readJSON(keyCycles, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// AppendGlucose appends a CGM reading and prunes readings older than keep.
func (s *Store) AppendGlucose(r types.GlucoseReading, now time.Time, keep time.Duration) error {
	cutoff := now.Add(-keep)
	return s.db.Update(func(txn *badger.Txn) error {
		var series []types.GlucoseReading
		if _, err := s.getJSON(txn, keyGlucose, &series); err != nil {
			return err
		}
		series = append(series, r)
		sort.Slice(series, func(i, j int) bool { return series[i].Timestamp.Before(series[j].Timestamp) })
		kept := series[:0]
		for _, g := range series {
			if g.Timestamp.After(cutoff) {
				kept = append(kept, g)
			}
		}
		return s.setJSON(txn, keyGlucose, kept)
	})
}

// Glucose returns the glucose series, oldest first.
func (s *Store) Glucose() ([]types.GlucoseReading, error) {
	var series []types.GlucoseReading
	if _, err := s.readJSON(keyGlucose, &series); err != nil {
		return nil, err
	}
	return series, nil
}

// SaveAnnouncement stores a pending announcement under its id.
func (s *Store) SaveAnnouncement(a types.Announcement) error {
	if a.ID == "" {
		return errors.New("store: announcement id is required")
	}
	return s.writeJSON(announcePrefix+a.ID, a)
}

// MarkAnnouncementEnacted records the enactment time for an announcement.
func (s *Store) MarkAnnouncementEnacted(id string, at time.Time) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var a types.Announcement
		found, err := s.getJSON(txn, announcePrefix+id, &a)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("store: announcement %s not found", id)
		}
		a.EnactedAt = &at
		return s.setJSON(txn, announcePrefix+id, a)
	})
}

// PendingAnnouncements lists announcements not yet enacted, oldest first.
func (s *Store) PendingAnnouncements() ([]types.Announcement, error) {
	var out []types.Announcement
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(announcePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var a types.Announcement
			err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &a) })
			if err != nil {
				return err
			}
			if a.EnactedAt == nil {
				out = append(out, a)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
