package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/roelfdiedericks/instasave/internal/logging"
	"github.com/roelfdiedericks/instasave/internal/store"
)

// ErrNoLedger is returned by Report when nothing has been recorded yet.
var ErrNoLedger = errors.New("user ledger not found")

// Report summarises the ledger.
type Report struct {
	Total       int
	ActiveToday int
	Records     []Record // insertion order
}

// Registry is the per-user activity ledger stored as an ordered JSON array.
// Every load-modify-save cycle runs on the registry's Mailbox.
type Registry struct {
	path string
	loc  *time.Location
	now  func() time.Time
	box  *store.Mailbox
}

// NewRegistry owns the ledger at path; timestamps use loc.
func NewRegistry(path string, loc *time.Location) *Registry {
	if loc == nil {
		loc = time.UTC
	}
	return &Registry{
		path: path,
		loc:  loc,
		now:  time.Now,
		box:  store.NewMailbox("registry"),
	}
}

// Close stops the registry's mailbox.
func (r *Registry) Close() {
	r.box.Close()
}

func (r *Registry) load() ([]Record, bool, error) {
	var records []Record
	found, err := store.ReadJSON(r.path, &records)
	if err != nil {
		return nil, found, err
	}
	return records, found, nil
}

// Record upserts s: an existing entry gets a fresh timestamp, a new user is
// appended. Errors are logged and returned; callers may ignore them.
func (r *Registry) Record(ctx context.Context, s Sender) error {
	err := r.box.Do(ctx, func() error {
		records, _, err := r.load()
		if err != nil {
			return err
		}

		stamp := r.now().In(r.loc).Format(TimestampLayout)
		updated := false
		for i := range records {
			if records[i].UserID == s.ID {
				records[i].Timestamp = stamp
				updated = true
				break
			}
		}
		if !updated {
			records = append(records, Record{
				UserID:    s.ID,
				Username:  s.Username,
				FirstName: s.FirstName,
				Timestamp: stamp,
			})
			L_debug("registry: new user", "userID", s.ID, "username", s.Username)
		}

		if err := store.AtomicWriteJSON(r.path, records, 0600); err != nil {
			return fmt.Errorf("failed to write ledger: %w", err)
		}
		return nil
	})
	if err != nil {
		L_error("registry: error logging user data", "userID", s.ID, "error", err)
	}
	return err
}

// Report returns totals and the records in insertion order.
// ErrNoLedger means the ledger file does not exist yet.
func (r *Registry) Report(ctx context.Context) (*Report, error) {
	var records []Record
	err := r.box.Do(ctx, func() error {
		loaded, found, err := r.load()
		if err != nil {
			return err
		}
		if !found {
			return ErrNoLedger
		}
		records = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	today := r.now().In(r.loc)
	active := 0
	for _, rec := range records {
		if r.sameDay(rec.Timestamp, today) {
			active++
		}
	}

	return &Report{
		Total:       len(records),
		ActiveToday: active,
		Records:     records,
	}, nil
}

func (r *Registry) sameDay(stamp string, today time.Time) bool {
	t, err := time.ParseInLocation(TimestampLayout, stamp, r.loc)
	if err != nil {
		return false
	}
	y1, m1, d1 := t.Date()
	y2, m2, d2 := today.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
