package user

import (
	"context"
	"fmt"

	. "github.com/roelfdiedericks/instasave/internal/logging"
	"github.com/roelfdiedericks/instasave/internal/store"
)

type adminRecord struct {
	AdminID *int64 `json:"admin_id"`
}

// AdminGate persists the single admin identity in admin.json. All access
// runs through one Mailbox so the write-once check cannot race.
type AdminGate struct {
	path string
	box  *store.Mailbox
}

// NewAdminGate owns the admin record at path. Call Close when done.
func NewAdminGate(path string) *AdminGate {
	return &AdminGate{path: path, box: store.NewMailbox("admin")}
}

// Close stops the gate's mailbox.
func (g *AdminGate) Close() {
	g.box.Close()
}

func (g *AdminGate) read() (int64, bool, error) {
	var rec adminRecord
	found, err := store.ReadJSON(g.path, &rec)
	if err != nil || !found || rec.AdminID == nil {
		return 0, false, err
	}
	return *rec.AdminID, true, nil
}

// Admin returns the current admin, if one has been set.
func (g *AdminGate) Admin(ctx context.Context) (id int64, ok bool, err error) {
	err = g.box.Do(ctx, func() error {
		var readErr error
		id, ok, readErr = g.read()
		return readErr
	})
	return id, ok, err
}

// SetOnce makes id the admin unless an admin already exists.
// Reports whether id was written.
func (g *AdminGate) SetOnce(ctx context.Context, id int64) (bool, error) {
	written := false
	err := g.box.Do(ctx, func() error {
		current, ok, err := g.read()
		if err != nil {
			// An unreadable record still counts as set: never overwrite it
			return err
		}
		if ok {
			L_debug("admin: already set", "admin", current, "candidate", id)
			return nil
		}
		if err := store.AtomicWriteJSON(g.path, adminRecord{AdminID: &id}, 0600); err != nil {
			return fmt.Errorf("failed to write admin record: %w", err)
		}
		written = true
		L_info("admin: bootstrapped", "admin", id)
		return nil
	})
	return written, err
}

// Authorize reports whether caller is the admin. Read failures deny.
func (g *AdminGate) Authorize(ctx context.Context, caller int64) bool {
	id, ok, err := g.Admin(ctx)
	if err != nil {
		L_error("admin: failed to read admin record", "error", err)
		return false
	}
	return ok && id == caller
}
