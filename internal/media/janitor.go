package media

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	cronlib "github.com/robfig/cron/v3"

	. "github.com/roelfdiedericks/instasave/internal/logging"
)

// Janitor removes artifacts left behind by requests that never reached
// their cleanup (process killed mid-download, handler goroutine aborted).
type Janitor struct {
	dir  string
	ttl  time.Duration
	cron *cronlib.Cron
	now  func() time.Time
}

// NewJanitor schedules a sweep of dir using a robfig/cron spec such as "@every 10m".
func NewJanitor(dir string, ttl time.Duration, schedule string) (*Janitor, error) {
	j := &Janitor{
		dir:  dir,
		ttl:  ttl,
		cron: cronlib.New(),
		now:  time.Now,
	}
	if _, err := j.cron.AddFunc(schedule, j.sweepLogged); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Start runs one sweep immediately, then follows the schedule.
func (j *Janitor) Start() {
	L_debug("media: janitor starting", "dir", j.dir, "ttl", j.ttl.String())
	j.sweepLogged()
	j.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
	L_debug("media: janitor stopped")
}

func (j *Janitor) sweepLogged() {
	removed, err := j.Sweep()
	if err != nil {
		L_warn("media: sweep error", "error", err)
	}
	if removed > 0 {
		L_info("media: removed orphaned artifacts", "count", removed)
	}
}

// Sweep removes regular files in dir whose modification time is older than the TTL.
func (j *Janitor) Sweep() (int, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read artifact directory: %w", err)
	}

	cutoff := j.now().Add(-j.ttl)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(j.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			L_debug("media: failed to remove expired artifact", "path", path, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
