// Package user provides the single-admin gate and the per-user activity ledger.
package user

// Sender identifies the chat user behind an inbound event.
type Sender struct {
	ID        int64
	Username  string // may be empty
	FirstName string
}

// Record is one entry of the activity ledger (users.json).
type Record struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	Timestamp string `json:"timestamp"` // TimestampLayout in the ledger timezone
}

// TimestampLayout is the second-precision layout of Record.Timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// DisplayUsername returns the username or "N/A" when the user has none.
func (r Record) DisplayUsername() string {
	if r.Username == "" {
		return "N/A"
	}
	return r.Username
}
