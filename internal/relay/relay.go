// Package relay hands downloaded artifacts to the chat and keeps the user
// informed through a single progress message.
package relay

import (
	"errors"
	"fmt"

	. "github.com/roelfdiedericks/instasave/internal/logging"
	"github.com/roelfdiedericks/instasave/internal/media"
)

// ErrDelivery is returned when the chat platform rejects an upload.
var ErrDelivery = errors.New("media delivery failed")

const (
	ProgressText    = "⏳ Fetching media..."
	SendFailureText = "❌ Failure when sending media, try again later."
)

// MessageRef identifies a sent chat message so it can be edited or deleted.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Messenger is the slice of the chat platform the bot needs.
type Messenger interface {
	SendText(chatID int64, text string) (MessageRef, error)
	EditText(ref MessageRef, text string) error
	Delete(ref MessageRef) error
	SendPhoto(chatID int64, path, caption string) error
	SendVideo(chatID int64, path, caption string) error
	Typing(chatID int64) error
}

// Progress is the in-flight status message of one download request.
type Progress struct {
	Ref MessageRef
}

// Relay delivers artifacts with a fixed caption.
type Relay struct {
	m       Messenger
	caption string
}

// New creates a Relay sending through m.
func New(m Messenger, caption string) *Relay {
	return &Relay{m: m, caption: caption}
}

// NotifyProgress shows the typing indicator and posts the progress message.
func (r *Relay) NotifyProgress(chatID int64) (*Progress, error) {
	if err := r.m.Typing(chatID); err != nil {
		L_debug("relay: typing indicator failed", "chatID", chatID, "error", err)
	}
	ref, err := r.m.SendText(chatID, ProgressText)
	if err != nil {
		return nil, fmt.Errorf("failed to send progress message: %w", err)
	}
	return &Progress{Ref: ref}, nil
}

// Deliver uploads a as photo or video. On success the progress message is
// deleted; on failure it is rewritten and ErrDelivery is returned. The
// artifact is removed in both cases.
func (r *Relay) Deliver(p *Progress, a *media.Artifact) error {
	defer func() {
		if err := a.Remove(); err != nil {
			L_warn("relay: failed to remove artifact", "path", a.Path, "error", err)
		}
	}()

	chatID := p.Ref.ChatID
	var err error
	switch a.Kind {
	case media.Video:
		err = r.m.SendVideo(chatID, a.Path, r.caption)
	default:
		err = r.m.SendPhoto(chatID, a.Path, r.caption)
	}
	if err != nil {
		L_error("relay: failure when sending media", "chatID", chatID, "kind", a.Kind, "error", err)
		r.Fail(p, SendFailureText)
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	L_info("relay: media delivered", "chatID", chatID, "kind", a.Kind, "size", a.Size)
	if err := r.m.Delete(p.Ref); err != nil {
		L_debug("relay: failed to delete progress message", "error", err)
	}
	return nil
}

// Fail rewrites the progress message to text.
func (r *Relay) Fail(p *Progress, text string) {
	if p == nil {
		return
	}
	if err := r.m.EditText(p.Ref, text); err != nil {
		L_warn("relay: failed to edit progress message", "chatID", p.Ref.ChatID, "error", err)
	}
}
