// Package relaytest provides an in-memory relay.Messenger for tests.
package relaytest

import (
	"errors"
	"os"
	"sync"

	"github.com/roelfdiedericks/instasave/internal/relay"
)

// Upload is a photo or video handed to the Messenger.
type Upload struct {
	ChatID  int64
	Kind    string // "photo" or "video"
	Path    string
	Caption string
	Data    []byte // file contents at send time
}

// Messenger records every call. Set the Fail* fields to inject errors.
type Messenger struct {
	mu     sync.Mutex
	nextID int

	Texts   map[relay.MessageRef]string // live messages, edits applied
	Sent    []string                    // every SendText in order
	Edits   []string
	Deleted []relay.MessageRef
	Uploads []Upload
	Typings int

	FailSend   bool
	FailUpload bool
}

// New returns an empty Messenger.
func New() *Messenger {
	return &Messenger{Texts: map[relay.MessageRef]string{}}
}

var errInjected = errors.New("injected failure")

func (m *Messenger) SendText(chatID int64, text string) (relay.MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSend {
		return relay.MessageRef{}, errInjected
	}
	m.nextID++
	ref := relay.MessageRef{ChatID: chatID, MessageID: m.nextID}
	m.Texts[ref] = text
	m.Sent = append(m.Sent, text)
	return ref, nil
}

func (m *Messenger) EditText(ref relay.MessageRef, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Texts[ref]; !ok {
		return errors.New("message not found")
	}
	m.Texts[ref] = text
	m.Edits = append(m.Edits, text)
	return nil
}

func (m *Messenger) Delete(ref relay.MessageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Texts[ref]; !ok {
		return errors.New("message not found")
	}
	delete(m.Texts, ref)
	m.Deleted = append(m.Deleted, ref)
	return nil
}

func (m *Messenger) SendPhoto(chatID int64, path, caption string) error {
	return m.upload(chatID, "photo", path, caption)
}

func (m *Messenger) SendVideo(chatID int64, path, caption string) error {
	return m.upload(chatID, "video", path, caption)
}

func (m *Messenger) upload(chatID int64, kind, path, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUpload {
		return errInjected
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	m.Uploads = append(m.Uploads, Upload{ChatID: chatID, Kind: kind, Path: path, Caption: caption, Data: data})
	return nil
}

func (m *Messenger) Typing(chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Typings++
	return nil
}

// Live returns the texts of messages that have not been deleted.
func (m *Messenger) Live() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.Texts))
	for _, t := range m.Texts {
		out = append(out, t)
	}
	return out
}

// SentTexts returns a copy of every text sent so far.
func (m *Messenger) SentTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Sent...)
}
