package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	. "github.com/roelfdiedericks/instasave/internal/logging"
)

// ErrClosed is returned by Do after the mailbox has been closed.
var ErrClosed = errors.New("mailbox closed")

type op struct {
	fn     func() error
	result chan error
}

// Mailbox owns a single goroutine that runs submitted operations one at a
// time, in arrival order. Every read-modify-write of a persisted file goes
// through the mailbox that owns that file.
type Mailbox struct {
	name string
	ops  chan op
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

// NewMailbox starts the owning goroutine. Call Close to stop it.
func NewMailbox(name string) *Mailbox {
	m := &Mailbox{
		name: name,
		ops:  make(chan op),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *Mailbox) run() {
	defer close(m.done)
	for {
		select {
		case o := <-m.ops:
			o.result <- m.exec(o.fn)
		case <-m.quit:
			L_debug("store: mailbox stopped", "name", m.name)
			return
		}
	}
}

func (m *Mailbox) exec(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: operation panicked: %v", m.name, r)
			L_error("store: mailbox operation panicked", "name", m.name, "panic", r)
		}
	}()
	return fn()
}

// Do runs fn on the owning goroutine and waits for its result.
// If ctx ends after fn was accepted, fn still runs to completion but Do
// returns ctx.Err().
func (m *Mailbox) Do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	select {
	case m.ops <- op{fn: fn, result: result}:
	case <-m.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the owning goroutine after the current operation finishes.
func (m *Mailbox) Close() {
	m.once.Do(func() { close(m.quit) })
	<-m.done
}
