// Package gateway runs the per-event control flow of the bot: onboarding,
// the admin report and the link download pipeline. Every failure is turned
// into a single chat message here and goes no further.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roelfdiedericks/instasave/internal/instagram"
	. "github.com/roelfdiedericks/instasave/internal/logging"
	"github.com/roelfdiedericks/instasave/internal/media"
	"github.com/roelfdiedericks/instasave/internal/relay"
	"github.com/roelfdiedericks/instasave/internal/user"
)

// SessionSource hands out the shared Instagram session.
type SessionSource interface {
	Acquire(ctx context.Context) (*instagram.Session, error)
}

// MediaResolver turns a shortcode into a direct media location.
type MediaResolver interface {
	Resolve(ctx context.Context, shortcode string, s *instagram.Session) (media.Media, error)
}

// MediaFetcher downloads media into a request-owned artifact.
type MediaFetcher interface {
	Download(ctx context.Context, m media.Media, hint string) (*media.Artifact, error)
}

// Inbound is one chat event as seen by the gateway.
type Inbound struct {
	ChatID int64
	Sender user.Sender
	Text   string
}

// Deps wires the gateway's collaborators.
type Deps struct {
	Sessions  SessionSource
	Resolver  MediaResolver
	Fetcher   MediaFetcher
	Admin     *user.AdminGate
	Users     *user.Registry
	Messenger relay.Messenger
	Caption   string
}

// Gateway coordinates one inbound event at a time per goroutine; it holds no
// per-request state.
type Gateway struct {
	sessions SessionSource
	resolver MediaResolver
	fetcher  MediaFetcher
	admin    *user.AdminGate
	users    *user.Registry
	m        relay.Messenger
	relay    *relay.Relay

	// service lifetime; inbound updates never cancel a running request
	ctx context.Context
}

// New creates a Gateway whose requests run under ctx.
func New(ctx context.Context, d Deps) (*Gateway, error) {
	switch {
	case d.Sessions == nil:
		return nil, errors.New("gateway: session source is required")
	case d.Resolver == nil:
		return nil, errors.New("gateway: resolver is required")
	case d.Fetcher == nil:
		return nil, errors.New("gateway: fetcher is required")
	case d.Admin == nil || d.Users == nil:
		return nil, errors.New("gateway: admin gate and user registry are required")
	case d.Messenger == nil:
		return nil, errors.New("gateway: messenger is required")
	}
	return &Gateway{
		sessions: d.Sessions,
		resolver: d.Resolver,
		fetcher:  d.Fetcher,
		admin:    d.Admin,
		users:    d.Users,
		m:        d.Messenger,
		relay:    relay.New(d.Messenger, d.Caption),
		ctx:      ctx,
	}, nil
}

func (g *Gateway) reply(chatID int64, text string) error {
	if _, err := g.m.SendText(chatID, text); err != nil {
		return fmt.Errorf("failed to reply: %w", err)
	}
	return nil
}

// record logs activity; failures never interrupt the reply.
func (g *Gateway) record(s user.Sender) {
	_ = g.users.Record(g.ctx, s)
}

// Onboard handles /start.
func (g *Gateway) Onboard(in Inbound) error {
	L_debug("gateway: onboard", "userID", in.Sender.ID, "username", in.Sender.Username)
	g.record(in.Sender)

	written, err := g.admin.SetOnce(g.ctx, in.Sender.ID)
	if err != nil {
		L_error("gateway: admin bootstrap failed", "error", err)
	}
	if written {
		if err := g.reply(in.ChatID, AdminSetText); err != nil {
			return err
		}
	}

	if g.admin.Authorize(g.ctx, in.Sender.ID) {
		return g.reply(in.ChatID, DeniedText)
	}

	if _, err := g.sessions.Acquire(g.ctx); err != nil {
		L_error("gateway: instagram session unavailable", "error", err)
		return g.reply(in.ChatID, AuthFailureText)
	}

	return g.reply(in.ChatID, WelcomeText)
}

// Report handles /users, admin only.
func (g *Gateway) Report(in Inbound) error {
	if !g.admin.Authorize(g.ctx, in.Sender.ID) {
		L_debug("gateway: report denied", "userID", in.Sender.ID)
		return g.reply(in.ChatID, DeniedText)
	}

	rep, err := g.users.Report(g.ctx)
	switch {
	case errors.Is(err, user.ErrNoLedger):
		return g.reply(in.ChatID, NoLedgerText)
	case err != nil:
		L_error("gateway: error reading user log file", "error", err)
		return g.reply(in.ChatID, ReportErrorText)
	case rep.Total == 0:
		return g.reply(in.ChatID, NoUsersText)
	}

	for _, chunk := range chunkReport(rep, MaxMessageLen) {
		if err := g.reply(in.ChatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

// request is the working state of one link download.
type request struct {
	sourceURL string
	shortcode string
	media     media.Media
}

// HandleLink runs the download pipeline for a non-admin sender.
func (g *Gateway) HandleLink(in Inbound) error {
	if g.admin.Authorize(g.ctx, in.Sender.ID) {
		return g.reply(in.ChatID, DeniedText)
	}
	g.record(in.Sender)

	req := request{sourceURL: strings.TrimSpace(in.Text)}
	if !instagram.Validate(req.sourceURL) {
		L_debug("gateway: invalid url", "userID", in.Sender.ID, "text", req.sourceURL)
		return g.reply(in.ChatID, InvalidURLText)
	}
	var ok bool
	if req.shortcode, ok = instagram.ExtractShortcode(req.sourceURL); !ok {
		L_debug("gateway: no shortcode", "url", req.sourceURL)
		return g.reply(in.ChatID, InvalidURLText)
	}

	progress, err := g.relay.NotifyProgress(in.ChatID)
	if err != nil {
		return err
	}

	session, err := g.sessions.Acquire(g.ctx)
	if err != nil {
		L_error("gateway: instagram session unavailable", "error", err)
		g.relay.Fail(progress, AuthFailureText)
		return nil
	}

	req.media, err = g.resolver.Resolve(g.ctx, req.shortcode, session)
	if err != nil {
		if instagram.IsResolutionError(err) {
			L_error("gateway: error fetching instagram data", "shortcode", req.shortcode, "error", err)
		} else {
			L_error("gateway: unexpected resolver failure", "shortcode", req.shortcode, "error", err)
		}
		g.relay.Fail(progress, FetchFailureText)
		return nil
	}

	artifact, err := g.fetcher.Download(g.ctx, req.media, req.shortcode)
	if err != nil {
		L_error("gateway: failure when downloading media", "media", req.media.String(), "error", err)
		g.relay.Fail(progress, relay.SendFailureText)
		return nil
	}
	defer artifact.Remove()

	if err := g.relay.Deliver(progress, artifact); err != nil {
		// already reported to the chat by the relay
		return nil
	}
	L_info("gateway: link served", "userID", in.Sender.ID, "shortcode", req.shortcode, "kind", req.media.Kind.String())
	return nil
}
