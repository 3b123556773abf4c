// Package telegram provides the Telegram bot adapter for instasave.
package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	tele "gopkg.in/telebot.v4"

	"github.com/roelfdiedericks/instasave/internal/gateway"
	. "github.com/roelfdiedericks/instasave/internal/logging"
	"github.com/roelfdiedericks/instasave/internal/relay"
	"github.com/roelfdiedericks/instasave/internal/user"
)

// Bot represents the Telegram bot. It routes inbound updates to the gateway
// and implements relay.Messenger for outbound traffic.
type Bot struct {
	bot     *tele.Bot
	gateway *gateway.Gateway
}

var _ relay.Messenger = (*Bot)(nil)

// New creates a new Telegram bot. Handlers are registered by Attach.
func New(token string, pollTimeout time.Duration) (*Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token not configured")
	}

	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: pollTimeout},
		OnError: func(err error, c tele.Context) {
			if IsShuttingDown() {
				return
			}
			L_error("telegram: handler error", "error", err)
		},
	}

	L_debug("telegram: creating bot", "tokenLength", len(token))

	bot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	L_debug("telegram: bot created",
		"username", bot.Me.Username,
		"id", bot.Me.ID,
		"firstName", bot.Me.FirstName,
	)

	return &Bot{bot: bot}, nil
}

// Username returns the bot's own username.
func (b *Bot) Username() string {
	return b.bot.Me.Username
}

// Attach connects the bot to gw and registers the handlers.
func (b *Bot) Attach(gw *gateway.Gateway) {
	b.gateway = gw

	b.bot.Handle("/start", func(c tele.Context) error {
		return b.gateway.Onboard(inbound(c))
	})
	b.bot.Handle("/users", func(c tele.Context) error {
		return b.gateway.Report(inbound(c))
	})
	b.bot.Handle(tele.OnText, b.handleText)

	L_debug("telegram: handlers registered")
}

// handleText runs the link pipeline for plain (non-command) text.
func (b *Bot) handleText(c tele.Context) error {
	in := inbound(c)
	if strings.HasPrefix(in.Text, "/") {
		L_debug("telegram: ignoring unknown command", "text", truncate(in.Text, 30))
		return nil
	}

	L_debug("telegram message received",
		"userID", in.Sender.ID,
		"chatID", in.ChatID,
		"text", truncate(in.Text, 50),
	)
	return b.gateway.HandleLink(in)
}

func inbound(c tele.Context) gateway.Inbound {
	in := gateway.Inbound{Text: c.Text()}
	if chat := c.Chat(); chat != nil {
		in.ChatID = chat.ID
	}
	if s := c.Sender(); s != nil {
		in.Sender = user.Sender{ID: s.ID, Username: s.Username, FirstName: s.FirstName}
	}
	return in
}

// Start starts the bot polling
func (b *Bot) Start() {
	L_info("starting telegram bot", "bot", "@"+b.bot.Me.Username)
	go b.bot.Start()
}

// Stop stops the bot
func (b *Bot) Stop() {
	L_info("stopping telegram bot")
	b.bot.Stop()
}

func stored(ref relay.MessageRef) tele.StoredMessage {
	return tele.StoredMessage{MessageID: strconv.Itoa(ref.MessageID), ChatID: ref.ChatID}
}

// SendText sends a plain text message.
func (b *Bot) SendText(chatID int64, text string) (relay.MessageRef, error) {
	msg, err := b.bot.Send(&tele.Chat{ID: chatID}, text)
	if err != nil {
		return relay.MessageRef{}, fmt.Errorf("failed to send message: %w", err)
	}
	return relay.MessageRef{ChatID: chatID, MessageID: msg.ID}, nil
}

// EditText replaces the text of a sent message.
func (b *Bot) EditText(ref relay.MessageRef, text string) error {
	if _, err := b.bot.Edit(stored(ref), text); err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	return nil
}

// Delete removes a sent message.
func (b *Bot) Delete(ref relay.MessageRef) error {
	return b.bot.Delete(stored(ref))
}

// TelegramCaptionLimit is Telegram's maximum caption length
const TelegramCaptionLimit = 1024

// SendPhoto uploads the file at path as a photo.
func (b *Bot) SendPhoto(chatID int64, path, caption string) error {
	photo := &tele.Photo{File: tele.FromDisk(path), Caption: truncate(caption, TelegramCaptionLimit)}
	_, err := b.bot.Send(&tele.Chat{ID: chatID}, photo)
	return err
}

// SendVideo uploads the file at path as a streamable video.
func (b *Bot) SendVideo(chatID int64, path, caption string) error {
	video := &tele.Video{File: tele.FromDisk(path), Caption: truncate(caption, TelegramCaptionLimit), Streaming: true}
	_, err := b.bot.Send(&tele.Chat{ID: chatID}, video)
	return err
}

// Typing shows the typing indicator.
func (b *Bot) Typing(chatID int64) error {
	return b.bot.Notify(&tele.Chat{ID: chatID}, tele.Typing)
}

// truncate shortens s to max UTF-16 code units, the unit Telegram limits
// are measured in, adding "..." if cut.
func truncate(s string, max int) string {
	if utf16Len(s) <= max {
		return s
	}
	if max <= 3 {
		return cutUTF16(s, max)
	}
	return cutUTF16(s, max-3) + "..."
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

func cutUTF16(s string, max int) string {
	n := 0
	for i, r := range s {
		n += utf16.RuneLen(r)
		if n > max {
			return s[:i]
		}
	}
	return s
}
