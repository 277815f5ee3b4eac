// Package telegram sends HTML messages and photos through a Telegram bot.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v3"

	"github.com/newthinker/aurum/internal/core"
	"github.com/newthinker/aurum/internal/notifier"
)

// Config holds the bot settings.
type Config struct {
	BotToken string
	ChatID   string
	// APIURL defaults to the public Bot API.
	APIURL string
	// RatePerMinute caps outgoing calls; zero means 20.
	RatePerMinute int
	Client        *http.Client
}

// chat is a numeric id or an @channel name.
type chat string

func (c chat) Recipient() string { return string(c) }

// Telegram implements the Notifier interface for the Telegram Bot API.
// The bot is offline: it never polls for updates.
type Telegram struct {
	bot     *tele.Bot
	chat    chat
	limiter *rate.Limiter
}

// New creates a new Telegram notifier
func New(cfg Config) (*Telegram, error) {
	if cfg.BotToken == "" {
		return nil, core.WrapError(core.ErrNotifierDisabled, fmt.Errorf("telegram: bot_token is required"))
	}
	if cfg.ChatID == "" {
		return nil, core.WrapError(core.ErrNotifierDisabled, fmt.Errorf("telegram: chat_id is required"))
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 20
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}

	bot, err := tele.NewBot(tele.Settings{
		URL:       cfg.APIURL,
		Token:     cfg.BotToken,
		Offline:   true,
		ParseMode: tele.ModeHTML,
		Client:    cfg.Client,
	})
	if err != nil {
		return nil, core.WrapError(core.ErrNotifierFailed, fmt.Errorf("telegram: %w", err))
	}

	return &Telegram{
		bot:     bot,
		chat:    chat(cfg.ChatID),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), 3),
	}, nil
}

func (t *Telegram) Name() string {
	return "telegram"
}

// SendMessage sends an HTML message without link previews.
func (t *Telegram) SendMessage(ctx context.Context, text string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := t.bot.Send(t.chat, text, tele.ModeHTML, tele.NoPreview); err != nil {
		return core.WrapError(core.ErrNotifierFailed, fmt.Errorf("telegram: failed to send message: %w", err))
	}
	return nil
}

// SendPhoto sends an image by URL. The caption is cut to the API limit.
func (t *Telegram) SendPhoto(ctx context.Context, photoURL, caption string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	photo := &tele.Photo{
		File:    tele.FromURL(photoURL),
		Caption: notifier.Truncate(caption, notifier.CaptionLimit),
	}
	if _, err := t.bot.Send(t.chat, photo, tele.ModeHTML); err != nil {
		return core.WrapError(core.ErrNotifierFailed, fmt.Errorf("telegram: failed to send photo: %w", err))
	}
	return nil
}
