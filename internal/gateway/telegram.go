package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"duebell/pkg/logx"
)

var errTelegramNotReady = errors.New("telegram bot not initialized (permission not requested)")

// TelegramConfig configures the telegram delivery driver.
type TelegramConfig struct {
	Token  string
	ChatID int64
	// Timeout bounds the initial bot handshake.
	Timeout time.Duration
}

// telegramDriver delivers alerts as messages to one chat.
//
// The consent flow maps onto the bot handshake: the driver is supported
// when a token and chat are configured, and granted once getMe succeeded.
// Same-tag redelivery edits the previous message in place.
type telegramDriver struct {
	cfg TelegramConfig
	log logx.Logger

	mu  sync.Mutex
	bot *tele.Bot
}

// NewTelegram returns a send-only telegram driver. The bot handshake is
// deferred to RequestPermission so construction never touches the network.
func NewTelegram(cfg TelegramConfig, log logx.Logger) Driver {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &telegramDriver{cfg: cfg, log: log}
}

func (d *telegramDriver) Name() string { return "telegram" }

func (d *telegramDriver) Supported() bool {
	return strings.TrimSpace(d.cfg.Token) != "" && d.cfg.ChatID != 0
}

func (d *telegramDriver) Permission() PermissionState {
	if !d.Supported() {
		return PermissionDenied
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bot != nil {
		return PermissionGranted
	}
	return PermissionDefault
}

func (d *telegramDriver) RequestPermission(ctx context.Context) PermissionState {
	_ = ctx // telebot's handshake does not take a context
	if !d.Supported() {
		return PermissionDenied
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bot != nil {
		return PermissionGranted
	}

	b, err := tele.NewBot(tele.Settings{
		Token:  strings.TrimSpace(d.cfg.Token),
		Client: &http.Client{Timeout: d.cfg.Timeout},
	})
	if err != nil {
		// Still "default": a later request may succeed (transient
		// network failure), so don't latch denied.
		d.log.Warn("telegram handshake failed", logx.Err(err))
		return PermissionDefault
	}
	d.bot = b
	d.log.Info("telegram ready", logx.String("bot", b.Me.Username), logx.Int64("chat_id", d.cfg.ChatID))
	return PermissionGranted
}

func (d *telegramDriver) Send(ctx context.Context, m Message) (string, error) {
	_ = ctx
	d.mu.Lock()
	bot := d.bot
	d.mu.Unlock()
	if bot == nil {
		return "", errTelegramNotReady
	}

	text := m.Title
	if m.Body != "" {
		text += "\n" + m.Body
	}

	opts := &tele.SendOptions{DisableWebPagePreview: true}

	// Edit-in-place for same-tag redelivery; fall back to a fresh send
	// when the old message is gone.
	if m.ReplaceID != "" {
		msg, err := bot.Edit(tele.StoredMessage{MessageID: m.ReplaceID, ChatID: d.cfg.ChatID}, text, opts)
		if err == nil {
			return strconv.Itoa(msg.ID), nil
		}
		d.log.Debug("telegram edit failed; sending fresh", logx.String("replace_id", m.ReplaceID), logx.Err(err))
	}

	msg, err := bot.Send(tele.ChatID(d.cfg.ChatID), text, opts)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(msg.ID), nil
}
