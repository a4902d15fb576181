package digest

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "qctrack/pkg/logx"
)

// Sink delivers a digest somewhere a human will read it.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, s Summary) error
}

// LogSink writes the digest to the structured log.
type LogSink struct {
	log logx.Logger
}

func NewLogSink(log logx.Logger) *LogSink {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogSink{log: log}
}

func (l *LogSink) Name() string { return "log" }

func (l *LogSink) Deliver(_ context.Context, s Summary) error {
	l.log.Info("qc digest",
		logx.Stringer("today", s.Today),
		logx.Int("overdue", s.Overdue),
		logx.Int("hidden", s.Hidden),
		logx.Bool("degraded", s.Degraded),
		logx.Strings("stale_machines", s.StaleMachines),
		logx.String("text", s.Text()),
	)
	return nil
}

type TelegramConfig struct {
	Token    string
	ChatID   int64
	ThreadID int
	// URL overrides the Bot API endpoint (tests, local bot API servers).
	URL    string
	Client *http.Client
}

// TelegramSink posts the digest to a chat or forum topic.
type TelegramSink struct {
	bot    *tele.Bot
	chat   *tele.Chat
	thread int
}

func NewTelegramSink(cfg TelegramConfig) (*TelegramSink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.URL,
		Token:   cfg.Token,
		Client:  client,
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return &TelegramSink{bot: b, chat: &tele.Chat{ID: cfg.ChatID}, thread: cfg.ThreadID}, nil
}

func (t *TelegramSink) Name() string { return "telegram" }

func (t *TelegramSink) Deliver(ctx context.Context, s Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.bot.Send(t.chat, s.HTML(), &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		ThreadID:              t.thread,
	})
	return err
}
