// Package notify delivers alerts about shifts to the people running them.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Level orders alerts by urgency.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Alert is one notification.
type Alert struct {
	Level   Level
	Title   string
	Body    string
	ShiftID string
	At      time.Time
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// Multi fans an alert out to every notifier and joins their errors.
type Multi []Notifier

// Notify delivers a to every notifier, even after one fails.
func (m Multi) Notify(ctx context.Context, a Alert) error {
	if a.At.IsZero() {
		a.At = time.Now().UTC()
	}
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes alerts as structured log records.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs a at a level matching its urgency.
func (l LogNotifier) Notify(ctx context.Context, a Alert) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lvl := slog.LevelInfo
	switch a.Level {
	case LevelWarning:
		lvl = slog.LevelWarn
	case LevelCritical:
		lvl = slog.LevelError
	}
	logger.Log(ctx, lvl, a.Title, "shift", a.ShiftID, "body", a.Body)
	return nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// FileNotifier drops every alert as a markdown file into a directory, where
// operators and other tools can pick them up.
type FileNotifier struct {
	Dir string
}

// Notify writes a to <Dir>/<timestamp>-<level>-<title>.md.
func (f FileNotifier) Notify(_ context.Context, a Alert) error {
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return fmt.Errorf("create alerts dir: %w", err)
	}
	at := a.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(a.Title), "-"), "-")
	if len(slug) > 40 {
		slug = slug[:40]
	}
	name := fmt.Sprintf("%s-%s-%s.md", at.Format("20060102T150405.000000000"), a.Level, slug)

	var b strings.Builder
	fmt.Fprintf(&b, "# [%s] %s\n\n", strings.ToUpper(string(a.Level)), a.Title)
	if a.ShiftID != "" {
		fmt.Fprintf(&b, "- Shift: `%s`\n", a.ShiftID)
	}
	fmt.Fprintf(&b, "- Time: %s\n\n%s\n", at.Format(time.RFC3339), a.Body)

	path := filepath.Join(f.Dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write alert: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write alert: %w", err)
	}
	return nil
}

// TelegramNotifier sends alerts to one Telegram chat. The bot is connected
// on first use.
type TelegramNotifier struct {
	token    string
	chatID   int64
	minLevel Level

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// NewTelegramNotifier creates a notifier for chatID. Alerts below minLevel
// are dropped.
func NewTelegramNotifier(token string, chatID int64, minLevel Level) *TelegramNotifier {
	return &TelegramNotifier{token: token, chatID: chatID, minLevel: minLevel}
}

func rank(l Level) int {
	switch l {
	case LevelCritical:
		return 2
	case LevelWarning:
		return 1
	default:
		return 0
	}
}

// Notify sends a as a Markdown message.
func (t *TelegramNotifier) Notify(_ context.Context, a Alert) error {
	if rank(a.Level) < rank(t.minLevel) {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot == nil {
		bot, err := tgbotapi.NewBotAPI(t.token)
		if err != nil {
			return fmt.Errorf("connect telegram bot: %w", err)
		}
		t.bot = bot
	}

	text := fmt.Sprintf("*%s* %s", strings.ToUpper(string(a.Level)), tgbotapi.EscapeText(tgbotapi.ModeMarkdown, a.Title))
	if a.ShiftID != "" {
		text += "\nshift `" + a.ShiftID + "`"
	}
	if a.Body != "" {
		text += "\n" + tgbotapi.EscapeText(tgbotapi.ModeMarkdown, a.Body)
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram alert: %w", err)
	}
	return nil
}

// Discard drops every alert.
type Discard struct{}

// Notify does nothing.
func (Discard) Notify(context.Context, Alert) error { return nil }
