// Package telegram implements the Notifier port over the Telegram Bot API.
// Rate limiting (per-zone cooldown) and quiet hours live here: the pipeline
// reports every event and this adapter decides what a human actually sees.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/hearthwatch/internal/ports/secondary"
)

// Ensure Notifier implements the interface
var _ secondary.Notifier = (*Notifier)(nil)

const defaultBaseURL = "https://api.telegram.org"

// Config configures the Telegram notifier.
type Config struct {
	Token   string
	ChatID  string
	BaseURL string // override for tests; empty means the real API

	// Cooldown is the minimum gap between override alerts for the same
	// zone. Clearances and system messages are not rate limited.
	Cooldown time.Duration

	// Quiet hours suppress all notifications between QuietStart and
	// QuietEnd (hours of day, wrapping midnight).
	QuietHoursEnabled bool
	QuietStart        int
	QuietEnd          int
}

// Notifier delivers alerts to a Telegram chat.
type Notifier struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time // zone id -> last override alert
}

// NewNotifier creates a Telegram notifier.
func NewNotifier(cfg Config, logger *zap.Logger) *Notifier {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Notifier{
		cfg:      cfg,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
		now:      time.Now,
		lastSent: make(map[string]time.Time),
	}
}

// NotifyOverride sends an override alert unless the zone is in cooldown or
// quiet hours are active. Suppression is not an error.
func (n *Notifier) NotifyOverride(ctx context.Context, a secondary.Alert) error {
	now := n.now()
	if n.inQuietHours(now) {
		n.logger.Info("alert suppressed by quiet hours", zap.String("zone", a.ZoneID))
		return nil
	}

	n.mu.Lock()
	if last, ok := n.lastSent[a.ZoneID]; ok && now.Sub(last) < n.cfg.Cooldown {
		n.mu.Unlock()
		n.logger.Info("alert suppressed by cooldown",
			zap.String("zone", a.ZoneID),
			zap.Duration("since_last", now.Sub(last)))
		return nil
	}
	n.lastSent[a.ZoneID] = now
	n.mu.Unlock()

	icon := "🔧"
	if a.Suspicious {
		icon = "⚠️"
	}
	text := fmt.Sprintf("%s <b>Override: %s</b>\nTarget set to %.1f°C (current %.1f°C)\nCause: <code>%s</code> (%s confidence)\n%s",
		icon, a.ZoneName, a.TriggerTemp, a.CurrentTemp, a.Cause, a.Confidence, a.Notes)
	return n.send(ctx, text)
}

// NotifyCleared reports an override returning to schedule.
func (n *Notifier) NotifyCleared(ctx context.Context, c secondary.Clearance) error {
	if n.inQuietHours(n.now()) {
		n.logger.Info("clearance suppressed by quiet hours", zap.String("zone", c.ZoneID))
		return nil
	}
	text := fmt.Sprintf("✅ <b>%s back on schedule</b>\nTarget %.1f°C after %s of override",
		c.ZoneName, c.EndTemp, c.Duration.Round(time.Minute))
	return n.send(ctx, text)
}

// NotifySystem sends an operational message. Never rate limited; these are
// rare and always actionable.
func (n *Notifier) NotifySystem(ctx context.Context, message string) error {
	if n.inQuietHours(n.now()) {
		n.logger.Info("system message suppressed by quiet hours")
		return nil
	}
	return n.send(ctx, "ℹ️ "+message)
}

func (n *Notifier) inQuietHours(now time.Time) bool {
	if !n.cfg.QuietHoursEnabled {
		return false
	}
	h := now.Hour()
	start, end := n.cfg.QuietStart, n.cfg.QuietEnd
	if start <= end {
		return h >= start && h < end
	}
	// window wraps midnight, e.g. 23..7
	return h >= start || h < end
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (n *Notifier) send(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:    n.cfg.ChatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.cfg.BaseURL, n.cfg.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram api returned %d: %s", resp.StatusCode, detail)
	}
	return nil
}
