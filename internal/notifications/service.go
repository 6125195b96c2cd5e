package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sorapipe/internal/config"
)

const (
	userAgent   = "Sorapipe/0.1.0"
	sendTimeout = 5 * time.Second
)

// Service defines the notification surface exposed to pipeline components.
// Every method reports delivery success and never fails the caller.
type Service interface {
	NotifyScenarioStarted(ctx context.Context, steps []string) bool
	NotifyScenarioFinished(ctx context.Context, ok bool) bool
	NotifyStageCompleted(ctx context.Context, stage string) bool
	NotifyStageFailed(ctx context.Context, stage string, err error) bool
	TestNotification(ctx context.Context) bool
}

// NewService builds a Telegram-backed notifier when configured; disabled or
// incomplete configuration yields a no-op implementation.
func NewService(cfg *config.Config) Service {
	n := cfg.Notifications
	if !n.Enabled || strings.TrimSpace(n.BotToken) == "" || strings.TrimSpace(n.ChatID) == "" {
		return noopService{}
	}
	base := strings.TrimRight(strings.TrimSpace(n.APIBase), "/")
	return &telegramService{
		endpoint: fmt.Sprintf("%s/bot%s/sendMessage", base, strings.TrimSpace(n.BotToken)),
		chatID:   strings.TrimSpace(n.ChatID),
		client:   &http.Client{Timeout: sendTimeout},
	}
}

type telegramService struct {
	endpoint string
	chatID   string
	client   *http.Client
}

func (t *telegramService) NotifyScenarioStarted(ctx context.Context, steps []string) bool {
	return t.send(ctx, fmt.Sprintf("Pipeline started: %s", strings.Join(steps, " → ")))
}

func (t *telegramService) NotifyScenarioFinished(ctx context.Context, ok bool) bool {
	if ok {
		return t.send(ctx, "Pipeline finished: all stages succeeded")
	}
	return t.send(ctx, "Pipeline aborted: a stage failed")
}

func (t *telegramService) NotifyStageCompleted(ctx context.Context, stage string) bool {
	return t.send(ctx, fmt.Sprintf("Stage complete: %s", strings.TrimSpace(stage)))
}

func (t *telegramService) NotifyStageFailed(ctx context.Context, stage string, err error) bool {
	detail := "unknown"
	if err != nil {
		detail = strings.TrimSpace(err.Error())
	}
	return t.send(ctx, fmt.Sprintf("Stage failed: %s: %s", strings.TrimSpace(stage), detail))
}

func (t *telegramService) TestNotification(ctx context.Context) bool {
	return t.send(ctx, "Notification system test")
}

func (t *telegramService) send(ctx context.Context, text string) bool {
	if t == nil || t.client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode < 300
}

type noopService struct{}

func (noopService) NotifyScenarioStarted(context.Context, []string) bool  { return false }
func (noopService) NotifyScenarioFinished(context.Context, bool) bool     { return false }
func (noopService) NotifyStageCompleted(context.Context, string) bool     { return false }
func (noopService) NotifyStageFailed(context.Context, string, error) bool { return false }
func (noopService) TestNotification(context.Context) bool                 { return false }
