package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"sorapipe/internal/config"
	"sorapipe/internal/notifications"
)

func TestNewServiceReturnsNoopWhenDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.Enabled = false
	svc := notifications.NewService(&cfg)
	if svc.NotifyStageCompleted(context.Background(), "blur") {
		t.Fatal("noop notifier must report false")
	}
}

func TestNewServiceReturnsNoopWithoutCredentials(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.Enabled = true
	cfg.Notifications.BotToken = ""
	cfg.Notifications.ChatID = "42"
	if notifications.NewService(&cfg).TestNotification(context.Background()) {
		t.Fatal("missing token must degrade to noop")
	}
}

func TestTelegramServicePostsForm(t *testing.T) {
	var gotPath, gotContentType string
	var gotForm url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotForm, _ = url.ParseQuery(string(body))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.Enabled = true
	cfg.Notifications.BotToken = "token123"
	cfg.Notifications.ChatID = "99"
	cfg.Notifications.APIBase = server.URL

	svc := notifications.NewService(&cfg)
	if !svc.NotifyStageFailed(context.Background(), "merge", io.ErrUnexpectedEOF) {
		t.Fatal("expected delivery success")
	}

	if gotPath != "/bottoken123/sendMessage" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotContentType != "application/x-www-form-urlencoded" {
		t.Fatalf("unexpected content type: %s", gotContentType)
	}
	if gotForm.Get("chat_id") != "99" {
		t.Fatalf("chat_id missing: %v", gotForm)
	}
	if text := gotForm.Get("text"); text == "" {
		t.Fatalf("text missing: %v", gotForm)
	}
}

func TestTelegramServiceReportsServerFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.Enabled = true
	cfg.Notifications.BotToken = "token"
	cfg.Notifications.ChatID = "1"
	cfg.Notifications.APIBase = server.URL

	if notifications.NewService(&cfg).NotifyScenarioFinished(context.Background(), true) {
		t.Fatal("5xx must report delivery failure")
	}
}

func TestTelegramServiceSurvivesDeadEndpoint(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.Enabled = true
	cfg.Notifications.BotToken = "token"
	cfg.Notifications.ChatID = "1"
	cfg.Notifications.APIBase = "http://127.0.0.1:1"

	if notifications.NewService(&cfg).NotifyScenarioStarted(context.Background(), []string{"blur"}) {
		t.Fatal("unreachable endpoint must report false, not panic")
	}
}
