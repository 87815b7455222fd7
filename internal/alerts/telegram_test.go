package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"rsibot/internal/config"
)

func TestSendDisabledIsNoop(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	tg := newTelegram(config.TelegramConfig{Enabled: false}, server.URL, server.Client())
	if err := tg.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("disabled send must not error: %v", err)
	}
	if called {
		t.Fatalf("disabled send must not hit the network")
	}
}

func TestSendMissingConfig(t *testing.T) {
	tg := newTelegram(config.TelegramConfig{Enabled: true}, telegramBaseURL, nil)
	if err := tg.Send(context.Background(), "hello"); err == nil {
		t.Fatalf("expected error without token and chat id")
	}
}

func TestSendEmptyMessage(t *testing.T) {
	tg := newTelegram(config.TelegramConfig{Enabled: true, Token: "tok", ChatID: "42"}, telegramBaseURL, nil)
	if err := tg.Send(context.Background(), "   "); err == nil {
		t.Fatalf("expected error for empty message")
	}
}

func TestSendSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottok/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode: %v", err)
		}
		if payload["chat_id"] != "42" || payload["text"] != "BUY ETHUSDT" {
			t.Errorf("unexpected payload %v", payload)
		}
		w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	defer server.Close()

	tg := newTelegram(config.TelegramConfig{Enabled: true, Token: "tok", ChatID: "42"}, server.URL, server.Client())
	if err := tg.Send(context.Background(), "BUY ETHUSDT"); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func TestSendHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"ok":false,"description":"Unauthorized"}`))
	}))
	defer server.Close()

	tg := newTelegram(config.TelegramConfig{Enabled: true, Token: "bad", ChatID: "42"}, server.URL, server.Client())
	err := tg.Send(context.Background(), "hello")
	if err == nil {
		t.Fatalf("expected error on http 401")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSendAPIRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer server.Close()

	tg := newTelegram(config.TelegramConfig{Enabled: true, Token: "tok", ChatID: "0"}, server.URL, server.Client())
	err := tg.Send(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected rejection description, got %v", err)
	}
}
