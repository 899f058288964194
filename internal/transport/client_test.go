package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/adminconsole/internal/auth"
	"github.com/adminconsole/internal/config"
	"github.com/adminconsole/internal/model"
	"github.com/adminconsole/internal/realtime"
	"github.com/adminconsole/internal/stubserver"
	"github.com/adminconsole/internal/stubserver/store"
)

func startStub(t *testing.T) (*stubserver.Server, *httptest.Server, string) {
	t.Helper()
	s := stubserver.New(config.StubConfig{
		CORSAllowedOrigins: "*",
		JWTSecret:          "test-secret",
		AccessTokenTTLSec:  60,
	}, store.NewMemory())
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)

	body, _ := json.Marshal(map[string]string{
		"email":    stubserver.AdminEmail,
		"password": stubserver.AdminPassword,
	})
	resp, err := http.Post(srv.URL+"/admin/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var env struct {
		Data struct {
			AccessToken string `json:"accessToken"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	if env.Data.AccessToken == "" {
		t.Fatal("login returned empty token")
	}
	return s, srv, env.Data.AccessToken
}

func connectClient(t *testing.T, srv *httptest.Server, token string) *Client {
	t.Helper()
	coord := auth.New(srv.URL+"/admin/refresh", nil, time.Second, nil)
	coord.SetToken(token)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/admin/chat/ws"
	c := NewClient(wsURL, coord)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		c.Close()
		c.Wait()
	})
	return c
}

func nextEvent(t *testing.T, c *Client) realtime.Event {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		if !ok {
			t.Fatal("events channel closed")
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return realtime.Event{}
}

func TestConnectRejectedWithoutToken(t *testing.T) {
	_, srv, _ := startStub(t)
	coord := auth.New(srv.URL+"/admin/refresh", nil, time.Second, nil)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/admin/chat/ws"
	c := NewClient(wsURL, coord)
	if err := c.Connect(context.Background()); err == nil {
		c.Close()
		c.Wait()
		t.Fatal("Connect succeeded without token")
	}
}

func TestUserMessageDeliveredInBothForms(t *testing.T) {
	stub, srv, token := startStub(t)
	c := connectClient(t, srv, token)

	// Регистрация клиента в хабе асинхронна относительно апгрейда.
	time.Sleep(100 * time.Millisecond)
	stub.EmitUserMessage("t-ivanova", "где мой заказ?")

	first := nextEvent(t, c)
	if first.Type != realtime.EventNewMessage {
		t.Fatalf("first event = %q, want new_message", first.Type)
	}
	if first.Message == nil || first.Message.ThreadID != "t-ivanova" ||
		first.Message.SenderType != model.SenderUser {
		t.Fatalf("first message = %+v", first.Message)
	}

	second := nextEvent(t, c)
	if second.Type != realtime.EventNewUserMessage {
		t.Fatalf("second event = %q, want new_user_message", second.Type)
	}
	if second.ThreadID != "t-ivanova" || second.Message == nil ||
		second.Message.ID != first.Message.ID {
		t.Fatalf("second event = %+v", second)
	}
}

func TestSendMessageEchoedAsAdminEvent(t *testing.T) {
	_, srv, token := startStub(t)
	c := connectClient(t, srv, token)
	time.Sleep(100 * time.Millisecond)

	c.JoinThread("t-petrov")
	c.SendMessage("t-petrov", "Здравствуйте! Чем помочь?")

	ev := nextEvent(t, c)
	if ev.Type != realtime.EventNewMessage {
		t.Fatalf("event = %q, want new_message", ev.Type)
	}
	if ev.Message.SenderType != model.SenderAdmin || ev.Message.Content != "Здравствуйте! Чем помочь?" {
		t.Fatalf("message = %+v", ev.Message)
	}
	c.LeaveThread("t-petrov")
}

func TestMarkAsReadTriggersUnreadUpdate(t *testing.T) {
	stub, srv, token := startStub(t)
	c := connectClient(t, srv, token)
	time.Sleep(100 * time.Millisecond)

	stub.EmitUserMessage("t-petrov", "ещё вопрос")
	nextEvent(t, c) // new_message
	nextEvent(t, c) // new_user_message

	c.MarkAsRead("t-petrov")

	ev := nextEvent(t, c)
	if ev.Type != realtime.EventUnreadCountUpdate {
		t.Fatalf("event = %q, want unread_count_update", ev.Type)
	}
	if ev.ThreadID != "t-petrov" || ev.UnreadCount != 0 {
		t.Fatalf("event = %+v", ev)
	}
}

func TestTypingCommandBroadcast(t *testing.T) {
	_, srv, token := startStub(t)
	c := connectClient(t, srv, token)
	time.Sleep(100 * time.Millisecond)

	c.StartTyping("t-ivanova")

	ev := nextEvent(t, c)
	if ev.Type != realtime.EventUserTyping || !ev.IsTyping || ev.ThreadID != "t-ivanova" {
		t.Fatalf("event = %+v", ev)
	}

	c.StopTyping("t-ivanova")
	ev = nextEvent(t, c)
	if ev.Type != realtime.EventUserTyping || ev.IsTyping {
		t.Fatalf("event = %+v", ev)
	}
}

func TestCloseShutsDownPumps(t *testing.T) {
	_, srv, token := startStub(t)
	c := connectClient(t, srv, token)

	c.Close()
	done := make(chan struct{})
	go func() {
		c.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("pumps did not exit after Close")
	}

	// Канал событий закрыт — движок завершит Run сам.
	deadline := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-c.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("events channel not closed")
		}
	}
}
