package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adminconsole/internal/auth"
)

// adminStub — мини-сервер с настоящей семантикой токенов: принимает только
// текущий выданный access-токен, refresh выдаёт новый и инвалидирует старый.
type adminStub struct {
	mu            sync.Mutex
	validToken    string
	refreshCalls  atomic.Int32
	refreshDenied bool
	refreshDelay  time.Duration
}

func (a *adminStub) rotate() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.validToken = "tok-" + time.Now().Format("150405.000000000")
	return a.validToken
}

func (a *adminStub) authorized(r *http.Request) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.validToken != "" && r.Header.Get("Authorization") == "Bearer "+a.validToken
}

func (a *adminStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/refresh", func(w http.ResponseWriter, r *http.Request) {
		a.refreshCalls.Add(1)
		if a.refreshDelay > 0 {
			time.Sleep(a.refreshDelay)
		}
		if a.refreshDenied {
			http.Error(w, `{"error":"refresh token rotated or expired"}`, http.StatusUnauthorized)
			return
		}
		tok := a.rotate()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]string{"role": "admin", "accessToken": tok},
		})
	})
	mux.HandleFunc("/admin/", func(w http.ResponseWriter, r *http.Request) {
		if !a.authorized(r) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"invalid token"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"path":"` + r.URL.Path + `"}}`))
	})
	return mux
}

func newStubGateway(t *testing.T, stub *adminStub) (*Gateway, *auth.Coordinator, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	client := &http.Client{Jar: jar, Timeout: 5 * time.Second}
	coord := auth.New(srv.URL+"/admin/refresh", client, 5*time.Second, nil)
	return New(srv.URL, client, coord), coord, srv
}

func TestSendPassesThrough2xx(t *testing.T) {
	stub := &adminStub{}
	gw, coord, _ := newStubGateway(t, stub)
	coord.SetToken(stub.rotate())

	body, err := gw.Send(context.Background(), "/admin/chat/threads", Options{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(body) == 0 {
		t.Fatal("Send returned empty body for 2xx")
	}
	if n := stub.refreshCalls.Load(); n != 0 {
		t.Errorf("refresh called %d times on clean request", n)
	}
}

func TestStaleTokenRefreshedAndRetriedOnce(t *testing.T) {
	stub := &adminStub{}
	gw, coord, _ := newStubGateway(t, stub)
	stub.rotate()
	coord.SetToken("stale")

	var out struct {
		Data struct {
			Path string `json:"path"`
		} `json:"data"`
	}
	if err := gw.JSON(context.Background(), "/admin/chat/threads", Options{}, &out); err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if out.Data.Path != "/admin/chat/threads" {
		t.Errorf("retried request hit %q", out.Data.Path)
	}
	if n := stub.refreshCalls.Load(); n != 1 {
		t.Errorf("refresh called %d times, want 1", n)
	}
}

func TestUnauthorizedOnRetryIsTerminal(t *testing.T) {
	var refreshes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/admin/refresh" {
			refreshes.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"data":{"role":"admin","accessToken":"fresh"}}`))
			return
		}
		// Сервер отвергает даже свежие токены.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"still unauthorized"}`))
	}))
	defer srv.Close()

	client := &http.Client{Timeout: 5 * time.Second}
	coord := auth.New(srv.URL+"/admin/refresh", client, 5*time.Second, nil)
	coord.SetToken("stale")
	gw := New(srv.URL, client, coord)

	_, err := gw.Send(context.Background(), "/admin/chat/threads", Options{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", apiErr.Status)
	}
	if apiErr.Message != "still unauthorized" {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if n := refreshes.Load(); n != 1 {
		t.Errorf("refresh called %d times, want exactly 1", n)
	}
}

func TestFailedRefreshReturnsOriginalError(t *testing.T) {
	stub := &adminStub{refreshDenied: true}
	gw, coord, _ := newStubGateway(t, stub)
	stub.rotate()
	coord.SetToken("stale")

	_, err := gw.Send(context.Background(), "/admin/chat/threads", Options{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", apiErr.Status)
	}
	if n := stub.refreshCalls.Load(); n != 1 {
		t.Errorf("refresh called %d times, want 1", n)
	}
}

func TestNon401ErrorsAreNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"thread not found"}`))
	}))
	defer srv.Close()

	coord := auth.New(srv.URL+"/admin/refresh", nil, time.Second, nil)
	gw := New(srv.URL, nil, coord)

	_, err := gw.Send(context.Background(), "/admin/chat/threads/nope", Options{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Message != "thread not found" {
		t.Errorf("got %d %q, want 404 \"thread not found\"", apiErr.Status, apiErr.Message)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("endpoint hit %d times, want 1", n)
	}
}

// Два запроса падают с 401 одновременно: refresh издаётся один раз, оба
// повтора уходят с новым токеном и оба успешны.
func TestConcurrent401sShareOneRefresh(t *testing.T) {
	// Долгий refresh гарантирует, что второй 401 застанет полёт первого.
	stub := &adminStub{refreshDelay: 200 * time.Millisecond}
	gw, coord, _ := newStubGateway(t, stub)
	stub.rotate()
	coord.SetToken("stale")

	paths := []string{"/admin/x", "/admin/y"}
	errs := make(chan error, len(paths))
	for _, p := range paths {
		go func(p string) {
			_, err := gw.Send(context.Background(), p, Options{})
			errs <- err
		}(p)
	}
	for range paths {
		if err := <-errs; err != nil {
			t.Fatalf("concurrent send: %v", err)
		}
	}
	if n := stub.refreshCalls.Load(); n != 1 {
		t.Errorf("refresh called %d times for one episode, want 1", n)
	}
}

func TestErrorMessage(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		raw         string
		want        string
	}{
		{"json error field", "application/json", `{"error":"boom"}`, "boom"},
		{"json message field", "application/json; charset=utf-8", `{"message":"nope"}`, "nope"},
		{"json without fields", "application/json", `{}`, "500 Internal Server Error"},
		{"plain text", "text/plain; charset=utf-8", "gateway timeout", "gateway timeout"},
		{"html ignored", "text/html", "<html>oops</html>", "500 Internal Server Error"},
		{"empty body", "application/json", "", "500 Internal Server Error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := errorMessage(tc.contentType, []byte(tc.raw), "500 Internal Server Error")
			if got != tc.want {
				t.Errorf("errorMessage = %q, want %q", got, tc.want)
			}
		})
	}
}
