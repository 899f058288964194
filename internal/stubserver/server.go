// Package stubserver — встроенный стенд admin API для режима -dev и
// интеграционных тестов: login с refresh-cookie, ротация refresh-токена,
// JWT-доступ и push-канал чата. Повторяет контракт удалённого сервиса,
// данные держит в памяти (персистентность — зона внешнего сервиса данных).
package stubserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/adminconsole/internal/config"
	"github.com/adminconsole/internal/logger"
	"github.com/adminconsole/internal/model"
	"github.com/adminconsole/internal/stubserver/store"
)

const refreshCookie = "admin_refresh"

// Учётные данные стенда. Логин принимает только их.
const (
	AdminEmail    = "admin@console.local"
	AdminPassword = "admin-dev"
)

type Server struct {
	store     store.Store
	jwtSecret []byte
	accessTTL time.Duration
	cors      string

	mu       sync.Mutex
	threads  map[string]*model.ThreadSummary
	messages map[string][]model.Message
	clients  map[*wsClient]struct{}
}

func New(cfg config.StubConfig, st store.Store) *Server {
	ttl := time.Duration(cfg.AccessTokenTTLSec) * time.Second
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	s := &Server{
		store:     st,
		jwtSecret: []byte(cfg.JWTSecret),
		accessTTL: ttl,
		cors:      cfg.CORSAllowedOrigins,
		threads:   make(map[string]*model.ThreadSummary),
		messages:  make(map[string][]model.Message),
		clients:   make(map[*wsClient]struct{}),
	}
	s.seed()
	return s
}

// Router собирает маршруты стенда.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.cors},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Post("/admin/login", s.handleLogin)
	r.Post("/admin/refresh", s.handleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Get("/admin/chat/threads", s.handleThreads)
		r.Get("/admin/chat/threads/{id}/messages", s.handleMessages)
		r.Post("/admin/chat/threads/{id}/read", s.handleMarkRead)
		r.Get("/admin/chat/ws", s.handleWS)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("stub: writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type sessionData struct {
	Role        string `json:"role"`
	AccessToken string `json:"accessToken"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email != AdminEmail || req.Password != AdminPassword {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	sessionID := uuid.New().String()
	if err := s.rotate(r.Context(), w, sessionID); err != nil {
		writeError(w, http.StatusInternalServerError, "session store unavailable")
		return
	}
	tok, err := s.mintAccessToken()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token mint failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]sessionData{"data": {Role: model.RoleAdmin, AccessToken: tok}})
}

// handleRefresh проверяет refresh-cookie против хранилища и ротирует её.
// Повторное предъявление уже ротированного токена — 401: именно это
// серверное свойство делает параллельные refresh на клиенте фатальными.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(refreshCookie)
	if err != nil || c.Value == "" {
		writeError(w, http.StatusUnauthorized, "no refresh token")
		return
	}
	sessionID, token, ok := strings.Cut(c.Value, ".")
	if !ok {
		writeError(w, http.StatusUnauthorized, "malformed refresh token")
		return
	}
	current, err := s.store.GetRefreshToken(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session store unavailable")
		return
	}
	if current == "" || current != token {
		// Токен уже ротирован или сессия истекла.
		_ = s.store.DeleteRefreshToken(r.Context(), sessionID)
		writeError(w, http.StatusUnauthorized, "refresh token rotated or expired")
		return
	}

	if err := s.rotate(r.Context(), w, sessionID); err != nil {
		writeError(w, http.StatusInternalServerError, "session store unavailable")
		return
	}
	tok, err := s.mintAccessToken()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token mint failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]sessionData{"data": {Role: model.RoleAdmin, AccessToken: tok}})
}

// rotate выписывает новый refresh-токен сессии и кладёт его в cookie.
func (s *Server) rotate(ctx context.Context, w http.ResponseWriter, sessionID string) error {
	token := uuid.New().String()
	if err := s.store.SetRefreshToken(ctx, sessionID, token); err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    sessionID + "." + token,
		Path:     "/admin",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(store.RefreshTokenTTL / time.Second),
	})
	return nil
}

func (s *Server) mintAccessToken() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   "admin",
		"email": AdminEmail,
		"role":  model.RoleAdmin,
		"iat":   jwt.NewNumericDate(now),
		"exp":   jwt.NewNumericDate(now.Add(s.accessTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

// requireAdmin проверяет bearer-токен (HS256, роль admin). Токен берётся
// из заголовка или, для WebSocket, из query.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" || raw == r.Header.Get("Authorization") {
			raw = r.URL.Query().Get("token")
		}
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "missing token")
			return
		}
		parsed, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			return s.jwtSecret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !parsed.Valid {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		claims, ok := parsed.Claims.(jwt.MapClaims)
		if !ok || claims["role"] != model.RoleAdmin {
			writeError(w, http.StatusUnauthorized, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
