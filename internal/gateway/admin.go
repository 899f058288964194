package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/adminconsole/internal/model"
)

// Типизированные обёртки над Send для операций консоли, которые питают
// начальную загрузку реестра тредов и окна сообщений.

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionEnvelope struct {
	Data struct {
		Role        string `json:"role"`
		AccessToken string `json:"accessToken"`
	} `json:"data"`
}

// Login выполняет вход и возвращает access-токен (refresh-cookie сервер
// кладёт в jar сам). Пустой токен или не-admin роль — *APIError 403.
func (g *Gateway) Login(ctx context.Context, email, password string) (string, error) {
	var env sessionEnvelope
	err := g.JSON(ctx, "/admin/login", Options{
		Method: http.MethodPost,
		Body:   loginRequest{Email: email, Password: password},
	}, &env)
	if err != nil {
		return "", err
	}
	if env.Data.Role != model.RoleAdmin || env.Data.AccessToken == "" {
		return "", &APIError{Status: http.StatusForbidden, Message: "admin role required"}
	}
	return env.Data.AccessToken, nil
}

type threadsEnvelope struct {
	Data []model.ThreadSummary `json:"data"`
}

// LoadThreads загружает полный список тредов (перечитывается целиком —
// локально треды не удаляются).
func (g *Gateway) LoadThreads(ctx context.Context) ([]model.ThreadSummary, error) {
	var env threadsEnvelope
	if err := g.JSON(ctx, "/admin/chat/threads", Options{}, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

type messagesEnvelope struct {
	Data []model.Message `json:"data"`
}

// LoadMessages загружает окно сообщений открытого треда (не всю историю).
func (g *Gateway) LoadMessages(ctx context.Context, threadID string, limit int) ([]model.Message, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var env messagesEnvelope
	err := g.JSON(ctx, "/admin/chat/threads/"+threadID+"/messages", Options{Query: q}, &env)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

// MarkThreadRead подтверждает прочтение треда на сервере.
func (g *Gateway) MarkThreadRead(ctx context.Context, threadID string) error {
	return g.JSON(ctx, "/admin/chat/threads/"+threadID+"/read", Options{Method: http.MethodPost}, nil)
}
