package stubserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/adminconsole/internal/model"
)

// seed наполняет стенд парой тредов, чтобы консоль было чем кормить сразу
// после login.
func (s *Server) seed() {
	now := time.Now().UTC()
	seedThreads := []struct {
		id, email, subject, last string
		unread                   int
		age                      time.Duration
	}{
		{"t-ivanova", "ivanova@example.com", "Вопрос по заказу", "Добрый день! Где мой заказ?", 1, 2 * time.Hour},
		{"t-petrov", "petrov@example.com", "Возврат товара", "Спасибо, понял.", 0, 26 * time.Hour},
	}
	for _, t := range seedThreads {
		at := now.Add(-t.age)
		s.threads[t.id] = &model.ThreadSummary{
			ID:                 t.id,
			Subject:            t.subject,
			ParticipantEmail:   t.email,
			LastMessagePreview: t.last,
			LastMessageAt:      at,
			UnreadCount:        t.unread,
			CreatedAt:          at.Add(-time.Hour),
		}
		s.messages[t.id] = []model.Message{{
			ID:         uuid.New().String(),
			ThreadID:   t.id,
			SenderType: model.SenderUser,
			Content:    t.last,
			CreatedAt:  at,
		}}
	}
}

func (s *Server) handleThreads(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := make([]model.ThreadSummary, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, *t)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	s.mu.Lock()
	msgs, ok := s.messages[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "thread not found")
		return
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.markRead(id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) markRead(threadID string) {
	s.mu.Lock()
	t, ok := s.threads[threadID]
	if ok {
		t.UnreadCount = 0
	}
	s.mu.Unlock()
	if ok {
		s.EmitUnread(threadID, 0)
	}
}

// addMessage сохраняет сообщение и обновляет сводку треда.
func (s *Server) addMessage(threadID, content string, sender model.SenderType) model.Message {
	m := model.Message{
		ID:         uuid.New().String(),
		ThreadID:   threadID,
		SenderType: sender,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
	s.mu.Lock()
	t, ok := s.threads[threadID]
	if !ok {
		t = &model.ThreadSummary{ID: threadID, CreatedAt: m.CreatedAt}
		s.threads[threadID] = t
	}
	s.messages[threadID] = append(s.messages[threadID], m)
	t.LastMessagePreview = m.Preview()
	t.LastMessageAt = m.CreatedAt
	if sender == model.SenderUser {
		t.UnreadCount++
	}
	s.mu.Unlock()
	return m
}

// --- Эмиттеры push-событий (используются хабом, симулятором и тестами) ---

type wireMessage struct {
	ID         string    `json:"id"`
	ThreadID   string    `json:"thread_id"`
	SenderType string    `json:"sender_type"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

type wireUserMessage struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Content   string    `json:"content"`
}

// EmitUserMessage имитирует входящее сообщение пользователя. Как и боевой
// сервер, шлёт обе формы — new_message и new_user_message — для одного
// сообщения: клиент обязан пережить двойную доставку.
func (s *Server) EmitUserMessage(threadID, content string) model.Message {
	m := s.addMessage(threadID, content, model.SenderUser)
	s.broadcast("new_message", map[string]any{
		"message": wireMessage{
			ID:         m.ID,
			ThreadID:   m.ThreadID,
			SenderType: string(m.SenderType),
			Content:    m.Content,
			CreatedAt:  m.CreatedAt,
		},
	})
	s.broadcast("new_user_message", map[string]any{
		"threadId": threadID,
		"message": wireUserMessage{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			Content:   m.Content,
		},
	})
	return m
}

// EmitTyping имитирует сигнал набора текста со стороны пользователя.
func (s *Server) EmitTyping(threadID, userID, email string, isTyping bool) {
	s.broadcast("user_typing", map[string]any{
		"threadId": threadID,
		"userId":   userID,
		"email":    email,
		"isTyping": isTyping,
	})
}

// EmitUnread шлёт авторитетный счётчик непрочитанных.
func (s *Server) EmitUnread(threadID string, count int) {
	s.broadcast("unread_count_update", map[string]any{
		"threadId":    threadID,
		"unreadCount": count,
	})
}
