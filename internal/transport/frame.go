package transport

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/adminconsole/internal/model"
	"github.com/adminconsole/internal/realtime"
)

// Команды клиента серверу.
const (
	cmdJoinThread  = "join_thread"
	cmdLeaveThread = "leave_thread"
	cmdSendMessage = "send_message"
	cmdTypingStart = "typing_start"
	cmdTypingStop  = "typing_stop"
	cmdMarkAsRead  = "mark_as_read"
)

// outgoingFrame — что консоль шлёт серверу.
type outgoingFrame struct {
	Type     string `json:"type"`
	ThreadID string `json:"threadId,omitempty"`
	Content  string `json:"content,omitempty"`
}

// incomingFrame — конверт push-события с сервера. Форма payload у каждого
// вида своя (исторически смешаны snake_case и camelCase — сохраняем как
// на проводе).
type incomingFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type newMessagePayload struct {
	Message *struct {
		ID         string    `json:"id"`
		ThreadID   string    `json:"thread_id"`
		SenderType string    `json:"sender_type"`
		Content    string    `json:"content"`
		CreatedAt  time.Time `json:"created_at"`
	} `json:"message"`
}

type newUserMessagePayload struct {
	ThreadID string `json:"threadId"`
	Message  *struct {
		ID        string    `json:"id"`
		CreatedAt time.Time `json:"created_at"`
		Content   string    `json:"content"`
	} `json:"message"`
}

type userTypingPayload struct {
	ThreadID string `json:"threadId"`
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	IsTyping bool   `json:"isTyping"`
}

type unreadCountPayload struct {
	ThreadID    string `json:"threadId"`
	UnreadCount int    `json:"unreadCount"`
}

// decodeEvent разбирает конверт в типизированное событие движка.
// Валидацию обязательных полей делает движок; здесь отбрасываются только
// события, которые не удаётся разобрать вовсе.
func decodeEvent(raw []byte) (realtime.Event, error) {
	var frame incomingFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return realtime.Event{}, fmt.Errorf("transport: envelope: %w", err)
	}

	switch frame.Type {
	case string(realtime.EventNewMessage):
		var p newMessagePayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return realtime.Event{}, fmt.Errorf("transport: new_message payload: %w", err)
		}
		if p.Message == nil {
			return realtime.Event{}, fmt.Errorf("transport: new_message without message")
		}
		return realtime.Event{
			Type: realtime.EventNewMessage,
			Message: &model.Message{
				ID:         p.Message.ID,
				ThreadID:   p.Message.ThreadID,
				SenderType: model.SenderType(p.Message.SenderType),
				Content:    p.Message.Content,
				CreatedAt:  p.Message.CreatedAt,
			},
		}, nil

	case string(realtime.EventNewUserMessage):
		var p newUserMessagePayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return realtime.Event{}, fmt.Errorf("transport: new_user_message payload: %w", err)
		}
		if p.Message == nil {
			return realtime.Event{}, fmt.Errorf("transport: new_user_message without message")
		}
		return realtime.Event{
			Type:     realtime.EventNewUserMessage,
			ThreadID: p.ThreadID,
			Message: &model.Message{
				ID:         p.Message.ID,
				ThreadID:   p.ThreadID,
				SenderType: model.SenderUser,
				Content:    p.Message.Content,
				CreatedAt:  p.Message.CreatedAt,
			},
		}, nil

	case string(realtime.EventUserTyping):
		var p userTypingPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return realtime.Event{}, fmt.Errorf("transport: user_typing payload: %w", err)
		}
		return realtime.Event{
			Type:     realtime.EventUserTyping,
			ThreadID: p.ThreadID,
			UserID:   p.UserID,
			Email:    p.Email,
			IsTyping: p.IsTyping,
		}, nil

	case string(realtime.EventUnreadCountUpdate):
		var p unreadCountPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return realtime.Event{}, fmt.Errorf("transport: unread_count_update payload: %w", err)
		}
		return realtime.Event{
			Type:        realtime.EventUnreadCountUpdate,
			ThreadID:    p.ThreadID,
			UnreadCount: p.UnreadCount,
		}, nil
	}

	return realtime.Event{}, fmt.Errorf("transport: unknown event type %q", frame.Type)
}
