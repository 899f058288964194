package realtime

import "github.com/adminconsole/internal/model"

type EventType string

const (
	EventNewMessage        EventType = "new_message"
	EventNewUserMessage    EventType = "new_user_message"
	EventUserTyping        EventType = "user_typing"
	EventUnreadCountUpdate EventType = "unread_count_update"
)

// Event — размеченное объединение четырёх видов push-событий. Поля
// заполняются по виду события; движок отбрасывает события без
// обязательных полей, не прерывая цикл.
type Event struct {
	Type EventType

	// new_message / new_user_message
	Message *model.Message

	// new_user_message / user_typing / unread_count_update
	ThreadID string

	// user_typing
	UserID   string
	Email    string
	IsTyping bool

	// unread_count_update
	UnreadCount int
}
