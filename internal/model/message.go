package model

import "time"

type SenderType string

const (
	SenderAdmin SenderType = "admin"
	SenderUser  SenderType = "user"
)

// Message — сообщение в треде поддержки. Уникально по ID в пределах
// загруженного окна сообщений открытого треда.
type Message struct {
	ID         string     `json:"id"`
	ThreadID   string     `json:"thread_id"`
	SenderType SenderType `json:"sender_type"`
	Content    string     `json:"content"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Preview обрезает содержимое для колонки "последнее сообщение" в списке
// тредов. Обрезка по рунам, не по байтам.
func (m *Message) Preview() string {
	const max = 120
	r := []rune(m.Content)
	if len(r) <= max {
		return m.Content
	}
	return string(r[:max-1]) + "…"
}
