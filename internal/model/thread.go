package model

import "time"

// ThreadSummary — проекция треда поддержки для списка в консоли.
// Уникальна по ID. Мутируется только движком синхронизации и локальным
// mark-as-read (сбрасывает UnreadCount в 0).
type ThreadSummary struct {
	ID                 string    `json:"id"`
	Subject            string    `json:"subject,omitempty"`
	ParticipantEmail   string    `json:"participant_email,omitempty"`
	LastMessagePreview string    `json:"last_message_preview"`
	LastMessageAt      time.Time `json:"last_message_at"`
	UnreadCount        int       `json:"unread_count"`
	CreatedAt          time.Time `json:"created_at"`
}
