// Package registry — in-memory проекция тредов поддержки (id → сводка).
// Писатели: движок синхронизации и локальный mark-as-read; читатели — слой
// отображения через Snapshot.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/adminconsole/internal/model"
)

type ThreadRegistry struct {
	mu      sync.RWMutex
	threads map[string]*model.ThreadSummary
}

func New() *ThreadRegistry {
	return &ThreadRegistry{threads: make(map[string]*model.ThreadSummary)}
}

// Replace целиком заменяет набор тредов (начальная загрузка или перечитка).
// Только так треды исчезают: локального удаления нет.
func (r *ThreadRegistry) Replace(list []model.ThreadSummary) {
	next := make(map[string]*model.ThreadSummary, len(list))
	for i := range list {
		t := list[i]
		if t.ID == "" {
			continue
		}
		next[t.ID] = &t
	}
	r.mu.Lock()
	r.threads = next
	r.mu.Unlock()
}

// Get возвращает копию сводки треда.
func (r *ThreadRegistry) Get(id string) (model.ThreadSummary, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.threads[id]
	if !ok {
		return model.ThreadSummary{}, false
	}
	return *t, true
}

// Snapshot возвращает копии всех сводок, свежие сверху.
func (r *ThreadRegistry) Snapshot() []model.ThreadSummary {
	r.mu.RLock()
	out := make([]model.ThreadSummary, 0, len(r.threads))
	for _, t := range r.threads {
		out = append(out, *t)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].LastMessageAt.After(out[j].LastMessageAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Touch обновляет превью и время последнего сообщения, создавая сводку при
// первом упоминании неизвестного id.
func (r *ThreadRegistry) Touch(id, preview string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.ensureLocked(id)
	t.LastMessagePreview = preview
	if at.After(t.LastMessageAt) {
		t.LastMessageAt = at
	}
}

// IncrementUnread увеличивает счётчик непрочитанных на 1.
func (r *ThreadRegistry) IncrementUnread(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLocked(id).UnreadCount++
}

// SetUnread — авторитетная перезапись счётчика (ресинхронизация после
// дрейфа; всегда побеждает локальные инкременты).
func (r *ThreadRegistry) SetUnread(id string, count int) {
	if count < 0 {
		count = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLocked(id).UnreadCount = count
}

// MarkRead сбрасывает счётчик непрочитанных.
func (r *ThreadRegistry) MarkRead(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.threads[id]; ok {
		t.UnreadCount = 0
	}
}

func (r *ThreadRegistry) ensureLocked(id string) *model.ThreadSummary {
	t, ok := r.threads[id]
	if !ok {
		t = &model.ThreadSummary{ID: id, CreatedAt: time.Now().UTC()}
		r.threads[id] = t
	}
	return t
}
