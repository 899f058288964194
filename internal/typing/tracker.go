// Package typing — эфемерное состояние "печатает" по (thread, user) с
// автоистечением. Индикатор обязан сам погаснуть за ограниченное время,
// даже если событие "перестал печатать" потерялось на нестабильном
// соединении.
package typing

import (
	"sync"
	"time"

	"github.com/adminconsole/internal/timer"
)

// DefaultExpiry — срок жизни индикатора без повторного события.
const DefaultExpiry = 4 * time.Second

type key struct {
	threadID string
	userID   string
}

type entry struct {
	label  string
	expiry *timer.Task
}

// Tracker владеет записями и их таймерами; никто другой хэндлы таймеров
// не трогает.
type Tracker struct {
	mu      sync.Mutex
	expiry  time.Duration
	entries map[key]*entry
}

func NewTracker(expiry time.Duration) *Tracker {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Tracker{
		expiry:  expiry,
		entries: make(map[key]*entry),
	}
}

// Start создаёт или обновляет запись и перезапускает её таймер. Старый
// таймер отменяется до замены — иначе просроченный коллбек удалит только
// что обновлённую запись.
func (tr *Tracker) Start(threadID, userID, label string) {
	k := key{threadID: threadID, userID: userID}
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if e, ok := tr.entries[k]; ok {
		e.expiry.Cancel()
		e.label = label
		e.expiry = tr.armLocked(k)
		return
	}
	tr.entries[k] = &entry{label: label, expiry: tr.armLocked(k)}
}

// Stop убирает запись немедленно (явное событие "перестал печатать").
func (tr *Tracker) Stop(threadID, userID string) {
	k := key{threadID: threadID, userID: userID}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if e, ok := tr.entries[k]; ok {
		e.expiry.Cancel()
		delete(tr.entries, k)
	}
}

// ActiveLabels возвращает подписи печатающих в треде (для строки
// "… печатает" в шапке открытого треда).
func (tr *Tracker) ActiveLabels(threadID string) []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	var out []string
	for k, e := range tr.entries {
		if k.threadID == threadID {
			out = append(out, e.label)
		}
	}
	return out
}

// Reset отменяет все таймеры и очищает записи (смена открытого треда).
func (tr *Tracker) Reset() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for k, e := range tr.entries {
		e.expiry.Cancel()
		delete(tr.entries, k)
	}
}

// armLocked взводит таймер истечения для ключа. Коллбек сверяет, что в
// записи всё ещё его таймер: запись могла быть пересоздана.
func (tr *Tracker) armLocked(k key) *timer.Task {
	var task *timer.Task
	task = timer.After(tr.expiry, func() {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		if e, ok := tr.entries[k]; ok && e.expiry == task {
			delete(tr.entries, k)
		}
	})
	return task
}
