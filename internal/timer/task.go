// Package timer — отменяемый отложенный коллбек (TimedTask).
// Используется трекером набора текста и авто-скрытием уведомлений.
package timer

import (
	"sync"
	"time"
)

// Task оборачивает time.Timer с явной отменой. Коллбек выполняется не более
// одного раза; Cancel после срабатывания — no-op, Cancel безопасен из любой
// горутины и повторно.
type Task struct {
	mu    sync.Mutex
	t     *time.Timer
	fired bool
	done  bool
}

// After планирует fn через d. fn выполняется в отдельной горутине таймера.
func After(d time.Duration, fn func()) *Task {
	task := &Task{}
	task.t = time.AfterFunc(d, func() {
		task.mu.Lock()
		if task.done {
			task.mu.Unlock()
			return
		}
		task.fired = true
		task.done = true
		task.mu.Unlock()
		fn()
	})
	return task
}

// Cancel отменяет задачу, если она ещё не сработала. Возвращает true,
// если коллбек гарантированно не будет вызван.
func (task *Task) Cancel() bool {
	task.mu.Lock()
	defer task.mu.Unlock()
	if task.done {
		return !task.fired
	}
	task.done = true
	task.t.Stop()
	return true
}

// Fired сообщает, успел ли коллбек выполниться.
func (task *Task) Fired() bool {
	task.mu.Lock()
	defer task.mu.Unlock()
	return task.fired
}
