// Package realtime — движок синхронизации: сворачивает неупорядоченный
// поток push-событий (с дублями, at-least-once) в консистентное состояние
// реестра тредов и окна сообщений открытого треда. Транспорт не даёт
// никаких гарантий порядка; каждая операция слияния идемпотентна.
package realtime

import (
	"context"
	"sync"

	"github.com/adminconsole/internal/logger"
	"github.com/adminconsole/internal/model"
	"github.com/adminconsole/internal/registry"
	"github.com/adminconsole/internal/typing"
)

// ReadAcknowledger подтверждает прочтение треда на сервере (реализуется
// транспортом). Вызывается, когда сообщение пользователя приходит в уже
// открытый тред.
type ReadAcknowledger interface {
	MarkAsRead(threadID string)
}

const defaultWindow = 200

// Engine — единственный писатель реестра со стороны событий. Окно
// сообщений держится только для открытого треда.
type Engine struct {
	mu     sync.Mutex
	reg    *registry.ThreadRegistry
	typing *typing.Tracker
	acker  ReadAcknowledger

	openThread string
	window     int
	messages   []model.Message
	seen       map[string]struct{}
}

func NewEngine(reg *registry.ThreadRegistry, tracker *typing.Tracker, acker ReadAcknowledger, window int) *Engine {
	if window <= 0 {
		window = defaultWindow
	}
	return &Engine{
		reg:    reg,
		typing: tracker,
		acker:  acker,
		window: window,
		seen:   make(map[string]struct{}),
	}
}

// Run потребляет поток событий до отмены контекста или закрытия канала.
func (e *Engine) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.Apply(ev)
		}
	}
}

// Apply применяет одно событие. Аномалии деградируют до "игнорировать
// событие" — обработчик потока не бросает ошибок наружу.
func (e *Engine) Apply(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch ev.Type {
	case EventNewMessage:
		e.applyNewMessage(ev)
	case EventNewUserMessage:
		e.applyNewUserMessage(ev)
	case EventUserTyping:
		e.applyTyping(ev)
	case EventUnreadCountUpdate:
		e.applyUnreadUpdate(ev)
	default:
		logger.Debugf("realtime: unknown event type %q dropped", ev.Type)
	}
}

// OpenThread делает тред активным и засеивает окно загруженной страницей
// сообщений. Типинг прошлого треда очищается: сигналы набора текста
// отслеживаются только для открытого треда.
func (e *Engine) OpenThread(id string, initial []model.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.openThread = id
	e.messages = e.messages[:0]
	e.seen = make(map[string]struct{}, len(initial))
	e.typing.Reset()

	for i := range initial {
		m := initial[i]
		if m.ID == "" {
			continue
		}
		if _, dup := e.seen[m.ID]; dup {
			continue
		}
		e.seen[m.ID] = struct{}{}
		e.messages = append(e.messages, m)
	}
	e.trimWindowLocked()
}

// CloseThread сбрасывает активный тред и его окно.
func (e *Engine) CloseThread() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.openThread = ""
	e.messages = nil
	e.seen = make(map[string]struct{})
	e.typing.Reset()
}

// OpenThreadID возвращает id открытого треда ("" — ничего не открыто).
func (e *Engine) OpenThreadID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.openThread
}

// Messages возвращает копию окна сообщений открытого треда.
func (e *Engine) Messages() []model.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Message, len(e.messages))
	copy(out, e.messages)
	return out
}

// TypingLabels — подписи печатающих в открытом треде.
func (e *Engine) TypingLabels() []string {
	e.mu.Lock()
	open := e.openThread
	e.mu.Unlock()
	if open == "" {
		return nil
	}
	return e.typing.ActiveLabels(open)
}

// applyNewMessage: дубль по id в окне — no-op; иначе добавить. Сводка
// треда обновляется всегда. Непрочитанные растут только если тред не
// открыт; в открытом треде сообщение пользователя сразу подтверждается
// прочтением вместо инкремента.
func (e *Engine) applyNewMessage(ev Event) {
	m := ev.Message
	if m == nil || m.ID == "" || m.ThreadID == "" {
		logger.Debugf("realtime: malformed new_message dropped")
		return
	}

	if e.openThread == m.ThreadID {
		if _, dup := e.seen[m.ID]; dup {
			return
		}
		e.appendLocked(*m)
		e.reg.Touch(m.ThreadID, m.Preview(), m.CreatedAt)
		if m.SenderType != model.SenderAdmin {
			e.reg.MarkRead(m.ThreadID)
			if e.acker != nil {
				e.acker.MarkAsRead(m.ThreadID)
			}
		}
		return
	}

	e.reg.Touch(m.ThreadID, m.Preview(), m.CreatedAt)
	e.reg.IncrementUnread(m.ThreadID)
}

// applyNewUserMessage: та же идемпотентность. Для неоткрытого треда —
// ровно +1 к непрочитанным и обновление превью. Для открытого треда
// счётчик не трогается: событие может дублировать new_message для того же
// сообщения, и второй вызов обязан быть no-op.
func (e *Engine) applyNewUserMessage(ev Event) {
	m := ev.Message
	threadID := ev.ThreadID
	if threadID == "" && m != nil {
		threadID = m.ThreadID
	}
	if m == nil || m.ID == "" || threadID == "" {
		logger.Debugf("realtime: malformed new_user_message dropped")
		return
	}

	if e.openThread == threadID {
		if _, dup := e.seen[m.ID]; dup {
			return
		}
		// Событие пришло раньше парного new_message: добавляем сами,
		// поздний new_message увидит id в окне и станет no-op.
		msg := model.Message{
			ID:         m.ID,
			ThreadID:   threadID,
			SenderType: model.SenderUser,
			Content:    m.Content,
			CreatedAt:  m.CreatedAt,
		}
		e.appendLocked(msg)
		e.reg.Touch(threadID, msg.Preview(), msg.CreatedAt)
		e.reg.MarkRead(threadID)
		if e.acker != nil {
			e.acker.MarkAsRead(threadID)
		}
		return
	}

	e.reg.Touch(threadID, m.Preview(), m.CreatedAt)
	e.reg.IncrementUnread(threadID)
}

// applyTyping: сигналы чужих тредов не отслеживаются — это ограничивает
// память трекера открытым тредом.
func (e *Engine) applyTyping(ev Event) {
	if ev.ThreadID == "" || ev.UserID == "" {
		logger.Debugf("realtime: malformed user_typing dropped")
		return
	}
	if e.openThread != ev.ThreadID {
		return
	}
	if ev.IsTyping {
		label := ev.Email
		if label == "" {
			label = ev.UserID
		}
		e.typing.Start(ev.ThreadID, ev.UserID, label)
		return
	}
	e.typing.Stop(ev.ThreadID, ev.UserID)
}

// applyUnreadUpdate — авторитетная перезапись счётчика (последнее
// применённое побеждает; порядок против new_user_message не сверяется —
// принятое ограничение источника).
func (e *Engine) applyUnreadUpdate(ev Event) {
	if ev.ThreadID == "" {
		logger.Debugf("realtime: malformed unread_count_update dropped")
		return
	}
	e.reg.SetUnread(ev.ThreadID, ev.UnreadCount)
}

func (e *Engine) appendLocked(m model.Message) {
	e.seen[m.ID] = struct{}{}
	e.messages = append(e.messages, m)
	e.trimWindowLocked()
}

// trimWindowLocked держит окно ограниченным: старые сообщения вместе с их
// id выпадают из дедупликации — уникальность гарантируется только в
// пределах загруженного окна.
func (e *Engine) trimWindowLocked() {
	for len(e.messages) > e.window {
		delete(e.seen, e.messages[0].ID)
		e.messages = e.messages[1:]
	}
}
