// Package transport — WebSocket-клиент push-канала консоли. Доставляет
// разобранные события движку синхронизации и отправляет команды чата.
// Переподключение и бэкофф — забота вызывающего слоя, не клиента.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/adminconsole/internal/auth"
	"github.com/adminconsole/internal/logger"
	"github.com/adminconsole/internal/realtime"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBufSize    = 64
	eventBufSize   = 256
)

// Client — одно соединение push-канала.
// Жизненный цикл: NewClient -> Connect -> [readPump, writePump] -> Close -> Wait.
type Client struct {
	url   string
	coord *auth.Coordinator

	conn   *websocket.Conn
	send   chan outgoingFrame
	events chan realtime.Event

	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

func NewClient(wsURL string, coord *auth.Coordinator) *Client {
	return &Client{
		url:    wsURL,
		coord:  coord,
		send:   make(chan outgoingFrame, sendBufSize),
		events: make(chan realtime.Event, eventBufSize),
		done:   make(chan struct{}),
	}
}

// Connect устанавливает соединение (токен — в заголовке) и запускает пампы.
func (c *Client) Connect(ctx context.Context) error {
	header := http.Header{}
	if tok := c.coord.Token(); tok != "" {
		header.Set("Authorization", "Bearer "+tok)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return err
	}
	c.conn = conn

	pumpCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(2)
	go c.writePump(pumpCtx)
	go c.readPump(pumpCtx)
	logger.Infof("transport: connected to %s", c.url)
	return nil
}

// Events — канал разобранных push-событий для движка синхронизации.
// Закрывается после завершения readPump.
func (c *Client) Events() <-chan realtime.Event {
	return c.events
}

// Close останавливает клиента. Безопасен многократно и из любой горутины.
func (c *Client) Close() {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// Wait блокируется до выхода обоих пампов.
func (c *Client) Wait() {
	c.wg.Wait()
}

func (c *Client) JoinThread(threadID string) {
	c.enqueue(outgoingFrame{Type: cmdJoinThread, ThreadID: threadID})
}

func (c *Client) LeaveThread(threadID string) {
	c.enqueue(outgoingFrame{Type: cmdLeaveThread, ThreadID: threadID})
}

func (c *Client) SendMessage(threadID, text string) {
	c.enqueue(outgoingFrame{Type: cmdSendMessage, ThreadID: threadID, Content: text})
}

func (c *Client) StartTyping(threadID string) {
	c.enqueue(outgoingFrame{Type: cmdTypingStart, ThreadID: threadID})
}

func (c *Client) StopTyping(threadID string) {
	c.enqueue(outgoingFrame{Type: cmdTypingStop, ThreadID: threadID})
}

// MarkAsRead реализует realtime.ReadAcknowledger.
func (c *Client) MarkAsRead(threadID string) {
	c.enqueue(outgoingFrame{Type: cmdMarkAsRead, ThreadID: threadID})
}

func (c *Client) enqueue(frame outgoingFrame) {
	select {
	case c.send <- frame:
	case <-c.done:
	default:
		// Буфер отправки полон — команда теряется, сервер переживёт
		// пропуск typing/read, а чтение не должно стопорить UI.
		logger.Errorf("transport: send buffer full, dropping %s", frame.Type)
	}
}

// readPump читает кадры и передаёт разобранные события движку. Выходит по
// ошибке чтения (conn.Close из Close() или по обрыву).
func (c *Client) readPump(ctx context.Context) {
	defer c.wg.Done()
	defer func() {
		close(c.events)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Errorf("transport: set read deadline: %v", err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("transport: read error: %v", err)
			}
			return
		}

		ev, err := decodeEvent(raw)
		if err != nil {
			// Недоверенный поток не должен ронять цикл согласования.
			logger.Debugf("transport: %v", err)
			continue
		}

		select {
		case c.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// writePump пишет команды и пинги. Выходит по отмене контекста или ошибке
// записи.
func (c *Client) writePump(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			if err := c.conn.WriteMessage(websocket.CloseMessage, nil); err != nil {
				logger.Debugf("transport: close message: %v", err)
			}
			return
		case frame := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Errorf("transport: set write deadline: %v", err)
				return
			}
			data, err := json.Marshal(frame)
			if err != nil {
				logger.Errorf("transport: marshal %s: %v", frame.Type, err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Errorf("transport: set write deadline: %v", err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
