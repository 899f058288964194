package stubserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/adminconsole/internal/logger"
	"github.com/adminconsole/internal/model"
)

const (
	wsWriteWait   = 10 * time.Second
	wsPongWait    = 60 * time.Second
	wsPingPeriod  = (wsPongWait * 9) / 10
	wsMaxMsgSize  = 8192
	wsSendBufSize = 64
)

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// handleWS апгрейдит соединение и регистрирует клиента в списке рассылки.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("stub: ws upgrade: %v", err)
		return
	}

	c := &wsClient{
		conn: conn,
		send: make(chan []byte, wsSendBufSize),
		done: make(chan struct{}),
	}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	go s.writePump(c)
	go s.readPump(c)
}

func (s *Server) dropClient(c *wsClient) {
	s.mu.Lock()
	if _, ok := s.clients[c]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, c)
	s.mu.Unlock()
	close(c.done)
	c.conn.Close()
}

// broadcast рассылает конверт {type, payload} всем подключённым консолям.
func (s *Server) broadcast(eventType string, payload any) {
	data, err := json.Marshal(map[string]any{"type": eventType, "payload": payload})
	if err != nil {
		logger.Errorf("stub: marshal %s: %v", eventType, err)
		return
	}

	s.mu.Lock()
	targets := make([]*wsClient, 0, len(s.clients))
	for c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	for _, c := range targets {
		select {
		case c.send <- data:
		case <-c.done:
		default:
			// Медленный клиент: буфер полон, закрываем.
			logger.Errorf("stub: slow ws client, dropping")
			s.dropClient(c)
		}
	}
}

type wsCommand struct {
	Type     string `json:"type"`
	ThreadID string `json:"threadId"`
	Content  string `json:"content"`
}

func (s *Server) readPump(c *wsClient) {
	defer s.dropClient(c)

	c.conn.SetReadLimit(wsMaxMsgSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd wsCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			logger.Debugf("stub: bad ws command: %v", err)
			continue
		}
		s.handleCommand(cmd)
	}
}

// handleCommand обрабатывает команды консоли.
func (s *Server) handleCommand(cmd wsCommand) {
	switch cmd.Type {
	case "send_message":
		if cmd.ThreadID == "" || cmd.Content == "" {
			return
		}
		m := s.addMessage(cmd.ThreadID, cmd.Content, model.SenderAdmin)
		s.broadcast("new_message", map[string]any{
			"message": wireMessage{
				ID:         m.ID,
				ThreadID:   m.ThreadID,
				SenderType: string(m.SenderType),
				Content:    m.Content,
				CreatedAt:  m.CreatedAt,
			},
		})
	case "mark_as_read":
		if cmd.ThreadID != "" {
			s.markRead(cmd.ThreadID)
		}
	case "typing_start", "typing_stop":
		if cmd.ThreadID == "" {
			return
		}
		s.EmitTyping(cmd.ThreadID, "admin", AdminEmail, cmd.Type == "typing_start")
	case "join_thread", "leave_thread":
		// Стенд шлёт всё всем; членство не отслеживается.
	default:
		logger.Debugf("stub: unknown ws command %q", cmd.Type)
	}
}

func (s *Server) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
