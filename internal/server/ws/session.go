package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	maxFrameSize   = 4096
	sendBufferSize = 64
)

// subscribeMsg is what a client sends to change the channels it receives.
type subscribeMsg struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

// session is one browser connection. send is closed by the hub.
type session struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	topics map[string]bool
}

func newSession(h *Hub, conn *websocket.Conn) *session {
	s := &session{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		topics: make(map[string]bool, len(channelTypes)),
	}
	for ch := range channelTypes {
		s.topics[ch] = true
	}
	return s
}

func (s *session) wants(channel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topics[channel]
}

// apply changes the subscription set. Unknown channels and actions are
// ignored.
func (s *session) apply(msg subscribeMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range msg.Channels {
		if _, known := channelTypes[ch]; !known {
			continue
		}
		switch msg.Action {
		case "subscribe":
			s.topics[ch] = true
		case "unsubscribe":
			delete(s.topics, ch)
		}
	}
}

func (s *session) readLoop() {
	defer func() {
		s.hub.leave(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxFrameSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.logger.Warn("ws: unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var msg subscribeMsg
		if json.Unmarshal(data, &msg) == nil && msg.Action != "" {
			s.apply(msg)
		}
	}
}

func (s *session) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		s.conn.Close()
	}()

	for {
		var err error
		select {
		case frame, open := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !open {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			err = s.conn.WriteMessage(websocket.TextMessage, frame)
		case <-ping.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = s.conn.WriteMessage(websocket.PingMessage, nil)
		}
		if err != nil {
			return
		}
	}
}
