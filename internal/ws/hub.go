package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event is the envelope pushed to connected clients.
type Event struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
	SentAt  time.Time   `json:"sent_at"`
}

// Hub fans server events out to websocket clients. Traffic is one-way;
// anything a client sends is discarded. A client whose send buffer fills
// up is evicted rather than allowed to stall the broadcast loop.
type Hub struct {
	mu        sync.Mutex
	sendChans map[*websocket.Conn]chan []byte

	broadcast  chan Event
	register   chan *connection
	unregister chan *websocket.Conn

	logger  *zap.Logger
	onCount func(int)
}

type connection struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub constructs a hub. onCount, when non-nil, receives the connection
// count after every change.
func NewHub(logger *zap.Logger, onCount func(int)) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sendChans:  make(map[*websocket.Conn]chan []byte),
		broadcast:  make(chan Event, 16),
		register:   make(chan *connection),
		unregister: make(chan *websocket.Conn),
		logger:     logger,
		onCount:    onCount,
	}
}

// Run drives registration and broadcasting until the process exits. Start
// it once in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.sendChans[client.conn] = client.send
			count := len(h.sendChans)
			h.mu.Unlock()
			h.notifyCount(count)
			h.logger.Debug("websocket client connected", zap.Int("clients", count))

		case conn := <-h.unregister:
			h.mu.Lock()
			if send, ok := h.sendChans[conn]; ok {
				delete(h.sendChans, conn)
				close(send)
				conn.Close()
			}
			count := len(h.sendChans)
			h.mu.Unlock()
			h.notifyCount(count)
			h.logger.Debug("websocket client disconnected", zap.Int("clients", count))

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to marshal websocket event", zap.String("event", event.Event), zap.Error(err))
				continue
			}

			h.mu.Lock()
			for conn, send := range h.sendChans {
				select {
				case send <- data:
				default:
					delete(h.sendChans, conn)
					close(send)
					conn.Close()
					h.logger.Warn("evicted slow websocket client")
				}
			}
			count := len(h.sendChans)
			h.mu.Unlock()
			h.notifyCount(count)
		}
	}
}

// Broadcast queues an event for all connected clients. Never blocks the
// caller; if the hub's buffer is full the event is dropped.
func (h *Hub) Broadcast(event string, payload interface{}) {
	evt := Event{Event: event, Payload: payload, SentAt: time.Now().UTC()}
	select {
	case h.broadcast <- evt:
	default:
		h.logger.Warn("websocket broadcast buffer full, dropping event", zap.String("event", event))
	}
}

func (h *Hub) notifyCount(count int) {
	if h.onCount != nil {
		h.onCount(count)
	}
}
