package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"OTCOfframp/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub fans order status changes out to websocket subscribers. The stream
// is advisory: slow clients are dropped, nothing blocks on delivery, and
// no state transition depends on it.
type Hub struct {
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan statusEvent

	clients map[*wsClient]bool
	logger  *zap.Logger
}

type statusEvent struct {
	OrderID          string `json:"order_id"`
	Status           string `json:"status"`
	ExternalPayoutID string `json:"external_payout_id,omitempty"`
}

type subscribeRequest struct {
	Op       string   `json:"op"`
	OrderIDs []string `json:"order_ids"`
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan statusEvent, 256),
		clients:    make(map[*wsClient]bool),
		logger:     logger,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case event := <-h.broadcast:
			message, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("marshal status event", zap.Error(err))
				continue
			}
			for client := range h.clients {
				if !client.wants(event.OrderID) {
					continue
				}
				select {
				case client.send <- message:
				default:
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}

// PublishOrderStatus implements services.StatusPublisher.
func (h *Hub) PublishOrderStatus(order *models.Order) {
	event := statusEvent{
		OrderID: order.OrderID,
		Status:  string(order.Status),
	}
	if order.ExternalPayoutID != nil {
		event.ExternalPayoutID = *order.ExternalPayoutID
	}
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("status stream backlogged, event dropped",
			zap.String("order_id", order.OrderID))
	}
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	orders map[string]bool
	all    bool
}

// wants reports whether the client subscribed to this order or to the
// whole stream. A client with no explicit subscription gets everything.
func (c *wsClient) wants(orderID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.all || c.orders[orderID]
}

func (c *wsClient) subscribe(orderIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range orderIDs {
		c.orders[id] = true
	}
	c.all = len(c.orders) == 0
}

func (c *wsClient) unsubscribe(orderIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range orderIDs {
		delete(c.orders, id)
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var req subscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			continue
		}
		switch req.Op {
		case "subscribe":
			c.subscribe(req.OrderIDs)
		case "unsubscribe":
			c.unsubscribe(req.OrderIDs)
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	client := &wsClient{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 64),
		orders: make(map[string]bool),
		all:    true,
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}
