package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/PlanPulseHQ/planpulse-go/internal/domain/events"
	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/observability/logging"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// WebSocketHub is the bus subscriber that pushes domain events to connected
// dashboard clients, scoped per tenant.
type WebSocketHub struct {
	bus    *Bus
	logger *logging.ChanneledLogger

	mu      sync.Mutex
	clients map[string]map[*websocket.Conn]chan []byte // tenantId -> conn -> outbound

	upgrader websocket.Upgrader
}

// NewWebSocketHub creates the hub. Run must be started for events to flow.
func NewWebSocketHub(bus *Bus, logger *logging.ChanneledLogger) *WebSocketHub {
	return &WebSocketHub{
		bus:     bus,
		logger:  logger,
		clients: make(map[string]map[*websocket.Conn]chan []byte),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin is validated by the domain middleware upstream.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run consumes the bus until ctx is canceled.
func (h *WebSocketHub) Run(ctx context.Context) {
	sub := h.bus.Subscribe(256)
	defer h.bus.Unsubscribe(sub)

	h.logger.Events().Info("WebSocket hub started")

	for {
		select {
		case <-ctx.Done():
			h.logger.Events().Info("WebSocket hub stopping")
			h.closeAll()
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			h.broadcast(ev)
		}
	}
}

// HandleConnection upgrades an HTTP request and registers the client for
// its tenant's events.
func (h *WebSocketHub) HandleConnection(w http.ResponseWriter, r *http.Request, tenantID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	outbound := make(chan []byte, 32)

	h.mu.Lock()
	if h.clients[tenantID] == nil {
		h.clients[tenantID] = make(map[*websocket.Conn]chan []byte)
	}
	h.clients[tenantID][conn] = outbound
	count := len(h.clients[tenantID])
	h.mu.Unlock()

	h.logger.Events().Info("WebSocket client connected", "tenantId", tenantID, "clients", count)

	go h.writePump(conn, outbound, tenantID)
	go h.readPump(conn, tenantID)
	return nil
}

func (h *WebSocketHub) broadcast(ev events.DomainEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Events().Error("Failed to encode domain event", "error", err.Error(), "type", ev.Type)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn, outbound := range h.clients[ev.TenantID] {
		select {
		case outbound <- payload:
		default:
			// Slow client; drop it rather than block the hub.
			h.removeClientUnsafe(ev.TenantID, conn)
		}
	}
}

func (h *WebSocketHub) writePump(conn *websocket.Conn, outbound chan []byte, tenantID string) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case payload, ok := <-outbound:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.removeClient(tenantID, conn)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.removeClient(tenantID, conn)
				return
			}
		}
	}
}

func (h *WebSocketHub) readPump(conn *websocket.Conn, tenantID string) {
	defer h.removeClient(tenantID, conn)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Clients only listen; any read error ends the connection.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebSocketHub) removeClient(tenantID string, conn *websocket.Conn) {
	h.mu.Lock()
	h.removeClientUnsafe(tenantID, conn)
	h.mu.Unlock()
}

// removeClientUnsafe requires h.mu held.
func (h *WebSocketHub) removeClientUnsafe(tenantID string, conn *websocket.Conn) {
	if tenantClients, exists := h.clients[tenantID]; exists {
		if outbound, found := tenantClients[conn]; found {
			close(outbound)
			delete(tenantClients, conn)
			conn.Close()
		}
		if len(tenantClients) == 0 {
			delete(h.clients, tenantID)
		}
	}
}

func (h *WebSocketHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for tenantID, tenantClients := range h.clients {
		for conn := range tenantClients {
			h.removeClientUnsafe(tenantID, conn)
		}
	}
}

// ConnectionCount reports connected clients for a tenant.
func (h *WebSocketHub) ConnectionCount(tenantID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[tenantID])
}
