package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/smcopilot/copilot-core/internal/infrastructure/config"
	"github.com/smcopilot/copilot-core/internal/infrastructure/logging"
)

// Hub manages WebSocket connections and fans events out to every live
// connection of an account.
//
// Ordering: two events submitted sequentially for the same account are
// handed to every client's outbound buffer in submission order; the hub
// never reorders or batches. Events for different accounts have no
// ordering relationship.
//
// A client whose outbound buffer is full is dropped from the registry
// rather than skipped: a tab that missed events must pull a fresh
// snapshot on reconnect, it never receives backlog.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu       sync.RWMutex
	accounts map[string]map[*Client]struct{}

	// sendMu serialises the fan-out loop per account so a later Send
	// cannot overtake an earlier one part-way through the client set.
	sendMu sync.Mutex
}

// New creates a new hub.
func New(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		accounts: make(map[string]map[*Client]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects all clients.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the account's connection set.
// The hub does not replay history; the client pulls a full snapshot itself.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	set, ok := h.accounts[client.account]
	if !ok {
		set = make(map[*Client]struct{})
		h.accounts[client.account] = set
	}
	set[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "account", client.account, "clients", h.ClientCount(client.account))
}

// Unregister removes a client from the registry.
// Only the goroutine that successfully removes the client from the set
// closes the send channel, preventing double-close panics during shutdown.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	existed := false
	if set, ok := h.accounts[client.account]; ok {
		if _, existed = set[client]; existed {
			delete(set, client)
		}
		if len(set) == 0 {
			delete(h.accounts, client.account)
		}
	}
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "account", client.account)
}

// Send fans an event out to every currently-registered connection for the
// account. A dead or saturated connection is removed from the registry;
// the failure never propagates to the caller.
func (h *Hub) Send(account string, eventType string, data any) {
	payload, err := json.Marshal(Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("failed to marshal event", "type", eventType, "error", err)
		return
	}

	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.accounts[account]))
	for client := range h.accounts[account] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	var stale []*Client
	for _, client := range clients {
		if !client.trySend(payload) {
			stale = append(stale, client)
		}
	}

	for _, client := range stale {
		h.logger.Warn("dropping unresponsive websocket client", "account", account)
		h.Unregister(client)
		client.closeConn()
	}

	if len(clients) > 0 {
		h.logger.Debug("event sent", "type", eventType, "account", account, "recipients", len(clients)-len(stale))
	}
}

// ClientCount returns the number of connected clients for an account.
func (h *Hub) ClientCount(account string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.accounts[account])
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for account, set := range h.accounts {
		for client := range set {
			close(client.send)
			client.closeConn()
		}
		delete(h.accounts, account)
	}
}
