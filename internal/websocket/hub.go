package websocket

import (
	"encoding/json"
	"sync"

	"pvetax/internal/metrics"
)

// BalanceUpdate is pushed to an account's sockets after a credit changes one
// of its characters' balance.
type BalanceUpdate struct {
	CharacterID  int64  `json:"character_id"`
	Balance      string `json:"balance"`
	CurrentMonth string `json:"current_month"`
}

// Hub fans balance updates out to the sockets of one account. Updates for
// accounts with no open socket are dropped.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(accountID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[accountID] == nil {
		h.clients[accountID] = make(map[*Client]struct{})
	}
	if _, ok := h.clients[accountID][client]; !ok {
		h.clients[accountID][client] = struct{}{}
		metrics.BalanceSockets.Inc()
	}
}

func (h *Hub) Unregister(accountID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[accountID][client]; !ok {
		return
	}
	delete(h.clients[accountID], client)
	metrics.BalanceSockets.Dec()
	if len(h.clients[accountID]) == 0 {
		delete(h.clients, accountID)
	}
}

func (h *Hub) Connected(accountID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[accountID])
}

// BroadcastBalance drops the update for clients whose send buffer is full.
func (h *Hub) BroadcastBalance(accountID string, update BalanceUpdate) {
	payload, _ := json.Marshal(update)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[accountID] {
		select {
		case client.send <- payload:
		default:
		}
	}
}
