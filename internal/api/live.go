package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/letsbehealthy/stepcoin/internal/domain"
)

// ─── Live Ledger Feed ───────────────────────────────────────────────────────
// The app's home screen animates coins as they arrive. Delivered via SSE:
// {type: "coins_earned", amount: 2, source: "walking"}

// LedgerEvent is a single broadcast ledger change.
type LedgerEvent struct {
	Type      string `json:"type"` // "coins_earned", "bonus_claimed", "reward_redeemed"
	UserID    string `json:"user_id"`
	Amount    int64  `json:"amount"`
	Source    string `json:"source,omitempty"`
	Item      string `json:"item,omitempty"`
	Timestamp int64  `json:"timestamp"` // Unix epoch
}

// LedgerHub broadcasts ledger events to connected SSE clients. It also
// implements domain.ReceiptSink so redemptions flow through without the
// ledger knowing about the feed.
type LedgerHub struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

// NewLedgerHub creates a new broadcast hub.
func NewLedgerHub() *LedgerHub {
	return &LedgerHub{
		clients: make(map[chan []byte]struct{}),
	}
}

// Broadcast sends an event to all connected clients.
func (h *LedgerHub) Broadcast(event LedgerEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- data:
		default:
			// Client too slow — drop message
		}
	}
}

// EmitReceipt implements domain.ReceiptSink.
func (h *LedgerHub) EmitReceipt(_ context.Context, r domain.RedemptionReceipt) {
	h.Broadcast(LedgerEvent{
		Type:      "reward_redeemed",
		UserID:    r.UserID,
		Amount:    r.Cost,
		Item:      r.ItemName,
		Timestamp: r.At.Unix(),
	})
}

// Subscribe registers a new client. Returns the channel and an unsubscribe func.
func (h *LedgerHub) Subscribe() (chan []byte, func()) {
	ch := make(chan []byte, 32)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.clients, ch)
		h.mu.Unlock()
		close(ch)
	}
}

// ClientCount returns the number of connected clients.
func (h *LedgerHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleSSE serves the live ledger feed via Server-Sent Events.
// GET /api/ledger/live
// SSE instead of WebSocket for simplicity and HTTP/2 compatibility.
func (h *LedgerHub) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	flusher.Flush()

	ch, unsub := h.Subscribe()
	defer unsub()

	for {
		select {
		case <-r.Context().Done():
			return
		case data := <-ch:
			w.Write([]byte("data: "))
			w.Write(data)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}

// nowUnix is split out so handlers timestamp events consistently.
func nowUnix() int64 { return time.Now().Unix() }
