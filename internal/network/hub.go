package network

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/MRamiBalles/KeepSolving/internal/engine"
	"github.com/MRamiBalles/KeepSolving/internal/events"
	"github.com/MRamiBalles/KeepSolving/internal/platform/logger"
)

// Message is the envelope every spectator frame is wrapped in.
type Message struct {
	Kind string `json:"kind"` // "snapshot" or "event"
	Data any    `json:"data"`
}

// SnapshotSource is anything that can describe the round right now.
// *engine.Round satisfies it.
type SnapshotSource interface {
	Snapshot() engine.Snapshot
}

// Hub maintains the set of active spectators and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex
	logger     *logger.Logger
}

// NewHub initializes a new WebSocket Hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		logger:     log,
	}
}

// Run handles connections and broadcasts until ctx is cancelled. On exit every
// client's send channel is closed so its write pump hangs up.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mu.Lock()
		for client := range h.clients {
			close(client.send)
			delete(h.clients, client)
		}
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("spectator hub shutting down")
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("spectator connected")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info("spectator disconnected")
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns how many spectators are connected.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast serializes v inside a Message and queues it for every client.
// It returns false once the hub has stopped.
func (h *Hub) Broadcast(kind string, v any) bool {
	payload, err := json.Marshal(Message{Kind: kind, Data: v})
	if err != nil {
		h.logger.Error("failed to serialize " + kind + " for broadcast: " + err.Error())
		return false
	}
	return h.send(payload)
}

func (h *Hub) send(payload []byte) bool {
	select {
	case h.broadcast <- payload:
		return true
	case <-h.done:
		return false
	}
}

// StartSnapshotPoller pushes a snapshot of src every interval. Identical
// consecutive snapshots are sent once.
func (h *Hub) StartSnapshotPoller(ctx context.Context, src SnapshotSource, interval time.Duration) {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last []byte
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.done:
				return
			case <-ticker.C:
				payload, err := json.Marshal(Message{Kind: "snapshot", Data: src.Snapshot()})
				if err != nil {
					h.logger.Error("failed to serialize snapshot: " + err.Error())
					continue
				}
				if bytes.Equal(payload, last) {
					continue
				}
				if !h.send(payload) {
					return
				}
				last = payload
			}
		}
	}()
}

// StartEventPoller forwards new entries of the event log to every client.
// Entries overwritten in the ring between two polls are skipped.
func (h *Hub) StartEventPoller(ctx context.Context, eventLog *events.Log, interval time.Duration) {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var lastSeq uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.done:
				return
			case <-ticker.C:
				for _, event := range eventLog.Since(lastSeq) {
					if !h.Broadcast("event", event) {
						return
					}
					lastSeq = event.Seq
				}
			}
		}
	}()
}
