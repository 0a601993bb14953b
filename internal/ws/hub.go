package ws

import (
	"context"
	"sync"

	"holdem-service/internal/service/notify"
	"holdem-service/pkg/logger"

	"go.uber.org/zap"
)

// Hub fans table updates from the pub/sub channel out to the sockets on
// this node.
type Hub struct {
	mu     sync.RWMutex
	tables map[int64]map[*client]struct{}
	pub    *notify.Publisher
}

func NewHub(pub *notify.Publisher) *Hub {
	return &Hub{tables: make(map[int64]map[*client]struct{}), pub: pub}
}

// Run consumes updates until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	logger.Log.Info("ws hub started")
	return h.pub.Subscribe(ctx, h.Dispatch)
}

// Dispatch delivers msg to every socket on its table; private messages
// only reach their player.
func (h *Hub) Dispatch(msg notify.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.tables[msg.TableID] {
		if msg.Private() && c.userID != msg.UserID {
			continue
		}
		c.send(Outgoing{Type: string(msg.Type), Data: msg})
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.tables[c.tableID]
	if !ok {
		clients = make(map[*client]struct{})
		h.tables[c.tableID] = clients
	}
	clients[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.tables[c.tableID]
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.tables, c.tableID)
	}
	c.close()
}

// Connections reports how many sockets are open for a table.
func (h *Hub) Connections(tableID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tables[tableID])
}

type Outgoing struct {
	Type string      `json:"type"`
	Seq  int64       `json:"seq"`
	Data interface{} `json:"data"`
}

type client struct {
	userID  int64
	tableID int64

	mu       sync.Mutex
	seq      int64
	outbound chan Outgoing
	closed   bool
}

func newClient(userID, tableID int64) *client {
	return &client{userID: userID, tableID: tableID, outbound: make(chan Outgoing, 32)}
}

// send never blocks: a socket that cannot keep up loses messages and
// must SYNC.
func (c *client) send(msg Outgoing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.seq++
	msg.Seq = c.seq
	select {
	case c.outbound <- msg:
	default:
		logger.Log.Warn("ws outbound full, dropping message",
			zap.Int64("userID", c.userID),
			zap.Int64("tableID", c.tableID),
			zap.String("type", msg.Type),
		)
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.outbound)
	}
}
