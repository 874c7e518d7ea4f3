package aggregator

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

// viewerQueueSize bounds the per-viewer send queue; a viewer that falls
// this far behind is pruned rather than allowed to stall the bus side.
const viewerQueueSize = 64

var errSlowViewer = errors.New("viewer send queue full")

// Viewer is one connected websocket observer.
type Viewer struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newViewer(conn *websocket.Conn) *Viewer {
	return &Viewer{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, viewerQueueSize),
		done: make(chan struct{}),
	}
}

// close tears the viewer down exactly once.
func (v *Viewer) close() {
	v.once.Do(func() {
		close(v.done)
		v.conn.Close()
	})
}

// writePump drains the viewer's send queue onto its websocket. It owns
// all writes to the connection.
func (v *Viewer) writePump(h *Hub) {
	for {
		select {
		case payload := <-v.send:
			if err := v.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.Drop(v, err)
				return
			}
		case <-v.done:
			return
		}
	}
}

// Hub owns the set of connected viewers and fans broadcast payloads out
// to them. Sends never block: a viewer whose queue is full or whose
// transport has failed is dropped and not retried.
type Hub struct {
	viewers cmap.ConcurrentMap[string, *Viewer]
	metrics *Metrics
	logger  zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(metrics *Metrics, logger zerolog.Logger) *Hub {
	return &Hub{
		viewers: cmap.New[*Viewer](),
		metrics: metrics,
		logger:  logger,
	}
}

// Add registers a viewer for subsequent broadcasts.
func (h *Hub) Add(v *Viewer) {
	h.viewers.Set(v.id, v)
	h.metrics.ViewersConnected.Inc()
	h.logger.Info().Str("viewer", v.id).Msg("Viewer connected")
}

// Drop removes a viewer and closes its transport. Safe to call more than
// once per viewer.
func (h *Hub) Drop(v *Viewer, reason error) {
	removed := h.viewers.RemoveCb(v.id, func(key string, val *Viewer, exists bool) bool {
		return exists
	})
	v.close()
	if !removed {
		return
	}

	h.metrics.ViewersConnected.Dec()
	if reason != nil {
		h.metrics.ViewersPruned.Inc()
		h.logger.Warn().Str("viewer", v.id).Err(reason).Msg("Viewer pruned")
	} else {
		h.logger.Info().Str("viewer", v.id).Msg("Viewer disconnected")
	}
}

// Broadcast queues a payload for every connected viewer without blocking
// the caller.
func (h *Hub) Broadcast(payload []byte) {
	if payload == nil {
		return
	}
	for item := range h.viewers.IterBuffered() {
		v := item.Val
		select {
		case v.send <- payload:
		default:
			h.Drop(v, errSlowViewer)
		}
	}
}

// CloseAll disconnects every viewer.
func (h *Hub) CloseAll() {
	for item := range h.viewers.IterBuffered() {
		h.Drop(item.Val, nil)
	}
}
