package app

import (
	"sort"
	"sync"

	"github.com/1ureka/framewire/internal/protocol"
	"github.com/1ureka/framewire/internal/stream"
	"github.com/1ureka/framewire/internal/util"
)

// Hub maintains the id → stream table of the streams a server is serving.
// Handlers use it to fan packets out to every peer.
type Hub struct {
	mu      sync.Mutex
	streams map[uint32]*stream.Stream
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		streams: make(map[uint32]*stream.Stream),
	}
}

// Register stores s under id, replacing any stream already there.
func (h *Hub) Register(id uint32, s *stream.Stream) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.streams[id] = s
}

// Unregister removes id from the table. The stream itself is not closed.
func (h *Hub) Unregister(id uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.streams, id)
}

// Len returns the number of registered streams.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.streams)
}

// IDs returns the registered ids in ascending order.
func (h *Hub) IDs() []uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]uint32, 0, len(h.streams))
	for id := range h.streams {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Broadcast enqueues pkt on every registered stream and returns how many
// accepted it. The packet is shared, so it is finalized once up front.
func (h *Hub) Broadcast(pkt *protocol.Packet) int {
	pkt.Finalize()

	h.mu.Lock()
	targets := make([]*stream.Stream, 0, len(h.streams))
	for _, s := range h.streams {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	n := 0
	for _, s := range targets {
		if err := s.Enqueue(pkt); err != nil {
			util.LogDebug("%s: broadcast packet %d: %v", s.Name(), pkt.ID(), err)
			continue
		}
		n++
	}
	return n
}
