package relay

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/tagops/visitflow/internal/metrics"
)

// GroupKey names a viewer group: one physical room display.
func GroupKey(siteID, roomID string) string {
	return siteID + ":" + roomID
}

// Peer is one live viewer connection. Writes are serialized per peer so
// concurrent broadcasts never interleave frames.
type Peer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewPeer(w io.Writer) *Peer {
	return &Peer{w: w}
}

func (p *Peer) send(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.w.Write(b)
	return err
}

// Hub is the registry of live viewer connections keyed by group. Membership
// is process-local and never persisted.
type Hub struct {
	mu     sync.Mutex
	groups map[string]map[*Peer]struct{}
}

func NewHub() *Hub {
	return &Hub{groups: make(map[string]map[*Peer]struct{})}
}

// Add registers a peer under a group. Idempotent.
func (h *Hub) Add(group string, p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.groups[group]
	if !ok {
		set = make(map[*Peer]struct{})
		h.groups[group] = set
	}
	set[p] = struct{}{}
}

// Remove deregisters a peer. No-op when absent.
func (h *Hub) Remove(group string, p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.groups[group]; ok {
		delete(set, p)
	}
}

// Broadcast serializes once and sends to every peer registered at call time.
// The peer set is snapshotted under the lock and sends happen outside it, so
// a slow or broken connection never blocks membership changes. Per-peer send
// failures are swallowed: the client detects the drop, reconnects, and
// resynchronizes from a fresh snapshot.
func (h *Hub) Broadcast(group string, message any) error {
	b, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.mu.Lock()
	set := h.groups[group]
	peers := make([]*Peer, 0, len(set))
	for p := range set {
		peers = append(peers, p)
	}
	h.mu.Unlock()

	for _, p := range peers {
		_ = p.send(b)
	}
	metrics.BroadcastsTotal.Inc()
	return nil
}

// Size reports current membership of a group.
func (h *Hub) Size(group string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.groups[group])
}
