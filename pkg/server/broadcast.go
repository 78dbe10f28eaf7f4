// Package server hosts the HTTP, gRPC, and WebSocket transports for the
// endpoint manager, grounded on the teacher's Router
// (pkg/router/router.go, pkg/router/broadcast.go, pkg/router/poller.go),
// repurposed from polling remote GPU-worker metrics to broadcasting the
// in-process registry.Registry's own queue-depth/endpoint state
// (spec.md §6/§9).
package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/amdinfer/amdinfer/pkg/metrics"
	"github.com/amdinfer/amdinfer/pkg/registry"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Broadcaster pushes registry state to connected WebSocket clients,
// exactly as the teacher's dashboard broadcaster does for GPU stats
// (pkg/router/broadcast.go).
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
}

// NewBroadcaster returns an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[*websocket.Conn]bool)}
}

// HandleWS is the WebSocket upgrade handler.
func (b *Broadcaster) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	b.mu.Lock()
	b.clients[conn] = true
	b.mu.Unlock()

	go func() {
		defer func() {
			b.mu.Lock()
			delete(b.clients, conn)
			b.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// EndpointState is the JSON payload pushed to dashboard clients for one
// loaded endpoint.
type EndpointState struct {
	Endpoint   string `json:"endpoint"`
	QueueDepth int    `json:"queue_depth"`
}

// ClusterState is the full broadcast payload.
type ClusterState struct {
	Endpoints []EndpointState `json:"endpoints"`
}

// Broadcast serializes state and pushes it to every connected client,
// dropping any connection that errors (teacher's pattern exactly).
func (b *Broadcaster) Broadcast(state *ClusterState) {
	data, err := json.Marshal(state)
	if err != nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for conn := range b.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(b.clients, conn)
		}
	}
}

// snapshot builds a ClusterState from the registry's current endpoints,
// also pushing each endpoint's depth into the queue-depth gauge (spec.md
// §4.8) since this poller is the one place that already walks every
// loaded endpoint's queue. m may be nil, in which case no gauge updates
// happen.
func snapshot(reg *registry.Registry, m *metrics.Metrics) *ClusterState {
	depths := reg.QueueDepths()
	state := &ClusterState{Endpoints: make([]EndpointState, 0, len(depths))}
	names := make([]string, 0, len(depths))
	for ep := range depths {
		names = append(names, ep)
	}
	sort.Strings(names)
	for _, ep := range names {
		state.Endpoints = append(state.Endpoints, EndpointState{Endpoint: ep, QueueDepth: depths[ep]})
		if m != nil {
			m.SetQueueDepth(ep, depths[ep])
		}
	}
	return state
}
