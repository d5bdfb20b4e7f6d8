package observer

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gossipwatch/gossip"
)

type healthResponse struct {
	State     string `json:"state"`
	Peers     int    `json:"peers"`
	Queued    int    `json:"queued"`
	Captured  uint64 `json:"captured"`
	Discarded uint64 `json:"discarded"`
	Dropped   uint64 `json:"dropped"`
}

type peerResponse struct {
	ID       gossip.PeerID `json:"id"`
	Addr     string        `json:"addr"`
	LastSeen time.Time     `json:"lastSeen"`
	Voting   bool          `json:"voting"`
	Staked   bool          `json:"staked"`
}

// debugRouter exposes the read-only operational surface. Nothing here can
// mutate node state.
func (n *Node) debugRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		captured, discarded := n.client.Counters()
		resp := healthResponse{
			State:     n.client.State().String(),
			Peers:     n.table.Len(),
			Queued:    n.channel.Len(),
			Captured:  captured,
			Discarded: discarded,
			Dropped:   n.channel.Dropped(),
		}
		status := http.StatusOK
		if n.client.State() == gossip.StateShutdown {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(&resp)
	})

	r.Get("/peers", func(w http.ResponseWriter, req *http.Request) {
		snapshot := n.table.Snapshot()
		peers := make([]peerResponse, 0, len(snapshot))
		for _, rec := range snapshot {
			peers = append(peers, peerResponse{
				ID:       rec.ID,
				Addr:     rec.Addr,
				LastSeen: rec.LastSeen,
				Voting:   rec.Voting,
				Staked:   rec.Staked,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(peers)
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}
