package gossip

import (
	"math/rand"
	"sort"
	"sync"
	"time"
)

const defaultTableCapacity = 4096

// PeerTable is the in-memory registry of live peers. Only the membership
// client writes to it; reads may come from other goroutines (debug surface),
// so access is guarded. The table is bounded: when full, the
// least-recently-seen entry is evicted to admit a new peer.
type PeerTable struct {
	mu       sync.RWMutex
	capacity int
	peers    map[PeerID]*PeerRecord

	rng *rand.Rand
}

// NewPeerTable builds an empty table with the given capacity. A non-positive
// capacity selects the default.
func NewPeerTable(capacity int) *PeerTable {
	if capacity <= 0 {
		capacity = defaultTableCapacity
	}
	return &PeerTable{
		capacity: capacity,
		peers:    make(map[PeerID]*PeerRecord),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Upsert inserts or refreshes a peer record, evicting the least-recently-seen
// entry if the table is at capacity and the peer is new.
func (t *PeerTable) Upsert(rec PeerRecord) {
	if rec.ID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	existing := t.peers[rec.ID]
	if existing != nil {
		if rec.Addr != "" {
			existing.Addr = rec.Addr
		}
		if rec.LastSeen.After(existing.LastSeen) {
			existing.LastSeen = rec.LastSeen
		}
		existing.Voting = rec.Voting
		existing.Staked = rec.Staked
		return
	}
	if len(t.peers) >= t.capacity {
		t.evictOldestLocked()
	}
	copy := rec
	t.peers[rec.ID] = &copy
}

// Touch refreshes only the last-seen timestamp for a known peer.
func (t *PeerTable) Touch(id PeerID, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec := t.peers[id]; rec != nil && now.After(rec.LastSeen) {
		rec.LastSeen = now
	}
}

// Get returns a copy of the record for the peer, if known.
func (t *PeerTable) Get(id PeerID) (PeerRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec := t.peers[id]
	if rec == nil {
		return PeerRecord{}, false
	}
	return *rec, true
}

// Len reports the number of live entries.
func (t *PeerTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}

// Sample returns up to n distinct peer IDs chosen uniformly at random,
// for use as push targets. Returns fewer when the table is small, and
// an empty slice during bootstrap.
func (t *PeerTable) Sample(n int) []PeerID {
	if n <= 0 {
		return nil
	}
	t.mu.Lock()
	ids := make([]PeerID, 0, len(t.peers))
	for id := range t.peers {
		ids = append(ids, id)
	}
	t.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	t.mu.Unlock()
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}

// Prune removes peers not seen within the liveness timeout and reports how
// many were dropped.
func (t *PeerTable) Prune(now time.Time, timeout time.Duration) int {
	if timeout <= 0 {
		return 0
	}
	cutoff := now.Add(-timeout)
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, rec := range t.peers {
		if rec.LastSeen.Before(cutoff) {
			delete(t.peers, id)
			removed++
		}
	}
	return removed
}

// Delete removes a single peer, typically in response to a prune message.
func (t *PeerTable) Delete(id PeerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, id)
}

// Snapshot returns copies of all records ordered by most recent contact.
func (t *PeerTable) Snapshot() []PeerRecord {
	t.mu.RLock()
	out := make([]PeerRecord, 0, len(t.peers))
	for _, rec := range t.peers {
		out = append(out, *rec)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out
}

func (t *PeerTable) evictOldestLocked() {
	var oldest PeerID
	var oldestSeen time.Time
	first := true
	for id, rec := range t.peers {
		if first || rec.LastSeen.Before(oldestSeen) {
			oldest, oldestSeen = id, rec.LastSeen
			first = false
		}
	}
	if !first {
		delete(t.peers, oldest)
	}
}
