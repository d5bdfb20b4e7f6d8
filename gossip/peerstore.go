package gossip

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
)

// PeerStoreEntry is the dial metadata persisted for each previously seen peer.
type PeerStoreEntry struct {
	ID       PeerID    `json:"id"`
	Addr     string    `json:"addr"`
	LastSeen time.Time `json:"lastSeen"`
}

// PeerStore is a LevelDB-backed cache of last-known peer addresses. It exists
// to warm the next bootstrap: after a restart the client can pull from
// recently seen peers instead of depending solely on the entrypoints. The
// live peer table is separate and never persisted.
type PeerStore struct {
	mu   sync.RWMutex
	db   *leveldb.DB
	byID map[PeerID]*PeerStoreEntry
}

// OpenPeerStore opens (or creates) the store at the given path.
func OpenPeerStore(path string) (*PeerStore, error) {
	if path == "" {
		return nil, errors.New("peerstore path required")
	}
	db, err := leveldb.OpenFile(filepath.Clean(path), nil)
	if err != nil {
		return nil, fmt.Errorf("open peerstore: %w", err)
	}
	store := &PeerStore{db: db, byID: make(map[PeerID]*PeerStoreEntry)}
	if err := store.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close flushes and closes the underlying database.
func (ps *PeerStore) Close() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.db == nil {
		return nil
	}
	err := ps.db.Close()
	ps.db = nil
	ps.byID = nil
	return err
}

// Put inserts or refreshes an entry keyed by peer ID.
func (ps *PeerStore) Put(entry PeerStoreEntry) error {
	if entry.ID == "" {
		return errors.New("peer ID required")
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.db == nil {
		return errors.New("peerstore closed")
	}
	existing := ps.byID[entry.ID]
	if existing != nil {
		if entry.Addr == "" {
			entry.Addr = existing.Addr
		}
		if entry.LastSeen.Before(existing.LastSeen) {
			entry.LastSeen = existing.LastSeen
		}
	}
	copy := entry
	ps.byID[entry.ID] = &copy
	blob, err := json.Marshal(&copy)
	if err != nil {
		return err
	}
	return ps.db.Put([]byte("peer:"+string(entry.ID)), blob, nil)
}

// Get returns the stored entry for a peer.
func (ps *PeerStore) Get(id PeerID) (PeerStoreEntry, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	entry := ps.byID[id]
	if entry == nil {
		return PeerStoreEntry{}, false
	}
	return *entry, true
}

// Addresses returns up to limit cached addresses, most recently seen first.
func (ps *PeerStore) Addresses(limit int) []string {
	ps.mu.RLock()
	entries := make([]PeerStoreEntry, 0, len(ps.byID))
	for _, e := range ps.byID {
		if e.Addr != "" {
			entries = append(entries, *e)
		}
	}
	ps.mu.RUnlock()
	sort.Slice(entries, func(i, j int) bool { return entries[i].LastSeen.After(entries[j].LastSeen) })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	addrs := make([]string, 0, len(entries))
	for _, e := range entries {
		addrs = append(addrs, e.Addr)
	}
	return addrs
}

// Len reports the number of cached entries.
func (ps *PeerStore) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.byID)
}

func (ps *PeerStore) load() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	iter := ps.db.NewIterator(nil, nil)
	defer iter.Release()
	for iter.Next() {
		key := string(iter.Key())
		if len(key) < 5 || key[:5] != "peer:" {
			continue
		}
		var entry PeerStoreEntry
		if err := json.Unmarshal(iter.Value(), &entry); err != nil {
			return fmt.Errorf("decode peer %s: %w", key, err)
		}
		copy := entry
		ps.byID[entry.ID] = &copy
	}
	return iter.Error()
}
