package gossip

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestPeerStore(t *testing.T) *PeerStore {
	t.Helper()
	store, err := OpenPeerStore(filepath.Join(t.TempDir(), "peers.db"))
	if err != nil {
		t.Fatalf("open peerstore: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestPeerStorePutAndGet(t *testing.T) {
	store := newTestPeerStore(t)
	entry := PeerStoreEntry{ID: "0xa", Addr: "10.0.0.1:8001", LastSeen: time.Unix(100, 0)}
	if err := store.Put(entry); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok := store.Get("0xa")
	if !ok || got.Addr != entry.Addr {
		t.Fatalf("unexpected entry: %+v ok=%v", got, ok)
	}
}

func TestPeerStoreMergePreservesNewerTimestamp(t *testing.T) {
	store := newTestPeerStore(t)
	newer := time.Unix(200, 0)
	if err := store.Put(PeerStoreEntry{ID: "0xa", Addr: "10.0.0.1:8001", LastSeen: newer}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(PeerStoreEntry{ID: "0xa", LastSeen: time.Unix(100, 0)}); err != nil {
		t.Fatalf("put older: %v", err)
	}
	got, _ := store.Get("0xa")
	if !got.LastSeen.Equal(newer) || got.Addr != "10.0.0.1:8001" {
		t.Fatalf("merge lost state: %+v", got)
	}
}

func TestPeerStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peers.db")
	store, err := OpenPeerStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Put(PeerStoreEntry{ID: "0xa", Addr: "10.0.0.1:8001", LastSeen: time.Unix(100, 0)}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenPeerStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if reopened.Len() != 1 {
		t.Fatalf("expected 1 entry after reopen got %d", reopened.Len())
	}
	if _, ok := reopened.Get("0xa"); !ok {
		t.Fatalf("entry lost across reopen")
	}
}

func TestPeerStoreAddressesMostRecentFirst(t *testing.T) {
	store := newTestPeerStore(t)
	base := time.Unix(100, 0)
	for i, id := range []PeerID{"0xa", "0xb", "0xc"} {
		err := store.Put(PeerStoreEntry{
			ID:       id,
			Addr:     string(id) + ":8001",
			LastSeen: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}
	addrs := store.Addresses(2)
	if len(addrs) != 2 || addrs[0] != "0xc:8001" || addrs[1] != "0xb:8001" {
		t.Fatalf("unexpected order: %v", addrs)
	}
}
