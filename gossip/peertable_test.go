package gossip

import (
	"fmt"
	"testing"
	"time"
)

func TestPeerTableUpsertAndGet(t *testing.T) {
	table := NewPeerTable(16)
	now := time.Unix(1000, 0)
	table.Upsert(PeerRecord{ID: "0xa", Addr: "10.0.0.1:8001", LastSeen: now, Voting: true})
	rec, ok := table.Get("0xa")
	if !ok || rec.Addr != "10.0.0.1:8001" || !rec.Voting {
		t.Fatalf("unexpected record: %+v ok=%v", rec, ok)
	}

	// Refresh keeps the newer timestamp and updates flags.
	table.Upsert(PeerRecord{ID: "0xa", Addr: "10.0.0.2:8001", LastSeen: now.Add(time.Minute), Voting: false})
	rec, _ = table.Get("0xa")
	if rec.Addr != "10.0.0.2:8001" || rec.Voting || !rec.LastSeen.Equal(now.Add(time.Minute)) {
		t.Fatalf("refresh did not apply: %+v", rec)
	}
	if table.Len() != 1 {
		t.Fatalf("expected 1 entry got %d", table.Len())
	}
}

func TestPeerTableEvictsLeastRecentlySeen(t *testing.T) {
	table := NewPeerTable(3)
	base := time.Unix(1000, 0)
	for i := 0; i < 3; i++ {
		table.Upsert(PeerRecord{
			ID:       PeerID(fmt.Sprintf("0x%d", i)),
			Addr:     fmt.Sprintf("10.0.0.%d:8001", i),
			LastSeen: base.Add(time.Duration(i) * time.Second),
		})
	}
	table.Upsert(PeerRecord{ID: "0xnew", Addr: "10.0.0.9:8001", LastSeen: base.Add(time.Minute)})
	if table.Len() != 3 {
		t.Fatalf("table exceeded capacity: %d", table.Len())
	}
	if _, ok := table.Get("0x0"); ok {
		t.Fatalf("oldest entry should have been evicted")
	}
	if _, ok := table.Get("0xnew"); !ok {
		t.Fatalf("new entry should have been admitted")
	}
}

func TestPeerTablePrune(t *testing.T) {
	table := NewPeerTable(16)
	base := time.Unix(1000, 0)
	table.Upsert(PeerRecord{ID: "0xstale", Addr: "10.0.0.1:8001", LastSeen: base})
	table.Upsert(PeerRecord{ID: "0xfresh", Addr: "10.0.0.2:8001", LastSeen: base.Add(4 * time.Minute)})
	removed := table.Prune(base.Add(5*time.Minute), 2*time.Minute)
	if removed != 1 {
		t.Fatalf("expected 1 pruned got %d", removed)
	}
	if _, ok := table.Get("0xstale"); ok {
		t.Fatalf("stale peer survived prune")
	}
	if _, ok := table.Get("0xfresh"); !ok {
		t.Fatalf("fresh peer pruned")
	}
}

func TestPeerTableSample(t *testing.T) {
	table := NewPeerTable(32)
	if got := table.Sample(4); len(got) != 0 {
		t.Fatalf("empty table must sample nothing, got %v", got)
	}
	now := time.Now()
	for i := 0; i < 10; i++ {
		table.Upsert(PeerRecord{ID: PeerID(fmt.Sprintf("0x%d", i)), Addr: "10.0.0.1:8001", LastSeen: now})
	}
	got := table.Sample(4)
	if len(got) != 4 {
		t.Fatalf("expected 4 sampled got %d", len(got))
	}
	seen := make(map[PeerID]struct{})
	for _, id := range got {
		if _, dup := seen[id]; dup {
			t.Fatalf("sample returned duplicate %s", id)
		}
		seen[id] = struct{}{}
	}
	if got := table.Sample(100); len(got) != 10 {
		t.Fatalf("oversized sample should return all peers, got %d", len(got))
	}
}

func TestPeerTableSnapshotOrder(t *testing.T) {
	table := NewPeerTable(16)
	base := time.Unix(1000, 0)
	table.Upsert(PeerRecord{ID: "0xold", Addr: "a", LastSeen: base})
	table.Upsert(PeerRecord{ID: "0xnew", Addr: "b", LastSeen: base.Add(time.Hour)})
	snap := table.Snapshot()
	if len(snap) != 2 || snap[0].ID != "0xnew" {
		t.Fatalf("snapshot not ordered by recency: %+v", snap)
	}
}
