package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"gossipwatch/gossip"
)

type scriptedSink struct {
	mu        sync.Mutex
	failures  int
	rejectAll bool
	delivered []gossip.CapturedRecord
}

func (s *scriptedSink) Deliver(ctx context.Context, rec gossip.CapturedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejectAll {
		return ErrSinkRejected
	}
	if s.failures > 0 {
		s.failures--
		return ErrSinkUnreachable
	}
	s.delivered = append(s.delivered, rec)
	return nil
}

func (s *scriptedSink) records() []gossip.CapturedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]gossip.CapturedRecord, len(s.delivered))
	copy(out, s.delivered)
	return out
}

func TestForwarderRetriesThenDelivers(t *testing.T) {
	ch := NewChannel(8, DropOldest)
	sink := &scriptedSink{failures: 2}
	f := NewForwarder(ForwarderConfig{
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		BackoffCap:  5 * time.Millisecond,
	}, ch, sink, nil)

	if err := ch.Push(rec("0xa", "tx-0")); err != nil {
		t.Fatalf("push: %v", err)
	}
	ch.Close()
	if err := f.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := sink.records(); len(got) != 1 || string(got[0].Payload) != "tx-0" {
		t.Fatalf("record not delivered exactly once: %+v", got)
	}
	delivered, transient, permanent := f.Counters()
	if delivered != 1 || transient != 2 || permanent != 0 {
		t.Fatalf("counters: delivered=%d transient=%d permanent=%d", delivered, transient, permanent)
	}
}

func TestForwarderDropsAfterRetryCeiling(t *testing.T) {
	ch := NewChannel(8, DropOldest)
	// Exactly the first record's three attempts fail.
	sink := &scriptedSink{failures: 3}
	f := NewForwarder(ForwarderConfig{
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		BackoffCap:  5 * time.Millisecond,
	}, ch, sink, nil)

	if err := ch.Push(rec("0xa", "poisoned")); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := ch.Push(rec("0xb", "healthy")); err != nil {
		t.Fatalf("push: %v", err)
	}
	ch.Close()
	if err := f.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := sink.records()
	if len(got) != 1 || string(got[0].Payload) != "healthy" {
		t.Fatalf("poisoned record must not stall the channel: %+v", got)
	}
	delivered, transient, permanent := f.Counters()
	if delivered != 1 || transient != 3 || permanent != 1 {
		t.Fatalf("counters: delivered=%d transient=%d permanent=%d", delivered, transient, permanent)
	}
}

func TestForwarderRejectionIsImmediatelyPermanent(t *testing.T) {
	ch := NewChannel(8, DropOldest)
	sink := &scriptedSink{rejectAll: true}
	f := NewForwarder(ForwarderConfig{
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		BackoffCap:  5 * time.Millisecond,
	}, ch, sink, nil)

	if err := ch.Push(rec("0xa", "tx")); err != nil {
		t.Fatalf("push: %v", err)
	}
	ch.Close()
	if err := f.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	delivered, transient, permanent := f.Counters()
	if delivered != 0 || transient != 0 || permanent != 1 {
		t.Fatalf("rejection should not be retried: delivered=%d transient=%d permanent=%d", delivered, transient, permanent)
	}
}

func TestForwarderDrainsBeforeExit(t *testing.T) {
	ch := NewChannel(64, DropOldest)
	sink := &scriptedSink{}
	for i := 0; i < 20; i++ {
		if err := ch.Push(rec("0xa", "tx")); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	f := NewForwarder(ForwarderConfig{MaxAttempts: 1, BackoffBase: time.Millisecond}, ch, sink, nil)
	ch.Close()
	if err := f.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sink.records()) != 20 {
		t.Fatalf("expected full drain before exit, delivered %d of 20", len(sink.records()))
	}
	if ch.Len() != 0 {
		t.Fatalf("channel should be empty after drain, %d left", ch.Len())
	}
}
