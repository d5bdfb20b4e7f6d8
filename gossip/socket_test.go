package gossip

import (
	"errors"
	"testing"
	"time"
)

func TestSocketSendReceive(t *testing.T) {
	a, err := OpenSocket("127.0.0.1:0")
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	defer a.Close()
	b, err := OpenSocket("127.0.0.1:0")
	if err != nil {
		t.Fatalf("open b: %v", err)
	}
	defer b.Close()

	if err := a.Send(b.LocalAddr(), []byte("hello")); err != nil {
		t.Fatalf("send: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		from, payload, ok, err := b.Receive()
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		if ok {
			if string(payload) != "hello" {
				t.Fatalf("payload corrupted: %q", payload)
			}
			if from != a.LocalAddr() {
				t.Fatalf("wrong sender: %s want %s", from, a.LocalAddr())
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("datagram never arrived")
}

func TestSocketReceiveIsNonBlocking(t *testing.T) {
	s, err := OpenSocket("127.0.0.1:0")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	start := time.Now()
	_, _, ok, err := s.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if ok {
		t.Fatalf("expected no pending datagram")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("receive blocked for %v", elapsed)
	}
}

func TestSocketBindFailure(t *testing.T) {
	first, err := OpenSocket("127.0.0.1:0")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer first.Close()
	if _, err := OpenSocket(first.LocalAddr()); !errors.Is(err, ErrBindFailed) {
		t.Fatalf("expected ErrBindFailed got %v", err)
	}
	if _, err := OpenSocket("not an address"); !errors.Is(err, ErrBindFailed) {
		t.Fatalf("expected ErrBindFailed for garbage address got %v", err)
	}
}

func TestSocketUseAfterClose(t *testing.T) {
	s, err := OpenSocket("127.0.0.1:0")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close should be a no-op: %v", err)
	}
	if err := s.Send("127.0.0.1:9", []byte("x")); !errors.Is(err, ErrSocketClosed) {
		t.Fatalf("expected ErrSocketClosed got %v", err)
	}
	if _, _, _, err := s.Receive(); !errors.Is(err, ErrSocketClosed) {
		t.Fatalf("expected ErrSocketClosed got %v", err)
	}
}
