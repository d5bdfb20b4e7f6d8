package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"gossipwatch/gossip"
)

func TestHTTPSinkDeliversJSON(t *testing.T) {
	var got atomic.Pointer[gossip.CapturedRecord]
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request: %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		var rec gossip.CapturedRecord
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			t.Errorf("decode body: %v", err)
		}
		got.Store(&rec)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sink := NewHTTPSink(server.URL, time.Second)
	err := sink.Deliver(context.Background(), rec("0xa", "tx-bytes"))
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	delivered := got.Load()
	if delivered == nil || string(delivered.Payload) != "tx-bytes" || delivered.Source != "0xa" {
		t.Fatalf("sink received wrong record: %+v", delivered)
	}
}

func TestHTTPSinkClassifiesServerErrors(t *testing.T) {
	status := atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer server.Close()
	sink := NewHTTPSink(server.URL, time.Second)

	status.Store(http.StatusInternalServerError)
	if err := sink.Deliver(context.Background(), rec("0xa", "tx")); !errors.Is(err, ErrSinkUnreachable) {
		t.Fatalf("5xx should be transient, got %v", err)
	}
	status.Store(http.StatusTooManyRequests)
	if err := sink.Deliver(context.Background(), rec("0xa", "tx")); !errors.Is(err, ErrSinkUnreachable) {
		t.Fatalf("429 should be transient, got %v", err)
	}
	status.Store(http.StatusBadRequest)
	if err := sink.Deliver(context.Background(), rec("0xa", "tx")); !errors.Is(err, ErrSinkRejected) {
		t.Fatalf("4xx should be a rejection, got %v", err)
	}
}

func TestHTTPSinkUnreachableEndpoint(t *testing.T) {
	// A server we immediately shut down leaves a port nothing listens on.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	sink := NewHTTPSink(url, 500*time.Millisecond)
	err := sink.Deliver(context.Background(), rec("0xa", "tx"))
	if !errors.Is(err, ErrSinkUnreachable) && !errors.Is(err, ErrSinkTimeout) {
		t.Fatalf("expected transient transport error, got %v", err)
	}
}
