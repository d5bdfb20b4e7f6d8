package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"nhooyr.io/websocket"

	"gossipwatch/gossip"
)

// Sink delivery errors. The forwarder treats Unreachable and Timeout as
// transient; Rejected means the sink refused the record and retrying with the
// same bytes is pointless.
var (
	ErrSinkUnreachable = errors.New("relay: sink unreachable")
	ErrSinkTimeout     = errors.New("relay: sink timeout")
	ErrSinkRejected    = errors.New("relay: sink rejected record")
)

// Sink is the downstream consumer of captured records. Implementations own
// their transport; the forwarder only sees this contract.
type Sink interface {
	Deliver(ctx context.Context, rec gossip.CapturedRecord) error
}

// HTTPSink POSTs each record as JSON to a webhook endpoint.
type HTTPSink struct {
	endpoint string
	client   *http.Client
}

// NewHTTPSink builds a webhook sink. The transport is instrumented so sink
// latency shows up in traces.
func NewHTTPSink(endpoint string, timeout time.Duration) *HTTPSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSink{
		endpoint: endpoint,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (s *HTTPSink) Deliver(ctx context.Context, rec gossip.CapturedRecord) error {
	body, err := json.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("%w: encode record: %v", ErrSinkRejected, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSinkRejected, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return classifyTransportErr(err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: status %d", ErrSinkUnreachable, resp.StatusCode)
	}
	return fmt.Errorf("%w: status %d", ErrSinkRejected, resp.StatusCode)
}

// WebSocketSink streams records over a single long-lived WebSocket,
// redialing on the next delivery after a write failure.
type WebSocketSink struct {
	endpoint string

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocketSink builds a streaming sink for ws:// or wss:// endpoints.
func NewWebSocketSink(endpoint string) *WebSocketSink {
	return &WebSocketSink{endpoint: endpoint}
}

func (s *WebSocketSink) Deliver(ctx context.Context, rec gossip.CapturedRecord) error {
	body, err := json.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("%w: encode record: %v", ErrSinkRejected, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		conn, _, err := websocket.Dial(ctx, s.endpoint, nil)
		if err != nil {
			return classifyTransportErr(err)
		}
		s.conn = conn
	}
	if err := s.conn.Write(ctx, websocket.MessageText, body); err != nil {
		_ = s.conn.Close(websocket.StatusInternalError, "write failed")
		s.conn = nil
		return classifyTransportErr(err)
	}
	return nil
}

// Close tears down the streaming connection if one is open.
func (s *WebSocketSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close(websocket.StatusNormalClosure, "shutdown")
	s.conn = nil
	return err
}

func classifyTransportErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrSinkTimeout, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%w: %v", ErrSinkTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrSinkUnreachable, err)
}
