package gossip

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// State tracks the membership client's lifecycle.
type State int32

const (
	StateBootstrapping State = iota
	StateJoining
	StateActive
	StateDraining
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateBootstrapping:
		return "bootstrapping"
	case StateJoining:
		return "joining"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateShutdown:
		return "shutdown"
	default:
		return "invalid"
	}
}

const (
	defaultPushInterval   = 5 * time.Second
	defaultPullInterval   = 10 * time.Second
	defaultPruneInterval  = 30 * time.Second
	defaultPruneTimeout   = 5 * time.Minute
	defaultPushFanout     = 6
	defaultPollInterval   = 20 * time.Millisecond
	defaultJoinBase       = 500 * time.Millisecond
	defaultJoinCap        = 30 * time.Second
	defaultContactLogTick = 2 * time.Minute
	pullResponseMaxValues = 32
)

// RecordSink receives captured records from the membership client. The only
// implementation in this repo is the relay channel; the interface keeps the
// capture path decoupled from delivery.
type RecordSink interface {
	Push(CapturedRecord) error
}

// ClientConfig carries the membership client's tunables. Zero values select
// the documented defaults.
type ClientConfig struct {
	Entrypoints []string
	Revision    uint16

	PushInterval       time.Duration
	PullInterval       time.Duration
	PruneInterval      time.Duration
	PruneTimeout       time.Duration
	PushFanout         int
	JoinBackoffBase    time.Duration
	JoinBackoffCap     time.Duration
	RateMsgsPerSec     float64
	RateBurst          int
	ContactLogInterval time.Duration
}

func (cfg ClientConfig) withDefaults() ClientConfig {
	if cfg.PushInterval <= 0 {
		cfg.PushInterval = defaultPushInterval
	}
	if cfg.PullInterval <= 0 {
		cfg.PullInterval = defaultPullInterval
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = defaultPruneInterval
	}
	if cfg.PruneTimeout <= 0 {
		cfg.PruneTimeout = defaultPruneTimeout
	}
	if cfg.PushFanout <= 0 {
		cfg.PushFanout = defaultPushFanout
	}
	if cfg.JoinBackoffBase <= 0 {
		cfg.JoinBackoffBase = defaultJoinBase
	}
	if cfg.JoinBackoffCap <= 0 {
		cfg.JoinBackoffCap = defaultJoinCap
	}
	if cfg.ContactLogInterval <= 0 {
		cfg.ContactLogInterval = defaultContactLogTick
	}
	return cfg
}

// Client joins the gossip overlay as a non-voting observer, maintains the
// peer table through periodic push/pull exchanges, and hands every captured
// record to the sink. It owns the peer table: no other goroutine writes it.
type Client struct {
	cfg      ClientConfig
	identity *Identity
	socket   *Socket
	table    *PeerTable
	store    *PeerStore
	sink     RecordSink
	logger   *slog.Logger
	metrics  *gossipMetrics
	limiter  *peerRateLimiter
	now      func() time.Time

	state atomic.Int32

	// prunedBy holds peers that asked us to stop pushing to them, with the
	// time of the request so stale prunes age out.
	prunedBy map[PeerID]time.Time

	mu        sync.Mutex
	captured  uint64
	discarded uint64
}

// NewClient wires a membership client. The peer store may be nil when warm
// bootstrap is disabled.
func NewClient(cfg ClientConfig, identity *Identity, socket *Socket, table *PeerTable, store *PeerStore, sink RecordSink, logger *slog.Logger) (*Client, error) {
	if identity == nil {
		return nil, errors.New("gossip: identity required")
	}
	if socket == nil {
		return nil, errors.New("gossip: socket required")
	}
	if table == nil {
		table = NewPeerTable(0)
	}
	if sink == nil {
		return nil, errors.New("gossip: record sink required")
	}
	if len(cfg.Entrypoints) == 0 {
		return nil, ErrNoEntrypoints
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		cfg:      cfg.withDefaults(),
		identity: identity,
		socket:   socket,
		table:    table,
		store:    store,
		sink:     sink,
		logger:   logger.With(slog.String("component", "gossip_client")),
		metrics:  newGossipMetrics(),
		limiter:  newPeerRateLimiter(cfg.RateMsgsPerSec, cfg.RateBurst),
		now:      time.Now,
		prunedBy: make(map[PeerID]time.Time),
	}
	c.state.Store(int32(StateBootstrapping))
	return c, nil
}

// State reports the current lifecycle state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Counters returns the running captured/discarded totals.
func (c *Client) Counters() (captured, discarded uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.captured, c.discarded
}

// Run drives the state machine until the context is cancelled, then drains
// in-flight datagrams and returns. The socket stays open; closing it is the
// lifecycle controller's job.
func (c *Client) Run(ctx context.Context) error {
	if err := c.join(ctx); err != nil {
		c.transition(StateShutdown)
		return err
	}
	c.active(ctx)
	c.drain()
	c.transition(StateShutdown)
	return nil
}

// join sends pull requests to the entrypoints (and any warm-cache addresses)
// under capped exponential backoff until a valid pull response arrives.
// Entrypoint unreachability is never fatal, it only delays the start.
func (c *Client) join(ctx context.Context) error {
	c.transition(StateJoining)
	targets := append([]string(nil), c.cfg.Entrypoints...)
	if c.store != nil {
		targets = append(targets, c.store.Addresses(8)...)
	}
	backoff := newBackoff(c.cfg.JoinBackoffBase, c.cfg.JoinBackoffCap)
	next := 0
	for {
		target := targets[next%len(targets)]
		next++
		if err := c.sendPullRequest(target); err != nil {
			c.metrics.joins.WithLabelValues("send_failed").Inc()
			c.logger.Warn("Join pull request failed",
				slog.String("entrypoint", target),
				slog.Any("error", err))
		} else {
			c.metrics.joins.WithLabelValues("sent").Inc()
		}
		deadline := c.now().Add(backoff.Next())
		for c.now().Before(deadline) {
			if joined, err := c.awaitJoinResponse(ctx); err != nil {
				return err
			} else if joined {
				c.metrics.joins.WithLabelValues("joined").Inc()
				c.transition(StateActive)
				c.logger.Info("Joined gossip overlay",
					slog.String("entrypoint", target),
					slog.Int("peers", c.table.Len()))
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(defaultPollInterval):
			}
		}
	}
}

// awaitJoinResponse polls the socket once. Only pull responses are acted on
// before the Active transition; every other datagram is left unprocessed.
func (c *Client) awaitJoinResponse(ctx context.Context) (bool, error) {
	for {
		addr, payload, ok, err := c.socket.Receive()
		if err != nil {
			if errors.Is(err, ErrSocketClosed) {
				return false, err
			}
			c.logger.Warn("Receive failed while joining", slog.Any("error", err))
			return false, nil
		}
		if !ok {
			return false, nil
		}
		msg, err := DecodeMessage(payload)
		if err != nil || msg.Kind != MsgTypePullResponse {
			continue
		}
		c.handleMessage(ctx, addr, msg)
		return true, nil
	}
}

// active is the steady-state loop: drain the socket, then service whichever
// timer is due. All peer table writes happen on this goroutine.
func (c *Client) active(ctx context.Context) {
	pushTicker := time.NewTicker(c.cfg.PushInterval)
	defer pushTicker.Stop()
	pullTicker := time.NewTicker(c.cfg.PullInterval)
	defer pullTicker.Stop()
	pruneTicker := time.NewTicker(c.cfg.PruneInterval)
	defer pruneTicker.Stop()
	contactTicker := time.NewTicker(c.cfg.ContactLogInterval)
	defer contactTicker.Stop()

	for {
		c.drainSocket(ctx)
		select {
		case <-ctx.Done():
			return
		case <-pushTicker.C:
			c.pushContact()
		case <-pullTicker.C:
			c.pullFromPeer()
		case <-pruneTicker.C:
			c.pruneStale()
		case <-contactTicker.C:
			c.logContactDebug()
		case <-time.After(defaultPollInterval):
		}
	}
}

// drain enters Draining, processes whatever is still queued on the socket,
// and stops originating traffic.
func (c *Client) drain() {
	c.transition(StateDraining)
	ctx := context.Background()
	for {
		addr, payload, ok, err := c.socket.Receive()
		if err != nil || !ok {
			break
		}
		c.ingest(ctx, addr, payload)
	}
	if c.store != nil {
		c.persistPeers()
	}
}

func (c *Client) drainSocket(ctx context.Context) {
	for i := 0; i < 256; i++ {
		addr, payload, ok, err := c.socket.Receive()
		if err != nil {
			if !errors.Is(err, ErrSocketClosed) {
				c.logger.Warn("Receive failed", slog.Any("error", err))
			}
			return
		}
		if !ok {
			return
		}
		c.ingest(ctx, addr, payload)
	}
}

// ingest is the per-datagram path: rate limit, decode, then handle.
func (c *Client) ingest(ctx context.Context, addr string, payload []byte) {
	now := c.now()
	if !c.limiter.allow(addr, now) {
		c.metrics.observeDiscard(ctx, string(DiscardRateLimited), 1)
		c.countDiscards(1)
		return
	}
	msg, err := DecodeMessage(payload)
	if err != nil {
		c.metrics.observeDiscard(ctx, string(DiscardDecodeFailure), 1)
		c.countDiscards(1)
		return
	}
	c.handleMessage(ctx, addr, msg)
}

// handleMessage updates membership state from the datagram and, independent
// of the message kind, feeds the payload set through the capture filter.
// Membership maintenance always happens first: even a message whose payloads
// are all discarded keeps its sender alive in the peer table.
func (c *Client) handleMessage(ctx context.Context, addr string, msg *GossipMessage) {
	now := c.now()
	c.metrics.observeDatagram("inbound", msg.Kind)
	c.updateMembership(addr, msg, now)

	switch msg.Kind {
	case MsgTypePullRequest:
		c.servePullRequest(addr, msg)
		return
	case MsgTypePrune:
		for _, origin := range msg.Prunes {
			if origin == c.identity.ID {
				c.prunedBy[msg.From] = now
			}
		}
		return
	}

	if msg.Contact != nil && msg.Contact.Revision != c.cfg.Revision {
		// Wrong network revision: the peer still counts for membership but
		// its payloads are not trusted.
		c.metrics.observeDiscard(ctx, string(DiscardRevision), len(msg.Values))
		c.countDiscards(len(msg.Values))
		return
	}

	result := Classify(msg, now)
	for reason, n := range result.Discards {
		c.metrics.observeDiscard(ctx, string(reason), n)
		c.countDiscards(n)
	}
	for _, rec := range result.Records {
		if err := c.sink.Push(rec); err != nil {
			c.logger.Warn("Forwarding channel rejected record", slog.Any("error", err))
			continue
		}
	}
	c.metrics.observeCaptured(ctx, len(result.Records))
	c.countCaptured(len(result.Records))
}

// updateMembership records the sender and any gossiped contacts in the peer
// table. This runs for every decoded message regardless of later filtering.
func (c *Client) updateMembership(addr string, msg *GossipMessage, now time.Time) {
	if msg.From != "" && msg.From != c.identity.ID {
		rec := PeerRecord{ID: msg.From, Addr: addr, LastSeen: now}
		if msg.Contact != nil && msg.Contact.ID == msg.From {
			if msg.Contact.Gossip != "" {
				rec.Addr = msg.Contact.Gossip
			}
			rec.Voting = msg.Contact.Voting
			rec.Staked = msg.Contact.Staked
		}
		c.table.Upsert(rec)
	}
	for _, value := range msg.Values {
		if value.Kind != ValueContactInfo || value.Contact == nil {
			continue
		}
		contact := value.Contact
		if contact.ID == "" || contact.ID == c.identity.ID {
			continue
		}
		seen := now
		if contact.Wallclock > 0 {
			if wc := time.UnixMilli(contact.Wallclock); wc.Before(seen) {
				seen = wc
			}
		}
		c.table.Upsert(PeerRecord{
			ID:       contact.ID,
			Addr:     contact.Gossip,
			LastSeen: seen,
			Voting:   contact.Voting,
			Staked:   contact.Staked,
		})
	}
	c.metrics.peers.Set(float64(c.table.Len()))
}

// pushContact advertises our own non-voting contact info to a random peer
// sample, skipping peers that pruned us.
func (c *Client) pushContact() {
	contact := c.contact()
	msg := &GossipMessage{
		Kind:    MsgTypePush,
		From:    c.identity.ID,
		Contact: &contact,
		Values: []CrdsValue{{
			Kind:      ValueContactInfo,
			Origin:    c.identity.ID,
			Wallclock: contact.Wallclock,
			Contact:   &contact,
		}},
	}
	payload, err := EncodeMessage(msg)
	if err != nil {
		c.logger.Error("Encode push failed", slog.Any("error", err))
		return
	}
	sample := c.table.Sample(c.cfg.PushFanout)
	for _, id := range sample {
		if _, pruned := c.prunedBy[id]; pruned {
			continue
		}
		rec, ok := c.table.Get(id)
		if !ok || rec.Addr == "" {
			continue
		}
		if err := c.socket.Send(rec.Addr, payload); err != nil {
			c.logger.Warn("Push send failed",
				slog.String("peer", string(id)),
				slog.Any("error", err))
			continue
		}
		c.metrics.observeDatagram("outbound", MsgTypePush)
	}
}

// pullFromPeer requests missing state from one random peer, falling back to
// an entrypoint when the table is empty.
func (c *Client) pullFromPeer() {
	target := ""
	if sample := c.table.Sample(1); len(sample) == 1 {
		if rec, ok := c.table.Get(sample[0]); ok {
			target = rec.Addr
		}
	}
	if target == "" {
		target = c.cfg.Entrypoints[0]
	}
	if err := c.sendPullRequest(target); err != nil {
		c.logger.Warn("Pull send failed",
			slog.String("target", target),
			slog.Any("error", err))
	}
}

func (c *Client) sendPullRequest(target string) error {
	contact := c.contact()
	msg := &GossipMessage{
		Kind:    MsgTypePullRequest,
		From:    c.identity.ID,
		Contact: &contact,
	}
	payload, err := EncodeMessage(msg)
	if err != nil {
		return err
	}
	if err := c.socket.Send(target, payload); err != nil {
		return err
	}
	c.metrics.observeDatagram("outbound", MsgTypePullRequest)
	return nil
}

// servePullRequest answers a peer's pull with the contacts we know. Behaving
// like a well-mannered member keeps us inside the push mesh.
func (c *Client) servePullRequest(addr string, req *GossipMessage) {
	ours := c.contact()
	values := []CrdsValue{{
		Kind:      ValueContactInfo,
		Origin:    c.identity.ID,
		Wallclock: ours.Wallclock,
		Contact:   &ours,
	}}
	for _, rec := range c.table.Snapshot() {
		if len(values) >= pullResponseMaxValues {
			break
		}
		if rec.ID == req.From || rec.Addr == "" {
			continue
		}
		contact := ContactInfo{
			ID:        rec.ID,
			Gossip:    rec.Addr,
			Wallclock: rec.LastSeen.UnixMilli(),
			Revision:  c.cfg.Revision,
			Voting:    rec.Voting,
			Staked:    rec.Staked,
		}
		values = append(values, CrdsValue{
			Kind:      ValueContactInfo,
			Origin:    rec.ID,
			Wallclock: contact.Wallclock,
			Contact:   &contact,
		})
	}
	msg := &GossipMessage{
		Kind:    MsgTypePullResponse,
		From:    c.identity.ID,
		Contact: &ours,
		Values:  values,
	}
	payload, err := EncodeMessage(msg)
	if err != nil {
		c.logger.Error("Encode pull response failed", slog.Any("error", err))
		return
	}
	if err := c.socket.Send(addr, payload); err != nil {
		c.logger.Warn("Pull response send failed", slog.Any("error", err))
		return
	}
	c.metrics.observeDatagram("outbound", MsgTypePullResponse)
}

func (c *Client) pruneStale() {
	now := c.now()
	removed := c.table.Prune(now, c.cfg.PruneTimeout)
	if removed > 0 {
		c.metrics.pruned.Add(float64(removed))
		c.metrics.peers.Set(float64(c.table.Len()))
	}
	for id, when := range c.prunedBy {
		if now.Sub(when) > c.cfg.PruneTimeout {
			delete(c.prunedBy, id)
		}
	}
}

// persistPeers refreshes the warm-bootstrap cache from the live table during
// drain. The live table itself is discarded with the process.
func (c *Client) persistPeers() {
	for _, rec := range c.table.Snapshot() {
		if rec.Addr == "" {
			continue
		}
		entry := PeerStoreEntry{ID: rec.ID, Addr: rec.Addr, LastSeen: rec.LastSeen}
		if err := c.store.Put(entry); err != nil {
			c.logger.Warn("Peer cache write failed",
				slog.String("peer", string(rec.ID)),
				slog.Any("error", err))
			return
		}
	}
}

func (c *Client) logContactDebug() {
	captured, discarded := c.Counters()
	c.logger.Info("Gossip contact summary",
		slog.Int("peers", c.table.Len()),
		slog.Uint64("captured", captured),
		slog.Uint64("discarded", discarded),
		slog.String("state", c.State().String()))
}

func (c *Client) contact() ContactInfo {
	return ObserverContact(c.identity.ID, c.socket.LocalAddr(), c.cfg.Revision, c.now())
}

func (c *Client) transition(next State) {
	prev := State(c.state.Swap(int32(next)))
	if prev != next {
		c.logger.Info("Membership state changed",
			slog.String("from", prev.String()),
			slog.String("to", next.String()))
	}
}

func (c *Client) countCaptured(n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	c.captured += uint64(n)
	c.mu.Unlock()
}

func (c *Client) countDiscards(n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	c.discarded += uint64(n)
	c.mu.Unlock()
}
