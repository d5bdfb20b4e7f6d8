package observer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"gossipwatch/config"
	"gossipwatch/gossip"
	"gossipwatch/relay"
)

// Node wires the whole pipeline and owns its lifecycle: the socket opens
// first, the membership client and forwarder run for the node's lifetime,
// and shutdown drains the channel before anything closes. The socket is
// released last.
type Node struct {
	cfg    *config.Config
	logger *slog.Logger

	socket    *gossip.Socket
	table     *gossip.PeerTable
	store     *gossip.PeerStore
	channel   *relay.Channel
	client    *gossip.Client
	forwarder *relay.Forwarder
	wsSink    *relay.WebSocketSink

	debug *http.Server
}

// New resolves entrypoints, binds the socket, and assembles the pipeline.
// A bind failure is the only fatal startup error.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Node, error) {
	if cfg == nil {
		return nil, errors.New("observer: config required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	resolver := gossip.NewEntrypointResolver()
	entrypoints := make([]string, 0, len(cfg.Entrypoints))
	for _, ep := range cfg.Entrypoints {
		resolved, err := resolver.Resolve(ctx, ep)
		if err != nil {
			// Unresolvable entrypoints delay the join, they never stop it.
			logger.Warn("Entrypoint resolution failed",
				slog.String("entrypoint", ep),
				slog.Any("error", err))
			continue
		}
		entrypoints = append(entrypoints, resolved)
	}
	if len(entrypoints) == 0 {
		return nil, gossip.ErrNoEntrypoints
	}

	socket, err := gossip.OpenSocket(cfg.ListenAddress)
	if err != nil {
		return nil, err
	}

	identity, err := gossip.LoadOrCreateIdentity(filepath.Join(cfg.DataDir, "node_key.json"))
	if err != nil {
		_ = socket.Close()
		return nil, err
	}

	var store *gossip.PeerStore
	if cfg.Peers.WarmBootstrap {
		store, err = gossip.OpenPeerStore(filepath.Join(cfg.DataDir, "peers"))
		if err != nil {
			_ = socket.Close()
			return nil, err
		}
	}

	channel := relay.NewChannel(cfg.Relay.ChannelCapacity, relay.OverflowPolicy(cfg.Relay.OverflowPolicy))

	table := gossip.NewPeerTable(cfg.Peers.TableCapacity)
	client, err := gossip.NewClient(gossip.ClientConfig{
		Entrypoints:    entrypoints,
		Revision:       cfg.NetworkRevision,
		PushInterval:   time.Duration(cfg.Peers.PushIntervalSeconds) * time.Second,
		PullInterval:   time.Duration(cfg.Peers.PullIntervalSeconds) * time.Second,
		PruneTimeout:   time.Duration(cfg.Peers.PruneTimeoutSeconds) * time.Second,
		PushFanout:     cfg.Peers.PushFanout,
		RateMsgsPerSec: cfg.Peers.RateMsgsPerSec,
	}, identity, socket, table, store, channel, logger)
	if err != nil {
		_ = socket.Close()
		return nil, err
	}

	node := &Node{
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "observer_node")),
		socket:  socket,
		table:   table,
		store:   store,
		channel: channel,
		client:  client,
	}

	sink, err := node.buildSink()
	if err != nil {
		_ = socket.Close()
		return nil, err
	}
	node.forwarder = relay.NewForwarder(relay.ForwarderConfig{
		MaxAttempts:     cfg.Sink.MaxAttempts,
		BackoffBase:     time.Duration(cfg.Sink.BackoffMillis) * time.Millisecond,
		BackoffCap:      time.Duration(cfg.Sink.BackoffCapMillis) * time.Millisecond,
		DeliveryTimeout: time.Duration(cfg.Sink.TimeoutMillis) * time.Millisecond,
	}, channel, sink, logger)

	if strings.TrimSpace(cfg.DebugAddress) != "" {
		node.debug = &http.Server{
			Addr:              cfg.DebugAddress,
			Handler:           node.debugRouter(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return node, nil
}

func (n *Node) buildSink() (relay.Sink, error) {
	url := strings.TrimSpace(n.cfg.Sink.URL)
	switch {
	case strings.HasPrefix(url, "ws://"), strings.HasPrefix(url, "wss://"):
		n.wsSink = relay.NewWebSocketSink(url)
		return n.wsSink, nil
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		return relay.NewHTTPSink(url, time.Duration(n.cfg.Sink.TimeoutMillis)*time.Millisecond), nil
	default:
		return nil, fmt.Errorf("observer: unsupported sink URL %q", url)
	}
}

// Run drives the node until ctx is cancelled, then performs the ordered
// shutdown: membership client drains, the channel closes for new pushes and
// empties, the forwarder exits, the socket closes last.
func (n *Node) Run(ctx context.Context) error {
	n.logger.Info("Observer node starting",
		slog.String("listen", n.socket.LocalAddr()),
		slog.String("sink", n.cfg.Sink.URL),
		slog.String("overflow", string(n.channel.Policy())),
		slog.Int("entrypoints", len(n.cfg.Entrypoints)))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := n.client.Run(gctx)
		// The client has finished draining; no further pushes can arrive.
		n.channel.Close()
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return n.forwarder.Run(gctx)
	})

	if n.debug != nil {
		g.Go(func() error {
			errCh := make(chan error, 1)
			go func() {
				if err := n.debug.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
					return
				}
				errCh <- nil
			}()
			select {
			case <-gctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				_ = n.debug.Shutdown(shutdownCtx)
				return nil
			case err := <-errCh:
				return err
			}
		})
	}

	err := g.Wait()

	if closeErr := n.socket.Close(); closeErr != nil {
		n.logger.Warn("Socket close failed", slog.Any("error", closeErr))
	}
	if n.store != nil {
		if closeErr := n.store.Close(); closeErr != nil {
			n.logger.Warn("Peer cache close failed", slog.Any("error", closeErr))
		}
	}
	if n.wsSink != nil {
		_ = n.wsSink.Close()
	}

	delivered, transient, permanent := n.forwarder.Counters()
	n.logger.Info("Observer node stopped",
		slog.Uint64("delivered", delivered),
		slog.Uint64("transient_failures", transient),
		slog.Uint64("permanent_failures", permanent),
		slog.Uint64("channel_drops", n.channel.Dropped()))
	return err
}
