package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the process-wide configuration for the observer node.
type Config struct {
	ListenAddress   string   `toml:"ListenAddress"`
	DataDir         string   `toml:"DataDir"`
	NetworkName     string   `toml:"NetworkName"`
	NetworkRevision uint16   `toml:"NetworkRevision"`
	Entrypoints     []string `toml:"Entrypoints"`
	DebugAddress    string   `toml:"DebugAddress"`

	Sink  SinkConfig  `toml:"sink"`
	Relay RelayConfig `toml:"relay"`
	Peers PeersConfig `toml:"peers"`
	Log   LogConfig   `toml:"log"`
}

// SinkConfig selects and parameterizes the downstream sink transport.
type SinkConfig struct {
	URL              string `toml:"URL"`
	TimeoutMillis    int    `toml:"TimeoutMillis"`
	MaxAttempts      int    `toml:"MaxAttempts"`
	BackoffMillis    int    `toml:"BackoffMillis"`
	BackoffCapMillis int    `toml:"BackoffCapMillis"`
}

// RelayConfig bounds the forwarding channel.
type RelayConfig struct {
	ChannelCapacity int    `toml:"ChannelCapacity"`
	OverflowPolicy  string `toml:"OverflowPolicy"`
}

// PeersConfig tunes membership maintenance.
type PeersConfig struct {
	TableCapacity       int     `toml:"TableCapacity"`
	PruneTimeoutSeconds int     `toml:"PruneTimeoutSeconds"`
	PushIntervalSeconds int     `toml:"PushIntervalSeconds"`
	PullIntervalSeconds int     `toml:"PullIntervalSeconds"`
	PushFanout          int     `toml:"PushFanout"`
	RateMsgsPerSec      float64 `toml:"RateMsgsPerSec"`
	WarmBootstrap       bool    `toml:"WarmBootstrap"`
}

// LogConfig optionally adds a rotating file writer alongside stdout.
type LogConfig struct {
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Load reads the configuration from the given path, writing a default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the node cannot safely run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("ListenAddress must not be empty")
	}
	if _, _, err := net.SplitHostPort(c.ListenAddress); err != nil {
		return fmt.Errorf("invalid ListenAddress %q: %w", c.ListenAddress, err)
	}
	if len(c.Entrypoints) == 0 {
		return fmt.Errorf("at least one entrypoint is required")
	}
	for _, ep := range c.Entrypoints {
		if _, _, err := net.SplitHostPort(strings.TrimSpace(ep)); err != nil {
			return fmt.Errorf("invalid entrypoint %q: %w", ep, err)
		}
	}
	if strings.TrimSpace(c.Sink.URL) == "" {
		return fmt.Errorf("sink URL is required")
	}
	switch c.Relay.OverflowPolicy {
	case "drop_oldest", "block":
	default:
		return fmt.Errorf("unknown overflow policy %q (want drop_oldest or block)", c.Relay.OverflowPolicy)
	}
	if c.Relay.ChannelCapacity <= 0 {
		return fmt.Errorf("channel capacity must be positive")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	def := defaultConfig()
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = def.ListenAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = def.DataDir
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = def.NetworkName
	}
	if cfg.NetworkRevision == 0 {
		cfg.NetworkRevision = def.NetworkRevision
	}
	if cfg.Relay.ChannelCapacity == 0 {
		cfg.Relay.ChannelCapacity = def.Relay.ChannelCapacity
	}
	if strings.TrimSpace(cfg.Relay.OverflowPolicy) == "" {
		cfg.Relay.OverflowPolicy = def.Relay.OverflowPolicy
	}
	if cfg.Sink.TimeoutMillis == 0 {
		cfg.Sink.TimeoutMillis = def.Sink.TimeoutMillis
	}
	if cfg.Sink.MaxAttempts == 0 {
		cfg.Sink.MaxAttempts = def.Sink.MaxAttempts
	}
	if cfg.Sink.BackoffMillis == 0 {
		cfg.Sink.BackoffMillis = def.Sink.BackoffMillis
	}
	if cfg.Sink.BackoffCapMillis == 0 {
		cfg.Sink.BackoffCapMillis = def.Sink.BackoffCapMillis
	}
	if cfg.Peers.TableCapacity == 0 {
		cfg.Peers.TableCapacity = def.Peers.TableCapacity
	}
	if cfg.Peers.PruneTimeoutSeconds == 0 {
		cfg.Peers.PruneTimeoutSeconds = def.Peers.PruneTimeoutSeconds
	}
	if cfg.Peers.PushIntervalSeconds == 0 {
		cfg.Peers.PushIntervalSeconds = def.Peers.PushIntervalSeconds
	}
	if cfg.Peers.PullIntervalSeconds == 0 {
		cfg.Peers.PullIntervalSeconds = def.Peers.PullIntervalSeconds
	}
	if cfg.Peers.PushFanout == 0 {
		cfg.Peers.PushFanout = def.Peers.PushFanout
	}
	if cfg.Peers.RateMsgsPerSec == 0 {
		cfg.Peers.RateMsgsPerSec = def.Peers.RateMsgsPerSec
	}
}

func defaultConfig() *Config {
	return &Config{
		ListenAddress:   "127.0.0.1:8001",
		DataDir:         "./observer-data",
		NetworkName:     "testnet",
		NetworkRevision: 27799,
		Entrypoints: []string{
			"entrypoint.testnet.solana.com:8001",
			"entrypoint2.testnet.solana.com:8001",
			"entrypoint3.testnet.solana.com:8001",
		},
		DebugAddress: "127.0.0.1:8899",
		Sink: SinkConfig{
			URL:            "http://127.0.0.1:9000/records",
			TimeoutMillis:  5000,
			MaxAttempts:    3,
			BackoffMillis:  200,
			BackoffCapMillis: 2000,
		},
		Relay: RelayConfig{
			ChannelCapacity: 1024,
			OverflowPolicy:  "drop_oldest",
		},
		Peers: PeersConfig{
			TableCapacity:       4096,
			PruneTimeoutSeconds: 300,
			PushIntervalSeconds: 5,
			PullIntervalSeconds: 10,
			PushFanout:          6,
			RateMsgsPerSec:      64,
			WarmBootstrap:       true,
		},
		Log: LogConfig{
			MaxSizeMB:  100,
			MaxBackups: 7,
			MaxAgeDays: 7,
		},
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := defaultConfig()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
