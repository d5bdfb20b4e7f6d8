package gossip

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func TestLoadOrCreateIdentityPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node_key.json")
	first, err := LoadOrCreateIdentity(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(string(first.ID), "0x") || len(first.ID) != 66 {
		t.Fatalf("unexpected peer ID format: %s", first.ID)
	}

	second, err := LoadOrCreateIdentity(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("identity not stable across restarts: %s vs %s", first.ID, second.ID)
	}
}

func TestLoadIdentityAcceptsRawHex(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "node_key")
	raw := hex.EncodeToString(ethcrypto.FromECDSA(key)) + "\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	identity, err := LoadOrCreateIdentity(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if identity.ID != derivePeerID(&key.PublicKey) {
		t.Fatalf("raw hex key produced wrong ID")
	}
}

func TestLoadIdentityRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node_key.json")
	if err := os.WriteFile(path, []byte("not a key"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadOrCreateIdentity(path); err == nil {
		t.Fatalf("expected error for corrupt identity file")
	}
}
