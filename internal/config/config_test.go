package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "LISTEN_ADDR", "DATABASE_PATH", "GIN_MODE", "USER_ID",
		"SYNC_ROUTING_MODE", "SYNC_DRAIN_INTERVAL", "REMOTE_MONGO_URI", "REMOTE_MONGO_DATABASE",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("expected default listen addr :8080, got %s", cfg.ListenAddr)
	}
	if cfg.DatabasePath != "habitledger.db" {
		t.Fatalf("unexpected database path: %s", cfg.DatabasePath)
	}
	if cfg.UserID != "local" {
		t.Fatalf("unexpected user id: %s", cfg.UserID)
	}
	if cfg.RoutingModeDefault != "dual" {
		t.Fatalf("unexpected routing default: %s", cfg.RoutingModeDefault)
	}
	if cfg.SyncDrainInterval != 30*time.Second {
		t.Fatalf("unexpected drain interval: %v", cfg.SyncDrainInterval)
	}
	if cfg.RemoteMongoDB != "habitledger" {
		t.Fatalf("unexpected mongo database: %s", cfg.RemoteMongoDB)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("DATABASE_PATH", "/tmp/h.db")
	t.Setenv("USER_ID", "alice")
	t.Setenv("SYNC_ROUTING_MODE", "new")
	t.Setenv("SYNC_DRAIN_INTERVAL", "5")
	t.Setenv("REMOTE_MONGO_URI", "mongodb://localhost:27017")

	cfg := Load()
	if cfg.ListenAddr != ":9000" {
		t.Fatalf("expected listen addr :9000, got %s", cfg.ListenAddr)
	}
	if cfg.DatabasePath != "/tmp/h.db" {
		t.Fatalf("unexpected database path: %s", cfg.DatabasePath)
	}
	if cfg.UserID != "alice" {
		t.Fatalf("unexpected user id: %s", cfg.UserID)
	}
	if cfg.RoutingModeDefault != "new" {
		t.Fatalf("unexpected routing mode: %s", cfg.RoutingModeDefault)
	}
	if cfg.SyncDrainInterval != 5*time.Second {
		t.Fatalf("unexpected drain interval: %v", cfg.SyncDrainInterval)
	}
	if cfg.RemoteMongoURI != "mongodb://localhost:27017" {
		t.Fatalf("unexpected mongo uri: %s", cfg.RemoteMongoURI)
	}
}
