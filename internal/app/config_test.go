package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yungbote/teamchat-backend/internal/platform/logger"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TEAMCHAT_CONFIG", "")
	t.Setenv("HTTP_ADDR", "")
	cfg, err := LoadConfig(logger.Nop())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("http addr: want=%q got=%q", ":8080", cfg.HTTPAddr)
	}
	if cfg.ChatDefaultPerPage != 50 || cfg.SSEHeartbeat != 15*time.Second {
		t.Fatalf("defaults: got=%+v", cfg)
	}
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "teamchat.yaml")
	body := []byte(`
http_addr: ":9000"
access_token_ttl: 2h
db:
  driver: sqlite
  sqlite_path: "file:dev.db"
general_room_name: Lobby
cors_allow_origins: ["https://chat.example.com"]
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TEAMCHAT_CONFIG", path)
	t.Setenv("HTTP_ADDR", ":9100")
	t.Setenv("GENERAL_ROOM_NAME", "")

	cfg, err := LoadConfig(logger.Nop())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTPAddr != ":9100" {
		t.Fatalf("env override: want=%q got=%q", ":9100", cfg.HTTPAddr)
	}
	if cfg.AccessTokenTTL != 2*time.Hour {
		t.Fatalf("ttl: want=%s got=%s", 2*time.Hour, cfg.AccessTokenTTL)
	}
	if cfg.DB.Driver != "sqlite" || cfg.DB.SQLitePath != "file:dev.db" {
		t.Fatalf("db: got=%+v", cfg.DB)
	}
	if cfg.GeneralRoomName != "Lobby" {
		t.Fatalf("general room: want=%q got=%q", "Lobby", cfg.GeneralRoomName)
	}
	if len(cfg.CORSAllowOrigins) != 1 || cfg.CORSAllowOrigins[0] != "https://chat.example.com" {
		t.Fatalf("cors: got=%v", cfg.CORSAllowOrigins)
	}
}

func TestLoadConfigBadFile(t *testing.T) {
	t.Setenv("TEAMCHAT_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := LoadConfig(logger.Nop()); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
