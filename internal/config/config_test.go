package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kingsalliance/bidbot/internal/config"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		check   func(t *testing.T, cfg *config.Config)
	}{
		{
			name: "valid full config",
			yaml: `
discord:
  token: "test-token"
  guild_id: "123456"
  log_channel_id: "777"
  escalation_role_id: "888"
database:
  host: "db.example.com"
  port: 5433
  user: "bidbot"
  password: "secret"
  dbname: "bidding"
  sslmode: "require"
  driver: "sqlx"
server:
  port: 9090
telemetry:
  service_name: "my-bot"
  otlp_endpoint: "localhost:4318"
bidding:
  duration: 10m
`,
			wantErr: false,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				if cfg.Discord.Token != "test-token" {
					t.Errorf("got token %q, want %q", cfg.Discord.Token, "test-token")
				}
				if cfg.Discord.LogChannelID != "777" {
					t.Errorf("got log channel %q, want %q", cfg.Discord.LogChannelID, "777")
				}
				if cfg.Database.Port != 5433 {
					t.Errorf("got db port %d, want %d", cfg.Database.Port, 5433)
				}
				if cfg.Bidding.Duration != 10*time.Minute {
					t.Errorf("got bidding duration %s, want 10m", cfg.Bidding.Duration)
				}
			},
		},
		{
			name: "defaults applied",
			yaml: `
discord:
  token: "tok"
`,
			wantErr: false,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				if cfg.Database.Host != "localhost" {
					t.Errorf("got db host %q, want %q", cfg.Database.Host, "localhost")
				}
				if cfg.Server.Port != 8080 {
					t.Errorf("got server port %d, want %d", cfg.Server.Port, 8080)
				}
				if cfg.Telemetry.ServiceName != "bidbot" {
					t.Errorf("got service name %q, want %q", cfg.Telemetry.ServiceName, "bidbot")
				}
				if cfg.Bidding.Duration != 5*time.Minute {
					t.Errorf("got bidding duration %s, want 5m", cfg.Bidding.Duration)
				}
				if cfg.Bidding.RecoverySettleDelay != 5*time.Second {
					t.Errorf("got settle delay %s, want 5s", cfg.Bidding.RecoverySettleDelay)
				}
			},
		},
		{
			name:    "invalid yaml",
			yaml:    `{{{invalid`,
			wantErr: true,
		},
		{
			name: "bun driver accepted",
			yaml: `
discord:
  token: "tok"
database:
  driver: "bun"
`,
			wantErr: false,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				if cfg.Database.Driver != "bun" {
					t.Errorf("got driver %q, want %q", cfg.Database.Driver, "bun")
				}
			},
		},
		{
			name: "invalid driver rejected",
			yaml: `
discord:
  token: "tok"
database:
  driver: "mongodb"
`,
			wantErr: true,
		},
		{
			name: "non-positive bidding duration rejected",
			yaml: `
discord:
  token: "tok"
bidding:
  duration: 0s
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o644); err != nil {
				t.Fatal(err)
			}

			cfg, err := config.Load(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil && cfg != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := config.Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "user",
		Password: "pass",
		DBName:   "testdb",
		SSLMode:  "disable",
	}
	want := "host=localhost port=5432 user=user password=pass dbname=testdb sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
