package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const testConfigFile = `
hostname: 127.0.0.1
port: 9999
tick_rate: 20
peer_timeout: 15s
supported_versions:
  - "1.0"
  - "1.1"
lobby:
  default_max_user_count: 6
database:
  engine: postgres
  host: localhost
  port: 5432
  name: testdb
  username: testuser
  password: testpassword
`

func writeTestConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(contents), 0o600); err != nil {
		t.Fatalf("error writing test config: %v", err)
	}
	return dir
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeTestConfig(t, testConfigFile))
	if err != nil {
		t.Fatalf("LoadConfig() returned an unexpected error: %v", err)
	}

	if cfg.ListenAddress() != "127.0.0.1:9999" {
		t.Errorf("ListenAddress() want = %s, got = %s", "127.0.0.1:9999", cfg.ListenAddress())
	}
	if cfg.PeerTimeout != 15*time.Second {
		t.Errorf("PeerTimeout want = %v, got = %v", 15*time.Second, cfg.PeerTimeout)
	}
	if diff := cmp.Diff([]string{"1.0", "1.1"}, cfg.SupportedVersions); diff != "" {
		t.Errorf("SupportedVersions did not match expected; diff:\n%s", diff)
	}
	if cfg.Lobby.DefaultMaxUserCount != 6 {
		t.Errorf("Lobby.DefaultMaxUserCount want = 6, got = %d", cfg.Lobby.DefaultMaxUserCount)
	}
	// Keys absent from the file fall back to defaults.
	if cfg.Lobby.AutoStartDelay != 10*time.Second {
		t.Errorf("Lobby.AutoStartDelay want = %v, got = %v", 10*time.Second, cfg.Lobby.AutoStartDelay)
	}
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	t.Setenv("WARPSYNC_LOBBY_DEFAULT_MAX_USER_COUNT", "12")

	cfg, err := LoadConfig(writeTestConfig(t, testConfigFile))
	if err != nil {
		t.Fatalf("LoadConfig() returned an unexpected error: %v", err)
	}
	if cfg.Lobby.DefaultMaxUserCount != 12 {
		t.Errorf("Lobby.DefaultMaxUserCount want = 12, got = %d", cfg.Lobby.DefaultMaxUserCount)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(t.TempDir()); err == nil {
		t.Fatal("LoadConfig() expected an error for a directory without a config file")
	}
}

func TestConfig_DatabaseURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.Name = "testdb"
	cfg.Database.Username = "testuser"
	cfg.Database.Password = "testpassword"

	url := cfg.DatabaseURL()
	expected := "host=localhost port=5432 dbname=testdb user=testuser password=testpassword sslmode="
	if url != expected {
		t.Errorf("DatabaseURL() want = %s, got = %s", expected, url)
	}
}

func TestConfig_TickInterval(t *testing.T) {
	tests := map[string]struct {
		tickRate int
		want     time.Duration
	}{
		"thirty_hertz": {tickRate: 30, want: time.Second / 30},
		"one_hertz":    {tickRate: 1, want: time.Second},
		"unset":        {tickRate: 0, want: time.Second},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := &Config{TickRate: tt.tickRate}
			if got := cfg.TickInterval(); got != tt.want {
				t.Errorf("TickInterval() want = %v, got = %v", tt.want, got)
			}
		})
	}
}

func TestConfig_IsVersionSupported(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.IsVersionSupported("1.0") {
		t.Error("expected default version 1.0 to be supported")
	}
	if cfg.IsVersionSupported("0.9") {
		t.Error("expected version 0.9 to be unsupported")
	}
}
