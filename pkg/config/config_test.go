package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
server:
  address: "127.0.0.1"
  port: 9090
  db_path: "/var/lib/chatrelay"
assistant:
  base_url: "https://api.example.com/v1"
  api_key: "sk-file"
  assistant_id: "asst_file"
  poll_interval: "750ms"
  poll_max_ticks: 40
  request_timeout: 15
search:
  api_key: "tv-file"
  default_domains:
    - docs.example.com
  empty_means_unrestricted: true
  max_results: 5
  timeout: "3s"
security:
  whitelist:
    - alice@example.com
  signing_keys:
    - secret
retention:
  enabled: true
  cron: "0 2 * * *"
  period: "30d"
  max_bytes: "64MB"
logging:
  level: "debug"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesTypes(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:9090" {
		t.Fatalf("addr = %q", cfg.Addr())
	}
	if got := cfg.Assistant.PollInterval.Duration(); got != 750*time.Millisecond {
		t.Fatalf("poll_interval = %v", got)
	}
	// bare numbers are seconds
	if got := cfg.Assistant.RequestTimeout.Duration(); got != 15*time.Second {
		t.Fatalf("request_timeout = %v", got)
	}
	if cfg.Assistant.PollMaxTicks != 40 {
		t.Fatalf("poll_max_ticks = %d", cfg.Assistant.PollMaxTicks)
	}
	if got := cfg.Retention.MaxBytes.Int64(); got != 64*1000*1000 {
		t.Fatalf("max_bytes = %d", got)
	}
	if !cfg.Search.EmptyMeansUnrestricted {
		t.Fatal("empty_means_unrestricted not parsed")
	}
	if len(cfg.Security.Whitelist) != 1 || cfg.Security.Whitelist[0] != "alice@example.com" {
		t.Fatalf("whitelist = %v", cfg.Security.Whitelist)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, "assistant:\n  poll_interval: \"soon\"\n"))
	if err == nil {
		t.Fatal("invalid duration accepted")
	}
}

func TestAddrDefaults(t *testing.T) {
	var cfg Config
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Fatalf("default addr = %q", cfg.Addr())
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("CHATRELAY_ASSISTANT_API_KEY", "sk-env")
	t.Setenv("CHATRELAY_ASSISTANT_POLL_INTERVAL", "2s")
	t.Setenv("CHATRELAY_WHITELIST", "bob@example.com, carol@example.com")

	path := writeConfig(t, sampleYAML)
	flags := Flags{Addr: ":8080", DB: "./.database", Config: path, Set: map[string]bool{"config": true}}
	eff, err := LoadEffective(flags)
	if err != nil {
		t.Fatalf("load effective: %v", err)
	}
	if eff.Config.Assistant.APIKey != "sk-env" {
		t.Fatalf("env did not win: %q", eff.Config.Assistant.APIKey)
	}
	if got := eff.Config.Assistant.PollInterval.Duration(); got != 2*time.Second {
		t.Fatalf("poll_interval = %v", got)
	}
	if len(eff.Config.Security.Whitelist) != 2 {
		t.Fatalf("whitelist = %v", eff.Config.Security.Whitelist)
	}
	// untouched file values survive
	if eff.Config.Assistant.AssistantID != "asst_file" {
		t.Fatalf("file value lost: %q", eff.Config.Assistant.AssistantID)
	}
	if eff.DBPath != "/var/lib/chatrelay" {
		t.Fatalf("db path = %q", eff.DBPath)
	}
}

func TestFlagsWinOverConfig(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	flags := Flags{
		Addr:   ":7070",
		DB:     "/tmp/flagdb",
		Config: path,
		Set:    map[string]bool{"config": true, "addr": true, "db": true},
	}
	eff, err := LoadEffective(flags)
	if err != nil {
		t.Fatalf("load effective: %v", err)
	}
	if eff.Addr != ":7070" {
		t.Fatalf("addr = %q, want flag value", eff.Addr)
	}
	if eff.DBPath != "/tmp/flagdb" {
		t.Fatalf("db path = %q, want flag value", eff.DBPath)
	}
	if eff.Source != "flags" {
		t.Fatalf("source = %q", eff.Source)
	}
}

func TestMissingConfigFileIsNotFatal(t *testing.T) {
	flags := Flags{
		Addr:   ":8080",
		DB:     "./.database",
		Config: filepath.Join(t.TempDir(), "nope.yaml"),
		Set:    map[string]bool{},
	}
	eff, err := LoadEffective(flags)
	if err != nil {
		t.Fatalf("missing file must not be fatal: %v", err)
	}
	if eff.Config == nil {
		t.Fatal("nil config for missing file")
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("CHATRELAY_CONFIG", "/etc/chatrelay.yaml")
	if got := ResolveConfigPath("./config.yaml", false); got != "/etc/chatrelay.yaml" {
		t.Fatalf("env path ignored: %q", got)
	}
	if got := ResolveConfigPath("./explicit.yaml", true); got != "./explicit.yaml" {
		t.Fatalf("explicit flag must win: %q", got)
	}
}

func TestRuntimeConfigAccessors(t *testing.T) {
	SetRuntime(&RuntimeConfig{
		SigningKeys:     map[string]struct{}{"k1": {}},
		WhitelistEmails: map[string]struct{}{"alice@example.com": {}},
	})
	t.Cleanup(func() { SetRuntime(nil) })

	keys := GetSigningKeys()
	if _, ok := keys["k1"]; !ok {
		t.Fatal("signing key missing")
	}
	keys["k2"] = struct{}{}
	if _, ok := GetSigningKeys()["k2"]; ok {
		t.Fatal("accessor returned shared map")
	}
	if _, ok := GetWhitelistEmails()["alice@example.com"]; !ok {
		t.Fatal("whitelist email missing")
	}
}
