package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// RuntimeConfig holds runtime key/whitelist sets for use by other packages.
type RuntimeConfig struct {
	SigningKeys     map[string]struct{}
	WhitelistEmails map[string]struct{}
}

// Config is the main configuration struct.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Assistant AssistantConfig `yaml:"assistant"`
	Search    SearchConfig    `yaml:"search"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
	Retention RetentionConfig `yaml:"retention"`
}

// ServerConfig holds http and tls settings.
type ServerConfig struct {
	Address string    `yaml:"address"`
	Port    int       `yaml:"port"`
	DBPath  string    `yaml:"db_path"`
	TLS     TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate configuration.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// AssistantConfig holds connection and polling settings for the hosted
// assistant backend.
type AssistantConfig struct {
	BaseURL        string   `yaml:"base_url"`
	APIKey         string   `yaml:"api_key"`
	AssistantID    string   `yaml:"assistant_id"`
	PollInterval   Duration `yaml:"poll_interval"`
	PollMaxTicks   int      `yaml:"poll_max_ticks"`
	RequestTimeout Duration `yaml:"request_timeout"`
}

// SearchConfig holds settings for the outbound web-search provider.
type SearchConfig struct {
	BaseURL        string   `yaml:"base_url"`
	APIKey         string   `yaml:"api_key"`
	DefaultDomains []string `yaml:"default_domains"`
	// EmptyMeansUnrestricted controls what an empty include_domains list in a
	// tool call means: true -> search unrestricted, false -> fall back to
	// DefaultDomains.
	EmptyMeansUnrestricted bool     `yaml:"empty_means_unrestricted"`
	MaxResults             int      `yaml:"max_results"`
	Timeout                Duration `yaml:"timeout"`
}

// SecurityConfig holds security related settings.
type SecurityConfig struct {
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	IPWhitelist []string `yaml:"ip_whitelist"`
	// Whitelist is the static set of emails allowed through the auth gate.
	Whitelist []string `yaml:"whitelist"`
	// SigningKeys verify the X-Auth-Signature header (HMAC over the email).
	SigningKeys []string `yaml:"signing_keys"`
	// AllowUnsigned lets requests through on email header alone; only for
	// deployments where a trusted identity proxy strips client headers.
	AllowUnsigned bool     `yaml:"allow_unsigned"`
	AdminKeys     []string `yaml:"admin_keys"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// RetentionConfig holds configuration for the history-mirror purge runner.
type RetentionConfig struct {
	Enabled   bool      `yaml:"enabled"`
	Cron      string    `yaml:"cron"`
	Period    string    `yaml:"period"`
	MaxBytes  SizeBytes `yaml:"max_bytes"`
	BatchSize int       `yaml:"batch_size"`
	DryRun    bool      `yaml:"dry_run"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly
// strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration is a wrapper around time.Duration that supports YAML parsing from
// strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
