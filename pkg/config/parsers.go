package config

import (
	"flag"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// EffectiveConfigResult is the merged view of flags, env and config file
// that the rest of the server consumes.
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "flags", "config", or "env"
}

// ParseConfigFlags parses command-line flags and returns them as a Flags struct.
func ParseConfigFlags() Flags {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address")
	dbPtr := flag.String("db", "./.database", "history mirror DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: setFlags}
}

// ResolveConfigPath returns the config path to use: an explicitly set flag
// wins, then the CHATRELAY_CONFIG env var, then the flag default.
func ResolveConfigPath(flagVal string, flagSet bool) string {
	if flagSet {
		return flagVal
	}
	if v := os.Getenv("CHATRELAY_CONFIG"); v != "" {
		return v
	}
	return flagVal
}

// ParseConfigFile resolves the config path and loads the YAML file. It
// returns the parsed config, a boolean indicating whether the file was
// present, and an error for fatal parsing problems.
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := Load(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

func parseList(v string) []string {
	if v == "" {
		return nil
	}
	parts := []string{}
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

// ParseConfigEnvs reads CHATRELAY_* environment variables into a fresh
// Config and reports whether any env was used. This function does not
// mutate any caller-provided config.
func ParseConfigEnvs() (*Config, bool) {
	envCfg := &Config{}
	envUsed := false

	if v := os.Getenv("CHATRELAY_SERVER_ADDR"); v != "" {
		envUsed = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			envCfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				envCfg.Server.Port = pi
			}
		} else {
			envCfg.Server.Address = v
		}
	}
	if v := os.Getenv("CHATRELAY_SERVER_DB_PATH"); v != "" {
		envUsed = true
		envCfg.Server.DBPath = v
	}

	if v := os.Getenv("CHATRELAY_ASSISTANT_BASE_URL"); v != "" {
		envUsed = true
		envCfg.Assistant.BaseURL = v
	}
	if v := os.Getenv("CHATRELAY_ASSISTANT_API_KEY"); v != "" {
		envUsed = true
		envCfg.Assistant.APIKey = v
	}
	if v := os.Getenv("CHATRELAY_ASSISTANT_ID"); v != "" {
		envUsed = true
		envCfg.Assistant.AssistantID = v
	}
	if v := os.Getenv("CHATRELAY_ASSISTANT_POLL_INTERVAL"); v != "" {
		envUsed = true
		if td, err := time.ParseDuration(v); err == nil {
			envCfg.Assistant.PollInterval = Duration(td)
		}
	}
	if v := os.Getenv("CHATRELAY_ASSISTANT_POLL_MAX_TICKS"); v != "" {
		envUsed = true
		if n, err := strconv.Atoi(v); err == nil {
			envCfg.Assistant.PollMaxTicks = n
		}
	}

	if v := os.Getenv("CHATRELAY_SEARCH_BASE_URL"); v != "" {
		envUsed = true
		envCfg.Search.BaseURL = v
	}
	if v := os.Getenv("CHATRELAY_SEARCH_API_KEY"); v != "" {
		envUsed = true
		envCfg.Search.APIKey = v
	}
	if v := os.Getenv("CHATRELAY_SEARCH_DEFAULT_DOMAINS"); v != "" {
		envUsed = true
		envCfg.Search.DefaultDomains = parseList(v)
	}

	if v := os.Getenv("CHATRELAY_WHITELIST"); v != "" {
		envUsed = true
		envCfg.Security.Whitelist = parseList(v)
	}
	if v := os.Getenv("CHATRELAY_SIGNING_KEYS"); v != "" {
		envUsed = true
		envCfg.Security.SigningKeys = parseList(v)
	}
	if v := os.Getenv("CHATRELAY_ADMIN_KEYS"); v != "" {
		envUsed = true
		envCfg.Security.AdminKeys = parseList(v)
	}
	if v := os.Getenv("CHATRELAY_LOG_LEVEL"); v != "" {
		envUsed = true
		envCfg.Logging.Level = v
	}
	return envCfg, envUsed
}

// overlay copies non-zero fields of src over dst. Scalars win when set;
// lists replace wholesale.
func overlay(dst, src *Config) {
	if src.Server.Address != "" {
		dst.Server.Address = src.Server.Address
	}
	if src.Server.Port != 0 {
		dst.Server.Port = src.Server.Port
	}
	if src.Server.DBPath != "" {
		dst.Server.DBPath = src.Server.DBPath
	}
	if src.Assistant.BaseURL != "" {
		dst.Assistant.BaseURL = src.Assistant.BaseURL
	}
	if src.Assistant.APIKey != "" {
		dst.Assistant.APIKey = src.Assistant.APIKey
	}
	if src.Assistant.AssistantID != "" {
		dst.Assistant.AssistantID = src.Assistant.AssistantID
	}
	if src.Assistant.PollInterval != 0 {
		dst.Assistant.PollInterval = src.Assistant.PollInterval
	}
	if src.Assistant.PollMaxTicks != 0 {
		dst.Assistant.PollMaxTicks = src.Assistant.PollMaxTicks
	}
	if src.Search.BaseURL != "" {
		dst.Search.BaseURL = src.Search.BaseURL
	}
	if src.Search.APIKey != "" {
		dst.Search.APIKey = src.Search.APIKey
	}
	if len(src.Search.DefaultDomains) > 0 {
		dst.Search.DefaultDomains = src.Search.DefaultDomains
	}
	if len(src.Security.Whitelist) > 0 {
		dst.Security.Whitelist = src.Security.Whitelist
	}
	if len(src.Security.SigningKeys) > 0 {
		dst.Security.SigningKeys = src.Security.SigningKeys
	}
	if len(src.Security.AdminKeys) > 0 {
		dst.Security.AdminKeys = src.Security.AdminKeys
	}
	if src.Logging.Level != "" {
		dst.Logging.Level = src.Logging.Level
	}
}

// LoadEffective merges config file, environment and flags into the single
// effective configuration the server runs with. Precedence: flags win over
// env, env wins over file.
func LoadEffective(flags Flags) (EffectiveConfigResult, error) {
	cfg, filePresent, err := ParseConfigFile(flags)
	if err != nil {
		return EffectiveConfigResult{}, err
	}
	envCfg, envUsed := ParseConfigEnvs()
	overlay(cfg, envCfg)

	addr := cfg.Addr()
	if flags.Set["addr"] {
		addr = flags.Addr
	}
	dbPath := cfg.Server.DBPath
	if dbPath == "" || flags.Set["db"] {
		dbPath = flags.DB
	}

	source := "flags"
	switch {
	case flags.Set["addr"] || flags.Set["db"] || flags.Set["config"]:
		source = "flags"
	case envUsed:
		source = "env"
	case filePresent:
		source = "config"
	}
	return EffectiveConfigResult{Config: cfg, Addr: addr, DBPath: dbPath, Source: source}, nil
}
