package app

import (
	"fmt"
	"strings"

	"chatrelay/pkg/assistant"
	"chatrelay/pkg/config"
)

// validateConfig checks the effective config for fatal problems before any
// resource is opened.
func validateConfig(eff config.EffectiveConfigResult) error {
	cfg := eff.Config
	if cfg == nil {
		return fmt.Errorf("no configuration loaded")
	}

	var missing []string
	if strings.TrimSpace(cfg.Assistant.APIKey) == "" {
		missing = append(missing, "assistant.api_key")
	}
	if strings.TrimSpace(cfg.Assistant.AssistantID) == "" {
		missing = append(missing, "assistant.assistant_id")
	}
	if len(missing) > 0 {
		return &assistant.ConfigError{Missing: missing}
	}

	if len(cfg.Security.Whitelist) == 0 {
		return fmt.Errorf("security.whitelist is empty; no caller could ever authenticate")
	}
	if !cfg.Security.AllowUnsigned && len(cfg.Security.SigningKeys) == 0 {
		return fmt.Errorf("security.signing_keys required unless security.allow_unsigned is set")
	}
	if eff.DBPath == "" {
		return fmt.Errorf("history mirror db path required (--db or CHATRELAY_SERVER_DB_PATH)")
	}
	return nil
}
