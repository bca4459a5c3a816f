package assistant

import (
	"fmt"
	"strings"
)

// ConfigError reports required backend credentials absent at startup.
// It is fatal and never retried.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("assistant backend misconfigured: missing %s", strings.Join(e.Missing, ", "))
}

// UpstreamError is any non-success HTTP response from the assistant
// backend, with best-effort extracted detail.
type UpstreamError struct {
	Status int
	Detail string
}

func (e *UpstreamError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("assistant backend returned status %d", e.Status)
	}
	return fmt.Sprintf("assistant backend returned status %d: %s", e.Status, e.Detail)
}
