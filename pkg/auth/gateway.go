package auth

import (
	"net"
	"net/http"
	"strings"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/utils"
)

// AuthenticateRequestMiddleware is the email-whitelist gate in front of the
// core. It fails closed with 401/403 before any handler runs; the core
// itself performs no authentication.
func AuthenticateRequestMiddleware(cfg SecConfig) func(http.Handler) http.Handler {
	// rate limiters keyed by verified email or remote ip
	limiters := &limiterPool{cfg: cfg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// log request (redacts sensitive headers)
			logger.LogRequest(r)

			// cors preflight
			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(origin, cfg.AllowedOrigins) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
				w.Header().Set("Access-Control-Max-Age", "600")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type,X-Auth-Email,X-Auth-Signature")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			// ip whitelist
			if len(cfg.IPWhitelist) > 0 {
				ip := clientIP(r)
				logger.Debug("ip_check", "ip", ip)
				if !ipWhitelisted(ip, cfg.IPWhitelist) {
					utils.JSONError(w, http.StatusForbidden, "forbidden")
					logger.Warn("request_blocked", "reason", "ip_not_whitelisted", "ip", ip, "path", r.URL.Path)
					return
				}
			}

			// allow unauthenticated health checks for probes
			if (r.URL.Path == "/healthz" || r.URL.Path == "/readyz") && r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			// admin key short-circuit (metrics, retention triggers)
			if key := apiKey(r); key != "" {
				if _, ok := cfg.AdminKeys[key]; ok {
					if !limiters.Allow(key) {
						utils.JSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
						return
					}
					r.Header.Set("X-Role-Name", "admin")
					next.ServeHTTP(w, r)
					return
				}
			}

			email := strings.TrimSpace(r.Header.Get("X-Auth-Email"))
			if email == "" {
				utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
				logger.Warn("request_unauthorized", "reason", "missing_email", "path", r.URL.Path, "remote", r.RemoteAddr)
				return
			}

			// identity verification: HMAC signature over the email, unless a
			// trusted proxy is configured to strip client headers
			if !cfg.AllowUnsigned {
				sig := strings.TrimSpace(r.Header.Get("X-Auth-Signature"))
				if sig == "" {
					utils.JSONError(w, http.StatusUnauthorized, "missing signature headers")
					logger.Warn("request_unauthorized", "reason", "missing_signature", "path", r.URL.Path)
					return
				}
				if len(cfg.SigningKeys) == 0 {
					utils.JSONError(w, http.StatusInternalServerError, "server misconfigured: no signing secrets available")
					logger.Error("no_signing_keys_configured")
					return
				}
				if !cfg.signatureValid(email, sig) {
					utils.JSONError(w, http.StatusUnauthorized, "invalid signature")
					logger.Warn("invalid_signature", "email", email)
					return
				}
			}

			// whitelist gate
			if !cfg.whitelisted(email) {
				utils.JSONError(w, http.StatusForbidden, "forbidden")
				logger.Warn("request_forbidden", "reason", "email_not_whitelisted", "email", email, "path", r.URL.Path)
				return
			}

			// rate limiting per email
			if !limiters.Allow(strings.ToLower(email)) {
				utils.JSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				logger.Warn("rate_limited", "email", email, "path", r.URL.Path)
				return
			}

			r.Header.Set("X-Role-Name", "user")
			logger.Info("request_allowed", "method", r.Method, "path", r.URL.Path, "email", email)
			next.ServeHTTP(w, r.WithContext(withEmail(r.Context(), strings.ToLower(email))))
		})
	}
}

func apiKey(r *http.Request) string {
	// prefer authorization: bearer <key>, fallback to x-api-key
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return r.Header.Get("X-API-Key")
}

func originAllowed(origin string, allowed []string) bool {
	if len(allowed) == 0 {
		return false
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func ipWhitelisted(ip string, list []string) bool {
	for _, w := range list {
		if ip == w {
			return true
		}
	}
	return false
}
