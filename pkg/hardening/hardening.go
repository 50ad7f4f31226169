package hardening

import (
	"fmt"
	"strings"
)

type Options struct {
	Service            string
	Environment        string
	StrictProdSecurity string
	DatabaseRequireTLS string
	RedisAddr          string
	RedisRequireTLS    string
	JWKSURL            string
	CORSAllowedOrigins string
}

// ValidateProduction rejects insecure configurations in production-like
// environments: plaintext database or redis transport, a non-HTTPS JWKS
// endpoint, and wildcard or localhost CORS origins.
func ValidateProduction(o Options) error {
	if !IsProductionLikeEnv(o.Environment) {
		return nil
	}
	if !isTrue(o.StrictProdSecurity, true) {
		return nil
	}
	service := strings.TrimSpace(o.Service)
	if service == "" {
		service = "service"
	}
	if !isTrue(o.DatabaseRequireTLS, false) {
		return fmt.Errorf("%s: strict production hardening requires DATABASE_REQUIRE_TLS=true", service)
	}
	if strings.TrimSpace(o.RedisAddr) != "" && !isTrue(o.RedisRequireTLS, false) {
		return fmt.Errorf("%s: strict production hardening requires REDIS_REQUIRE_TLS=true", service)
	}
	jwks := strings.ToLower(strings.TrimSpace(o.JWKSURL))
	if jwks == "" {
		return fmt.Errorf("%s: strict production hardening requires JWKS_URL", service)
	}
	if !strings.HasPrefix(jwks, "https://") {
		return fmt.Errorf("%s: strict production hardening requires an HTTPS JWKS_URL", service)
	}
	return validateCORSOrigins(o.CORSAllowedOrigins, service)
}

func validateCORSOrigins(raw, service string) error {
	validCount := 0
	for _, origin := range strings.Split(raw, ",") {
		o := strings.TrimSpace(origin)
		if o == "" {
			continue
		}
		validCount++
		lower := strings.ToLower(o)
		if lower == "*" {
			return fmt.Errorf("%s: strict production hardening forbids CORS wildcard origin", service)
		}
		if strings.HasPrefix(lower, "http://localhost") || strings.HasPrefix(lower, "https://localhost") || strings.HasPrefix(lower, "http://127.0.0.1") || strings.HasPrefix(lower, "https://127.0.0.1") {
			return fmt.Errorf("%s: strict production hardening forbids localhost CORS origin %q", service, o)
		}
		if !strings.HasPrefix(lower, "https://") {
			return fmt.Errorf("%s: strict production hardening requires HTTPS CORS origin, got %q", service, o)
		}
	}
	if validCount == 0 {
		return fmt.Errorf("%s: strict production hardening requires explicit CORS_ALLOWED_ORIGINS", service)
	}
	return nil
}

func isTrue(raw string, def bool) bool {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return def
	}
	return strings.EqualFold(trimmed, "true")
}

func IsProductionLikeEnv(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "prod", "production", "staging", "stage":
		return true
	default:
		return false
	}
}
