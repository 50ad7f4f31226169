package hardening

import (
	"strings"
	"testing"
)

func secureOptions() Options {
	return Options{
		Service:            "api",
		Environment:        "production",
		StrictProdSecurity: "true",
		DatabaseRequireTLS: "true",
		RedisAddr:          "redis.internal:6380",
		RedisRequireTLS:    "true",
		JWKSURL:            "https://auth.example.com/api/auth/jwks",
		CORSAllowedOrigins: "https://app.example.com",
	}
}

func TestValidateProduction(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Options)
		wantErr string
	}{
		{"secure production config", func(o *Options) {}, ""},
		{"development skips checks", func(o *Options) {
			o.Environment = "development"
			o.DatabaseRequireTLS = ""
			o.JWKSURL = "http://localhost:3000/api/auth/jwks"
			o.CORSAllowedOrigins = "*"
		}, ""},
		{"strict mode can be disabled", func(o *Options) {
			o.StrictProdSecurity = "false"
			o.DatabaseRequireTLS = ""
		}, ""},
		{"database tls required", func(o *Options) { o.DatabaseRequireTLS = "" }, "DATABASE_REQUIRE_TLS"},
		{"redis tls required when redis configured", func(o *Options) { o.RedisRequireTLS = "" }, "REDIS_REQUIRE_TLS"},
		{"no redis no redis check", func(o *Options) {
			o.RedisAddr = ""
			o.RedisRequireTLS = ""
		}, ""},
		{"jwks url required", func(o *Options) { o.JWKSURL = "" }, "JWKS_URL"},
		{"jwks must be https", func(o *Options) { o.JWKSURL = "http://auth.example.com/jwks" }, "HTTPS JWKS_URL"},
		{"cors wildcard forbidden", func(o *Options) { o.CORSAllowedOrigins = "*" }, "wildcard"},
		{"cors localhost forbidden", func(o *Options) { o.CORSAllowedOrigins = "http://localhost:3000" }, "localhost"},
		{"cors must be https", func(o *Options) { o.CORSAllowedOrigins = "http://app.example.com" }, "HTTPS CORS origin"},
		{"cors must be explicit", func(o *Options) { o.CORSAllowedOrigins = " , " }, "explicit CORS_ALLOWED_ORIGINS"},
		{"staging is production-like", func(o *Options) {
			o.Environment = "staging"
			o.DatabaseRequireTLS = ""
		}, "DATABASE_REQUIRE_TLS"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := secureOptions()
			tc.mutate(&o)
			err := ValidateProduction(o)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error = %v, want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestIsProductionLikeEnv(t *testing.T) {
	for env, want := range map[string]bool{
		"prod":        true,
		"Production":  true,
		"STAGING":     true,
		"stage":       true,
		"development": false,
		"test":        false,
		"":            false,
	} {
		if got := IsProductionLikeEnv(env); got != want {
			t.Fatalf("IsProductionLikeEnv(%q) = %v, want %v", env, got, want)
		}
	}
}
