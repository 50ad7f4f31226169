package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestValidatePostgresTLS(t *testing.T) {
	cases := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"require", "postgres://u@h:5432/db?sslmode=require", false},
		{"verify-ca", "postgres://u@h:5432/db?sslmode=verify-ca", false},
		{"verify-full", "postgres://u@h:5432/db?sslmode=verify-full", false},
		{"disable", "postgres://u@h:5432/db?sslmode=disable", true},
		{"prefer", "postgres://u@h:5432/db?sslmode=prefer", true},
		{"allow", "postgres://u@h:5432/db?sslmode=allow", true},
		{"missing sslmode", "postgres://u@h:5432/db", true},
		{"garbage url", "postgres://u@h:5432/db?sslmode=%zz", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validatePostgresTLS(tc.url)
			if tc.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestRequiresSecureTransport(t *testing.T) {
	for raw, want := range map[string]bool{
		"true": true,
		"TRUE": true,
		"1":    true,
		"yes":  true,
		"on":   true,
		"":     false,
		"no":   false,
		"off":  false,
	} {
		t.Setenv("DATABASE_REQUIRE_TLS", raw)
		if got := requiresSecureTransport("DATABASE_REQUIRE_TLS"); got != want {
			t.Fatalf("requiresSecureTransport(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestDefaultPostgresURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DATABASE_USER", "")
	t.Setenv("POSTGRES_PASSWORD", "")
	t.Setenv("DATABASE_HOST", "")
	t.Setenv("DATABASE_PORT", "")
	t.Setenv("DATABASE_NAME", "")
	t.Setenv("DATABASE_SSLMODE", "")

	if got := defaultPostgresURL(); got != "postgres://todo@localhost:5432/todo?sslmode=disable" {
		t.Fatalf("default url = %q", got)
	}

	t.Setenv("DATABASE_USER", "svc")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("DATABASE_HOST", "db.internal")
	t.Setenv("DATABASE_PORT", "not-a-port")
	t.Setenv("DATABASE_NAME", "todos")
	t.Setenv("DATABASE_SSLMODE", "require")

	got := defaultPostgresURL()
	if !strings.Contains(got, "svc:secret@db.internal:5432/todos") {
		t.Fatalf("url = %q", got)
	}
	if !strings.Contains(got, "sslmode=require") {
		t.Fatalf("url = %q", got)
	}
}

func TestNewPostgresPoolRejectsInsecureURLWhenTLSRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u@h:5432/db?sslmode=disable")
	t.Setenv("DATABASE_REQUIRE_TLS", "true")

	if _, err := NewPostgresPool(context.Background()); err == nil {
		t.Fatal("expected insecure sslmode to be rejected")
	}
}

func TestNewPostgresPoolRetriesThenFails(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u@localhost:5432/db?sslmode=disable")
	t.Setenv("DATABASE_REQUIRE_TLS", "")

	boom := errors.New("connection refused")
	attempts := 0
	origNew := pgxPoolNewWithConfig
	origRetries := postgresConnectRetries
	origSleep := postgresSleep
	pgxPoolNewWithConfig = func(ctx context.Context, cfg *pgxpool.Config) (*pgxpool.Pool, error) {
		attempts++
		return nil, boom
	}
	postgresConnectRetries = 3
	postgresSleep = func(time.Duration) {}
	t.Cleanup(func() {
		pgxPoolNewWithConfig = origNew
		postgresConnectRetries = origRetries
		postgresSleep = origSleep
	})

	_, err := NewPostgresPool(context.Background())
	if err == nil || !errors.Is(err, boom) {
		t.Fatalf("error = %v, want wrapped connect failure", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}
