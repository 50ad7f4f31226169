package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signRS256(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newTestVerifier(t *testing.T, key *rsa.PrivateKey, kid string, leeway time.Duration) *Verifier {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(jwksDocument(map[string]*rsa.PublicKey{kid: &key.PublicKey}))
	}))
	t.Cleanup(srv.Close)
	return NewVerifier(NewJWKSCache(srv.URL, srv.Client(), time.Hour), leeway)
}

func baseClaims(sub string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"sub": sub,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
}

func TestVerifyBearerValidToken(t *testing.T) {
	key := genKey(t)
	v := newTestVerifier(t, key, "k1", 0)

	token := signRS256(t, key, "k1", baseClaims("user-alice"))
	sub, err := v.VerifyBearer(context.Background(), "Bearer "+token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if sub != "user-alice" {
		t.Fatalf("subject = %q, want user-alice", sub)
	}
}

func TestVerifyBearerHeaderShapes(t *testing.T) {
	key := genKey(t)
	v := newTestVerifier(t, key, "k1", 0)
	token := signRS256(t, key, "k1", baseClaims("user-alice"))

	cases := []struct {
		name   string
		header string
		wantOK bool
	}{
		{"empty", "", false},
		{"whitespace only", "   ", false},
		{"scheme only", "Bearer", false},
		{"wrong scheme", "Token " + token, false},
		{"basic scheme", "Basic dXNlcjpwYXNz", false},
		{"extra parts", "Bearer " + token + " trailing", false},
		{"lowercase scheme", "bearer " + token, true},
		{"standard", "Bearer " + token, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.VerifyBearer(context.Background(), tc.header)
			if tc.wantOK && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.wantOK {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.Is(err, ErrUnauthenticated) {
					t.Fatalf("error %v is not ErrUnauthenticated", err)
				}
			}
		})
	}
}

func TestVerifyBearerExpiry(t *testing.T) {
	key := genKey(t)
	v := newTestVerifier(t, key, "k1", 30*time.Second)

	// Expired past the leeway window.
	claims := baseClaims("user-alice")
	claims["exp"] = time.Now().Add(-2 * time.Minute).Unix()
	if _, err := v.VerifyBearer(context.Background(), "Bearer "+signRS256(t, key, "k1", claims)); err == nil {
		t.Fatal("expected expired token to be rejected")
	}

	// Expired, but inside the leeway window.
	claims = baseClaims("user-alice")
	claims["exp"] = time.Now().Add(-10 * time.Second).Unix()
	if _, err := v.VerifyBearer(context.Background(), "Bearer "+signRS256(t, key, "k1", claims)); err != nil {
		t.Fatalf("expected leeway to accept slightly-expired token, got %v", err)
	}
}

func TestVerifyBearerRequiredClaims(t *testing.T) {
	key := genKey(t)
	v := newTestVerifier(t, key, "k1", 0)

	cases := []struct {
		name   string
		mutate func(jwt.MapClaims)
	}{
		{"missing sub", func(c jwt.MapClaims) { delete(c, "sub") }},
		{"empty sub", func(c jwt.MapClaims) { c["sub"] = "  " }},
		{"missing iat", func(c jwt.MapClaims) { delete(c, "iat") }},
		{"missing exp", func(c jwt.MapClaims) { delete(c, "exp") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			claims := baseClaims("user-alice")
			tc.mutate(claims)
			_, err := v.VerifyBearer(context.Background(), "Bearer "+signRS256(t, key, "k1", claims))
			if !errors.Is(err, ErrUnauthenticated) {
				t.Fatalf("error = %v, want ErrUnauthenticated", err)
			}
		})
	}
}

func TestVerifyBearerRejectsHS256(t *testing.T) {
	key := genKey(t)
	v := newTestVerifier(t, key, "k1", 0)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, baseClaims("user-alice"))
	tok.Header["kid"] = "k1"
	signed, err := tok.SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("sign hs256: %v", err)
	}
	if _, err := v.VerifyBearer(context.Background(), "Bearer "+signed); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("error = %v, want ErrUnauthenticated", err)
	}
}

func TestVerifyBearerRejectsWrongKey(t *testing.T) {
	key := genKey(t)
	other := genKey(t)
	v := newTestVerifier(t, key, "k1", 0)

	// Signed by a key the provider never published, under a known kid.
	token := signRS256(t, other, "k1", baseClaims("user-alice"))
	if _, err := v.VerifyBearer(context.Background(), "Bearer "+token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("error = %v, want ErrUnauthenticated", err)
	}
}

func TestVerifyBearerUnknownKid(t *testing.T) {
	key := genKey(t)
	v := newTestVerifier(t, key, "k1", 0)

	token := signRS256(t, key, "rotated-away", baseClaims("user-alice"))
	if _, err := v.VerifyBearer(context.Background(), "Bearer "+token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("error = %v, want ErrUnauthenticated", err)
	}
}

func TestVerifyBearerGarbageToken(t *testing.T) {
	key := genKey(t)
	v := newTestVerifier(t, key, "k1", 0)
	if _, err := v.VerifyBearer(context.Background(), "Bearer not.a.jwt"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("error = %v, want ErrUnauthenticated", err)
	}
}
