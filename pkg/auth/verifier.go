package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated covers every way a bearer token can fail verification.
// Handlers map it to 401 with a generic body; the wrapped detail is for logs
// only and never reaches the caller.
var ErrUnauthenticated = errors.New("unauthenticated")

const defaultLeeway = 30 * time.Second

// Verifier checks RS256 bearer tokens against the remote key set. The
// service is a pure verifier: it never holds the signing secret, only the
// provider's public keys.
type Verifier struct {
	cache  *JWKSCache
	leeway time.Duration
}

func NewVerifier(cache *JWKSCache, leeway time.Duration) *Verifier {
	if leeway <= 0 {
		leeway = defaultLeeway
	}
	return &Verifier{cache: cache, leeway: leeway}
}

// VerifyBearer validates an Authorization header value and returns the
// authenticated subject from the token's sub claim.
func (v *Verifier) VerifyBearer(ctx context.Context, header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", fmt.Errorf("%w: missing authorization header", ErrUnauthenticated)
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", fmt.Errorf("%w: malformed authorization header", ErrUnauthenticated)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	claims := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		return v.cache.Key(ctx, kid)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if _, ok := claims["iat"]; !ok {
		return "", fmt.Errorf("%w: iat claim required", ErrUnauthenticated)
	}
	sub, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return "", fmt.Errorf("%w: sub claim required", ErrUnauthenticated)
	}
	return sub, nil
}
