// Package auth verifies bearer tokens issued by the identity service and
// carries the authenticated user id through request contexts.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/example/forum-platform/internal/platform/api"
)

type ctxKeyUserID struct{}

// ErrNoToken is returned when a request carries no bearer token.
var ErrNoToken = errors.New("auth: bearer token missing")

func UserIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyUserID{}).(string)
	return v, ok && v != ""
}

// WithUserID injects user_id into context. Useful for testing.
func WithUserID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, ctxKeyUserID{}, uid)
}

type Claims struct {
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 tokens. Issuer is checked only when set.
type JWTVerifier struct {
	Secret []byte
	Issuer string
}

func (v JWTVerifier) Parse(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return v.Secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// userFromRequest extracts and verifies the bearer token of r.
func (v JWTVerifier) userFromRequest(r *http.Request) (string, error) {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if authz == "" {
		return "", ErrNoToken
	}
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", errors.New("auth: unsupported authorization scheme")
	}
	claims, err := v.Parse(strings.TrimSpace(parts[1]))
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// RequireUser middleware validates Bearer token and injects user_id into context.
func RequireUser(verifier JWTVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid, err := verifier.userFromRequest(r)
			if err != nil {
				api.Unauthorized(w, "UNAUTHENTICATED", "authentication required", "")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), uid)))
		})
	}
}

// OptionalUser injects user_id when a valid token is present and lets
// anonymous requests through. A present but invalid token is rejected.
func OptionalUser(verifier JWTVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid, err := verifier.userFromRequest(r)
			switch {
			case errors.Is(err, ErrNoToken):
				next.ServeHTTP(w, r)
			case err != nil:
				api.Unauthorized(w, "UNAUTHENTICATED", "invalid token", "")
			default:
				next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), uid)))
			}
		})
	}
}
