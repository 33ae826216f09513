package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/meridianhq/pushgate/internal/pool"
)

// Errors
var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// TokenVerifier validates HMAC-signed bearer tokens and produces the
// authenticated identity handed to admission. The pool itself never sees
// tokens.
type TokenVerifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewTokenVerifier creates a verifier. An empty issuer skips the iss check.
func NewTokenVerifier(secret, issuer string, leeway time.Duration) *TokenVerifier {
	return &TokenVerifier{
		secret: []byte(secret),
		issuer: issuer,
		leeway: leeway,
	}
}

// Verify parses and validates a token. The sub claim becomes the owner; the
// remaining claims ride along on the identity for application use.
func (v *TokenVerifier) Verify(tokenString string) (pool.Identity, error) {
	if tokenString == "" {
		return pool.Identity{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return pool.Identity{}, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return pool.Identity{}, ErrInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return pool.Identity{}, fmt.Errorf("%w: no sub claim", ErrInvalidToken)
	}

	extra := make(map[string]any, len(claims))
	for k, val := range claims {
		extra[k] = val
	}

	return pool.Identity{Owner: sub, Claims: extra}, nil
}

// tokenFromRequest pulls the bearer token from the Authorization header or,
// for browser WebSocket clients that cannot set headers, the token query
// parameter.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
