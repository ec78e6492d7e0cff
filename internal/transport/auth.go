package transport

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated is returned by authenticate for a missing, malformed,
// or invalid token. Authentication itself is an external collaborator
// (non-core); this is the thinnest layer that lets the transport attach a
// UserID to a connection before any command reaches the engine.
var ErrUnauthenticated = errors.New("transport: unauthenticated")

// claims is the minimal HS256 claim set sessions are expected to carry.
type claims struct {
	jwt.RegisteredClaims
	Admin bool `json:"admin"`
}

// authenticator validates a bearer token against the configured secret and
// extracts the caller's user id and admin flag.
type authenticator struct {
	secret []byte
}

func newAuthenticator(secret string) *authenticator {
	return &authenticator{secret: []byte(secret)}
}

func (a *authenticator) authenticate(token string) (userID string, isAdmin bool, err error) {
	if token == "" {
		return "", false, ErrUnauthenticated
	}
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", false, ErrUnauthenticated
	}
	if c.Subject == "" {
		return "", false, ErrUnauthenticated
	}
	return c.Subject, c.Admin, nil
}
