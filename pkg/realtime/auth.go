package realtime

import (
	"net/http"
	"strconv"
	"strings"
)

// Authenticator resolves the user behind a websocket handshake.
type Authenticator interface {
	Authenticate(r *http.Request) (userID int64, err error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(r *http.Request) (int64, error)

func (f AuthenticatorFunc) Authenticate(r *http.Request) (int64, error) {
	return f(r)
}

// UserIDHeader carries the already-authenticated user id set by the gateway.
const UserIDHeader = "X-User-ID"

// TrustedIdentity reads the user id from the userId query parameter or the
// X-User-ID header. Token verification happens upstream; this only trusts
// what the gateway forwarded.
func TrustedIdentity() Authenticator {
	return AuthenticatorFunc(func(r *http.Request) (int64, error) {
		raw := r.URL.Query().Get("userId")
		if raw == "" {
			raw = r.Header.Get(UserIDHeader)
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return 0, ErrUnauthenticated
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return 0, ErrUnauthenticated
		}
		return id, nil
	})
}
