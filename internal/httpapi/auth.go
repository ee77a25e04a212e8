package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey int

const clientKey ctxKey = 0

// ClientFromContext returns the authenticated caller id, if any.
func ClientFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(clientKey).(string)
	return id, ok
}

var errUnauthorized = errors.New("unauthorized")

// Authenticator accepts either a static bearer token or an HS256 JWT whose
// subject names the caller. With neither configured every request passes.
type Authenticator struct {
	token  string
	secret []byte
}

func NewAuthenticator(token, jwtSecret string) *Authenticator {
	a := &Authenticator{token: token}
	if jwtSecret != "" {
		a.secret = []byte(jwtSecret)
	}
	return a
}

func (a *Authenticator) Enabled() bool { return a.token != "" || len(a.secret) > 0 }

// Authenticate returns the caller id. Browsers cannot set headers on websocket
// upgrades, so access_token is accepted as a query parameter too.
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	if !a.Enabled() {
		return "", nil
	}
	raw := ""
	if h := r.Header.Get("Authorization"); h != "" {
		if !strings.HasPrefix(h, "Bearer ") {
			return "", errUnauthorized
		}
		raw = strings.TrimPrefix(h, "Bearer ")
	} else {
		raw = r.URL.Query().Get("access_token")
	}
	if raw == "" {
		return "", errUnauthorized
	}

	if a.token != "" && subtle.ConstantTimeCompare([]byte(raw), []byte(a.token)) == 1 {
		return "token", nil
	}
	if len(a.secret) == 0 {
		return "", errUnauthorized
	}
	return a.parseJWT(raw)
}

func (a *Authenticator) parseJWT(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errUnauthorized, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", errUnauthorized
	}
	return "jwt:" + claims.Subject, nil
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.Authenticate(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Code: "unauthorized"})
			return
		}
		if id != "" {
			r = r.WithContext(context.WithValue(r.Context(), clientKey, id))
		}
		next.ServeHTTP(w, r)
	})
}
