package ws

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Authenticator accepts a static shared token, an HS256 JWT signed with a
// shared secret, or both. With neither configured every request passes.
type Authenticator struct {
	Token     string
	JWTSecret []byte
}

func (a Authenticator) enabled() bool {
	return a.Token != "" || len(a.JWTSecret) > 0
}

func (a Authenticator) Authorize(r *http.Request) bool {
	if !a.enabled() {
		return true
	}
	for _, cred := range credentials(r) {
		if a.Token != "" && subtle.ConstantTimeCompare([]byte(cred), []byte(a.Token)) == 1 {
			return true
		}
		if len(a.JWTSecret) > 0 && a.validJWT(cred) {
			return true
		}
	}
	return false
}

func (a Authenticator) validJWT(raw string) bool {
	_, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return a.JWTSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return err == nil
}

// credentials lists the tokens a request presents, in precedence order.
func credentials(r *http.Request) []string {
	var creds []string
	if tok := r.URL.Query().Get("token"); tok != "" {
		creds = append(creds, tok)
	}
	if tok := r.Header.Get("X-Tau-Token"); tok != "" {
		creds = append(creds, tok)
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		creds = append(creds, strings.TrimPrefix(auth, "Bearer "))
	}
	return creds
}
