// Package auth verifies bearer credentials for privileged operations and
// issues login tokens. Two modes: signed JWTs when a signing secret is
// configured, exact-match static secret otherwise. With neither configured
// every verification fails closed.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Login tokens expire 60 minutes after issuance. Expiry is the only
// invalidation mechanism; there is no server-side revocation list.
const tokenTTL = 60 * time.Minute

var ErrNoSigningSecret = errors.New("auth: signing secret not configured")

type Gate struct {
	SigningSecret string
	StaticToken   string

	// Now is swappable in tests; nil means time.Now.
	Now func() time.Time
}

func (g Gate) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// Verify reports whether a bearer token is valid. It never panics: malformed
// tokens and signature errors are verification failures, not faults.
func (g Gate) Verify(token string) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}
	if secret := strings.TrimSpace(g.SigningSecret); secret != "" {
		parsed, err := jwt.Parse(token,
			func(*jwt.Token) (any, error) { return []byte(secret), nil },
			jwt.WithValidMethods([]string{"HS256"}),
			jwt.WithTimeFunc(g.now),
		)
		return err == nil && parsed.Valid
	}
	if static := strings.TrimSpace(g.StaticToken); static != "" {
		return subtle.ConstantTimeCompare([]byte(token), []byte(static)) == 1
	}
	return false
}

// Issue signs a login token for subject. Fails when no signing secret is
// configured; the static fallback mode cannot mint tokens.
func (g Gate) Issue(subject string) (string, error) {
	secret := strings.TrimSpace(g.SigningSecret)
	if secret == "" {
		return "", ErrNoSigningSecret
	}
	now := g.now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(tokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// BearerToken extracts the token from an Authorization: Bearer header. Query
// strings and cookies are not honored.
func BearerToken(h http.Header) string {
	auth := h.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Authenticate checks a username/password pair against the configured login
// sources, in priority order: LOGIN_USERS ("user:pass,user:pass"), numbered
// USERn/PASSn pairs, then the single legacy LOGIN_USERNAME/LOGIN_PASSWORD.
// First match wins.
func Authenticate(lookup func(string) string, username, password string) bool {
	if lookup == nil || username == "" || password == "" {
		return false
	}
	if usersRaw := strings.TrimSpace(lookup("LOGIN_USERS")); usersRaw != "" {
		for _, pair := range strings.Split(usersRaw, ",") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			u, p, ok := strings.Cut(pair, ":")
			if ok && u == username && p == password {
				return true
			}
		}
	}
	for i := 1; i <= 8; i++ {
		u := strings.TrimSpace(lookup("USER" + strconv.Itoa(i)))
		p := strings.TrimSpace(lookup("PASS" + strconv.Itoa(i)))
		if u != "" && p != "" && u == username && p == password {
			return true
		}
	}
	if u, p := lookup("LOGIN_USERNAME"), lookup("LOGIN_PASSWORD"); u != "" && p != "" {
		return u == username && p == password
	}
	return false
}
