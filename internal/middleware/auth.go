package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/soaringjerry/Pictopercept/internal/services"
)

type sessionCtxKey int

const sessionKey sessionCtxKey = 7

const SessionCookieName = "picto_session"

type Claims struct {
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

// SessionCookies binds a signed session id cookie to the state kept in a
// SessionStore.
type SessionCookies struct {
	secret []byte
	ttl    time.Duration
	secure bool
	store  services.SessionStore
}

func NewSessionCookies(secret string, ttl time.Duration, secure bool, store services.SessionStore) *SessionCookies {
	return &SessionCookies{secret: []byte(secret), ttl: ttl, secure: secure, store: store}
}

func (c *SessionCookies) SignToken(sid string) (string, error) {
	now := time.Now()
	claims := Claims{SID: sid, RegisteredClaims: jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(now), ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl))}}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

func (c *SessionCookies) parseToken(tok string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tok, &Claims{}, func(token *jwt.Token) (interface{}, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if cl, ok := t.Claims.(*Claims); ok && t.Valid && cl.SID != "" {
		return cl, nil
	}
	return nil, errors.New("invalid token")
}

func (c *SessionCookies) issue(w http.ResponseWriter) (string, error) {
	sid := strings.ReplaceAll(uuid.NewString(), "-", "")
	tok, err := c.SignToken(sid)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    tok,
		Path:     "/",
		MaxAge:   int(c.ttl.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sid, nil
}

// WithSession resolves the session cookie, issuing a new one when it is
// missing or invalid, and attaches the loaded session to the context.
func (c *SessionCookies) WithSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sid string
		if ck, err := r.Cookie(SessionCookieName); err == nil {
			if cl, err := c.parseToken(ck.Value); err == nil {
				sid = cl.SID
			}
		}
		if sid == "" {
			var err error
			if sid, err = c.issue(w); err != nil {
				log.Printf("session: sign cookie: %v", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
		}
		st, err := c.store.Load(r.Context(), sid)
		if err != nil {
			log.Printf("session: load %s: %v", sid, err)
			http.Error(w, "session store unavailable", http.StatusInternalServerError)
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey, &services.Session{ID: sid, State: st})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func SessionFromContext(ctx context.Context) (*services.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*services.Session)
	return s, ok
}
