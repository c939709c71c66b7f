package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/Pictopercept/internal/services"
)

type mapStore map[string]*services.SessionState

func (m mapStore) Load(_ context.Context, sid string) (*services.SessionState, error) {
	return m[sid], nil
}
func (m mapStore) Save(_ context.Context, sid string, st *services.SessionState) error {
	m[sid] = st
	return nil
}
func (m mapStore) Delete(_ context.Context, sid string) error {
	delete(m, sid)
	return nil
}

func captureSession(t *testing.T, c *SessionCookies, req *http.Request) (*services.Session, *httptest.ResponseRecorder) {
	t.Helper()
	var got *services.Session
	h := c.WithSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := SessionFromContext(r.Context())
		require.True(t, ok)
		got = s
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return got, rec
}

func TestWithSessionIssuesCookie(t *testing.T) {
	c := NewSessionCookies("secret", time.Hour, true, mapStore{})
	sess, rec := captureSession(t, c, httptest.NewRequest(http.MethodGet, "/survey/x/take", nil))
	require.NotEmpty(t, sess.ID)
	require.Nil(t, sess.State)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, SessionCookieName, cookies[0].Name)
	require.True(t, cookies[0].HttpOnly)
	require.True(t, cookies[0].Secure)
}

func TestWithSessionLoadsState(t *testing.T) {
	store := mapStore{"abc": {SurveyID: "occupations", Step: services.StepTwo}}
	c := NewSessionCookies("secret", time.Hour, false, store)
	tok, err := c.SignToken("abc")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tok})
	sess, rec := captureSession(t, c, req)
	require.Equal(t, "abc", sess.ID)
	require.Equal(t, services.StepTwo, sess.State.Step)
	require.Empty(t, rec.Result().Cookies())
}

func TestWithSessionRejectsForgedCookie(t *testing.T) {
	c := NewSessionCookies("secret", time.Hour, false, mapStore{"abc": {}})
	other := NewSessionCookies("other", time.Hour, false, mapStore{})
	forged, err := other.SignToken("abc")
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{SID: "abc"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for _, tok := range []string{forged, unsigned, "garbage"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tok})
		sess, _ := captureSession(t, c, req)
		require.NotEqual(t, "abc", sess.ID)
	}
}

func TestRequestLogKeepsStatus(t *testing.T) {
	h := RequestLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
}

func TestSecureHeaders(t *testing.T) {
	h := SecureHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
	require.Contains(t, rec.Header().Get("Content-Security-Policy"), "img-src 'self'")
}

func TestCachePolicy(t *testing.T) {
	public := func(r *http.Request) bool { return r.URL.Path == "/" }
	h := CachePolicy(time.Minute, public)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	cases := []struct {
		method, path, want string
	}{
		{http.MethodGet, "/", "public, max-age=60"},
		{http.MethodHead, "/", noStore},
		{http.MethodGet, "/img/0/l", noStore},
		{http.MethodPost, "/fetch", noStore},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		require.Equal(t, tc.want, rec.Header().Get("Cache-Control"), tc.method+" "+tc.path)
		if tc.want == noStore {
			require.Equal(t, "no-cache", rec.Header().Get("Pragma"))
		}
	}

	rec := httptest.NewRecorder()
	CachePolicy(0, public)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, noStore, rec.Header().Get("Cache-Control"))
}
