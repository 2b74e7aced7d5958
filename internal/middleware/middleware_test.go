package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zyeon-ai/realtime-gateway/internal/model"
	"github.com/zyeon-ai/realtime-gateway/pkg/logger"
)

const secret = "test-secret"

func identityEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := GetIdentity(r.Context())
		_, _ = w.Write([]byte(id.UserID + "|" + id.SessionID))
	})
}

func TestIdentityMintsCookie(t *testing.T) {
	h := Identity(IdentityConfig{Secret: secret})(identityEcho())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	parts := strings.Split(rec.Body.String(), "|")
	require.Len(t, parts, 2)
	assert.Regexp(t, `^user_[0-9a-f]{8}$`, parts[0])
	assert.Regexp(t, `^session_[0-9a-f]{8}$`, parts[1])

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, IdentityCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	id, err := ParseIdentity(cookies[0].Value, secret)
	require.NoError(t, err)
	assert.Equal(t, parts[0], id.UserID)
	assert.Equal(t, parts[1], id.SessionID)
}

func TestIdentityReusesValidCookie(t *testing.T) {
	want := model.Identity{UserID: "user_aaaa1111", SessionID: "session_bbbb2222"}
	token, err := SignIdentity(want, secret, time.Hour, time.Now())
	require.NoError(t, err)

	h := Identity(IdentityConfig{Secret: secret})(identityEcho())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: IdentityCookie, Value: token})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "user_aaaa1111|session_bbbb2222", rec.Body.String())
	assert.Empty(t, rec.Result().Cookies())
}

func TestIdentityRejectsForgedOrExpiredToken(t *testing.T) {
	id := model.Identity{UserID: "user_aaaa1111", SessionID: "session_bbbb2222"}

	forged, err := SignIdentity(id, "other-secret", time.Hour, time.Now())
	require.NoError(t, err)
	_, err = ParseIdentity(forged, secret)
	assert.Error(t, err)

	expired, err := SignIdentity(id, secret, time.Hour, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = ParseIdentity(expired, secret)
	assert.Error(t, err)

	h := Identity(IdentityConfig{Secret: secret})(identityEcho())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: IdentityCookie, Value: forged})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.NotContains(t, rec.Body.String(), "user_aaaa1111")
	assert.Len(t, rec.Result().Cookies(), 1)
}

func TestIdentityBearerHeader(t *testing.T) {
	want := model.Identity{UserID: "user_cccc3333", SessionID: "session_dddd4444"}
	token, err := SignIdentity(want, secret, time.Hour, time.Now())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	Identity(IdentityConfig{Secret: secret})(identityEcho()).ServeHTTP(rec, req)
	assert.Equal(t, "user_cccc3333|session_dddd4444", rec.Body.String())
}

func TestSignIdentityNeedsSecret(t *testing.T) {
	_, err := SignIdentity(model.NewIdentity(), "", time.Hour, time.Now())
	assert.Error(t, err)
}

func TestRateLimit(t *testing.T) {
	r := chi.NewRouter()
	r.Use(RateLimit(2, time.Minute))
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.Contains(t, rec.Body.String(), "rate limit exceeded")
			assert.Equal(t, "60", rec.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

func TestLoggingSetsCorrelationID(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Logging(logger.NewNop()))
	r.Get("/x", func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte(GetCorrelationID(req.Context())))
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	r.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Body.String())
	assert.Equal(t, "abc-123", rec.Header().Get("X-Correlation-ID"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestParsePagination(t *testing.T) {
	cases := []struct {
		query         string
		limit, offset int
		wantErr       bool
	}{
		{"", 10, 0, false},
		{"limit=5&offset=10", 5, 10, false},
		{"limit=500", 100, 0, false},
		{"limit=0", 0, 0, true},
		{"limit=abc", 0, 0, true},
		{"offset=-1", 0, 0, true},
	}
	for _, tc := range cases {
		q, _ := url.ParseQuery(tc.query)
		limit, offset, err := ParsePagination(q, 10)
		if tc.wantErr {
			assert.Error(t, err, tc.query)
			continue
		}
		require.NoError(t, err, tc.query)
		assert.Equal(t, tc.limit, limit, tc.query)
		assert.Equal(t, tc.offset, offset, tc.query)
	}
}

func TestValidateMessageContent(t *testing.T) {
	assert.NoError(t, ValidateMessageContent("hello"))
	assert.Error(t, ValidateMessageContent(strings.Repeat("a", MaxMessageLength+1)))
	assert.Error(t, ValidateMessageContent(string([]byte{0xff, 0xfe})))
	assert.NoError(t, ValidateID("user_id", "user_1"))
	assert.Error(t, ValidateID("user_id", strings.Repeat("x", 200)))
}
