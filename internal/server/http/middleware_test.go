package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dmitrijs2005/difychat/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(mw("first"), mw("second"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-Id"))
}

func TestStatusWriter_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, status: http.StatusOK}
	sw.WriteHeader(http.StatusTeapot)
	sw.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusTeapot, sw.status)
}

func TestIsAllowedOrigin(t *testing.T) {
	allowed := []string{"https://a.example", " https://b.example"}
	assert.True(t, isAllowedOrigin("https://b.example", allowed))
	assert.False(t, isAllowedOrigin("https://c.example", allowed))
	assert.True(t, isAllowedOrigin("https://c.example", []string{"*"}))
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer abc"))
	assert.Equal(t, "", bearerToken("Basic abc"))
	assert.Equal(t, "", bearerToken("Bearer "))
}

func TestFlexID(t *testing.T) {
	var req chatRequest
	require.NoError(t, json.Unmarshal([]byte(`{"user_id":"42"}`), &req))
	assert.Equal(t, flexID(42), req.UserID)

	require.NoError(t, json.Unmarshal([]byte(`{"user_id":7}`), &req))
	assert.Equal(t, flexID(7), req.UserID)

	assert.Error(t, json.Unmarshal([]byte(`{"user_id":"x"}`), &req))
}
