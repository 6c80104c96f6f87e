package trace

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMiddleware(t *testing.T) {
	var seen string
	h := Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = FromRequest(r)
	}))

	t.Run("generates an id", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.True(t, strings.HasPrefix(seen, "req_"))
		assert.Equal(t, seen, rr.Header().Get(HeaderRequestID))
	})

	t.Run("reuses a sane incoming id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderRequestID, "abc-123")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, "abc-123", seen)
		assert.Equal(t, "abc-123", rr.Header().Get(HeaderRequestID))
	})

	t.Run("replaces a hostile incoming id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderRequestID, "bad id\nwith newline")
		h.ServeHTTP(httptest.NewRecorder(), req)
		assert.True(t, strings.HasPrefix(seen, "req_"))
	})
}

func TestGenerateRequestID_Unique(t *testing.T) {
	assert.NotEqual(t, GenerateRequestID(), GenerateRequestID())
}
