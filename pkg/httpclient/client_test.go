package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureTimeout(t *testing.T) {
	// Already sufficient: unchanged.
	c := New(Config{Timeout: 30 * time.Minute})
	assert.Same(t, c, EnsureTimeout(c, 20*time.Minute))

	// Unbounded passes.
	c = New(Config{})
	assert.Same(t, c, EnsureTimeout(c, 20*time.Minute))

	// Too short: replaced, original untouched.
	short := New(Config{Timeout: time.Second})
	fixed := EnsureTimeout(short, 20*time.Minute)
	assert.NotSame(t, short, fixed)
	assert.Equal(t, 20*time.Minute, fixed.Timeout)
	assert.Equal(t, time.Second, short.Timeout)

	// Nil gets a fresh client at the floor.
	fixed = EnsureTimeout(nil, time.Minute)
	require.NotNil(t, fixed)
	assert.Equal(t, time.Minute, fixed.Timeout)
}

func TestUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	c := New(Config{Timeout: 5 * time.Second, UserAgent: "aura/1.0"})
	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "aura/1.0", got)
}
