package httpc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte("hello"))
		case "/big":
			w.Write([]byte(strings.Repeat("x", 100)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()

	t.Run("ok", func(t *testing.T) {
		body, err := Fetch(ctx, srv.Client(), srv.URL+"/ok", 0)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(body))
	})

	t.Run("status error", func(t *testing.T) {
		_, err := Fetch(ctx, srv.Client(), srv.URL+"/missing", 0)
		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	})

	t.Run("too large", func(t *testing.T) {
		_, err := Fetch(ctx, srv.Client(), srv.URL+"/big", 10)
		assert.ErrorIs(t, err, ErrBodyTooLarge)
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := Fetch(cctx, srv.Client(), srv.URL+"/ok", 0)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
