package httpapi_test

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubmaster/billing/httpapi"
	"github.com/clubmaster/billing/pkg/httpserver"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestServe(t *testing.T) {
	t.Parallel()

	t.Run("serves the router until cancelled", func(t *testing.T) {
		t.Parallel()

		addr := freeAddr(t)
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)

		done := make(chan error, 1)
		go func() {
			done <- httpapi.Serve(ctx,
				httpserver.Config{Addr: addr, ShutdownTimeout: time.Second},
				httpapi.RouterOptions{
					Service:  new(mockService),
					Parser:   new(mockParser),
					Ingestor: new(mockIngestor),
					Healthchecks: []func(context.Context) error{
						func(context.Context) error { return nil },
					},
				})
		}()

		var status int
		require.Eventually(t, func() bool {
			resp, err := http.Get("http://" + addr + "/healthz")
			if err != nil {
				return false
			}
			defer resp.Body.Close()
			status = resp.StatusCode
			return true
		}, 5*time.Second, 20*time.Millisecond, "server never came up")
		assert.Equal(t, http.StatusOK, status)

		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("serve did not stop after cancel")
		}
	})

	t.Run("occupied address fails fast", func(t *testing.T) {
		t.Parallel()

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		t.Cleanup(func() { _ = ln.Close() })

		err = httpapi.Serve(context.Background(),
			httpserver.Config{Addr: ln.Addr().String()},
			httpapi.RouterOptions{
				Service:  new(mockService),
				Parser:   new(mockParser),
				Ingestor: new(mockIngestor),
			})
		require.Error(t, err)
		assert.ErrorIs(t, err, httpserver.ErrListen)
	})
}
