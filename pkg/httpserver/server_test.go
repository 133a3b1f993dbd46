package httpserver_test

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubmaster/billing/pkg/httpserver"
)

// startServer runs srv with handler in the background and waits for it to
// bind. The returned channel carries Run's result after cancel is called.
func startServer(t *testing.T, srv *httpserver.Server, handler http.Handler) (string, context.CancelFunc, <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, handler) }()

	require.Eventually(t, func() bool { return srv.Addr() != "" }, 5*time.Second, 10*time.Millisecond,
		"server never started listening")

	return srv.Addr(), cancel, done
}

func TestServerRun(t *testing.T) {
	t.Parallel()

	t.Run("serves requests and drains on cancel", func(t *testing.T) {
		t.Parallel()

		srv := httpserver.New(
			httpserver.WithAddr("127.0.0.1:0"),
			httpserver.WithShutdownTimeout(time.Second),
		)
		addr, cancel, done := startServer(t, srv, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("pong"))
		}))

		resp, err := http.Get("http://" + addr + "/ping")
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "pong", string(body))

		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("server did not stop after cancel")
		}
	})

	t.Run("in-flight request finishes during shutdown", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		srv := httpserver.New(
			httpserver.WithAddr("127.0.0.1:0"),
			httpserver.WithShutdownTimeout(2*time.Second),
		)
		addr, cancel, done := startServer(t, srv, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
			w.WriteHeader(http.StatusOK)
		}))

		type result struct {
			status int
			err    error
		}
		got := make(chan result, 1)
		go func() {
			resp, err := http.Get("http://" + addr)
			if err != nil {
				got <- result{err: err}
				return
			}
			defer resp.Body.Close()
			got <- result{status: resp.StatusCode}
		}()

		// Let the request reach the handler, then start draining.
		time.Sleep(100 * time.Millisecond)
		cancel()
		time.Sleep(100 * time.Millisecond)
		close(release)

		select {
		case r := <-got:
			require.NoError(t, r.err)
			assert.Equal(t, http.StatusOK, r.status)
		case <-time.After(5 * time.Second):
			t.Fatal("in-flight request never completed")
		}
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("server did not stop after drain")
		}
	})

	t.Run("occupied address fails with ErrListen", func(t *testing.T) {
		t.Parallel()

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		t.Cleanup(func() { _ = ln.Close() })

		srv := httpserver.New(httpserver.WithAddr(ln.Addr().String()))
		err = srv.Run(context.Background(), http.NotFoundHandler())
		require.Error(t, err)
		assert.ErrorIs(t, err, httpserver.ErrListen)
	})

	t.Run("shutdown timeout surfaces ErrShutdown", func(t *testing.T) {
		t.Parallel()

		srv := httpserver.New(
			httpserver.WithAddr("127.0.0.1:0"),
			httpserver.WithShutdownTimeout(50*time.Millisecond),
		)
		block := make(chan struct{})
		t.Cleanup(func() { close(block) })
		addr, cancel, done := startServer(t, srv, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-block
		}))

		go func() {
			resp, err := http.Get("http://" + addr)
			if err == nil {
				resp.Body.Close()
			}
		}()

		time.Sleep(100 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			require.Error(t, err)
			assert.ErrorIs(t, err, httpserver.ErrShutdown)
			assert.True(t, errors.Is(err, context.DeadlineExceeded))
		case <-time.After(5 * time.Second):
			t.Fatal("server never gave up draining")
		}
	})
}

func TestServerAddr(t *testing.T) {
	t.Parallel()

	srv := httpserver.New(httpserver.WithAddr("127.0.0.1:0"))
	assert.Empty(t, srv.Addr(), "address must be unknown before Run")
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	t.Run("config values drive the server", func(t *testing.T) {
		t.Parallel()

		srv := httpserver.NewFromConfig(httpserver.Config{
			Addr:            "127.0.0.1:0",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Second,
			IdleTimeout:     30 * time.Second,
			ShutdownTimeout: time.Second,
		})
		addr, cancel, done := startServer(t, srv, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

		resp, err := http.Get("http://" + addr)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		cancel()
		require.NoError(t, <-done)
	})

	t.Run("options override config", func(t *testing.T) {
		t.Parallel()

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		require.NoError(t, ln.Close())

		srv := httpserver.NewFromConfig(
			httpserver.Config{Addr: ln.Addr().String()},
			httpserver.WithAddr("127.0.0.1:0"),
		)
		addr, cancel, done := startServer(t, srv, http.NotFoundHandler())
		assert.NotEqual(t, ln.Addr().String(), addr)

		cancel()
		require.NoError(t, <-done)
	})
}

func TestHealthCheckHandler(t *testing.T) {
	t.Parallel()

	t.Run("liveness without checks", func(t *testing.T) {
		t.Parallel()

		h := httpserver.HealthCheckHandler(nil)
		rec := newRecorder(t, h)
		assert.Equal(t, http.StatusOK, rec.status)
		assert.Equal(t, "OK", rec.body)
	})

	t.Run("readiness with passing checks", func(t *testing.T) {
		t.Parallel()

		h := httpserver.HealthCheckHandler(nil,
			func(context.Context) error { return nil },
			func(context.Context) error { return nil },
		)
		rec := newRecorder(t, h)
		assert.Equal(t, http.StatusOK, rec.status)
	})

	t.Run("failing check reports not ready", func(t *testing.T) {
		t.Parallel()

		h := httpserver.HealthCheckHandler(nil,
			func(context.Context) error { return nil },
			func(context.Context) error { return errors.New("pg unreachable") },
		)
		rec := newRecorder(t, h)
		assert.Equal(t, http.StatusInternalServerError, rec.status)
		assert.Equal(t, "NOT_READY", rec.body)
	})
}

type recorded struct {
	status int
	body   string
}

func newRecorder(t *testing.T, h http.HandlerFunc) recorded {
	t.Helper()

	srv := httpserver.New(httpserver.WithAddr("127.0.0.1:0"), httpserver.WithShutdownTimeout(time.Second))
	addr, cancel, done := startServer(t, srv, h)

	resp, err := http.Get("http://" + addr)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	cancel()
	require.NoError(t, <-done)

	return recorded{status: resp.StatusCode, body: string(body)}
}
