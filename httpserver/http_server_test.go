/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-msglimit/log/logtest"
)

const testErrDomain = "MsgLimit"

func newTestServer(t *testing.T, opts Opts) (*HTTPServer, chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	opts.Listener = ln
	if opts.ErrorDomain == "" {
		opts.ErrorDomain = testErrDomain
	}

	cfg := NewDefaultConfig()
	cfg.Address = ln.Addr().String()
	srv := New(cfg, logtest.NewRecorder(), opts)

	fatalErr := make(chan error, 1)
	go srv.Start(fatalErr)
	require.Eventually(t, func() bool { return srv.GetPort() != 0 }, 5*time.Second, 10*time.Millisecond)
	return srv, fatalErr
}

func TestHTTPServer_StartAndStop(t *testing.T) {
	srv, fatalErr := newTestServer(t, Opts{
		ServiceNameInURL: "msglimit",
		APIRoutes: map[APIVersion]APIRoute{
			1: func(router chi.Router) {
				router.Post("/chats/{chatID}/messages", func(rw http.ResponseWriter, r *http.Request) {
					_, _ = fmt.Fprintf(rw, "chat %s", chi.URLParam(r, "chatID"))
				})
			},
		},
	})

	network, addr := srv.NetworkAndAddr()
	require.Equal(t, networkTCP, network)
	require.Equal(t, fmt.Sprintf("127.0.0.1:%d", srv.GetPort()), addr)

	resp, err := http.Post(srv.URL+"/api/msglimit/v1/chats/42/messages", "text/plain", strings.NewReader("hi"))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "chat 42", string(body))
	require.NotEmpty(t, resp.Header.Get(DefaultRequestIDHeader))

	require.NoError(t, srv.Stop(true))
	select {
	case err = <-fatalErr:
		require.NoError(t, err)
	default:
	}

	_, err = http.Get(srv.URL + "/healthz")
	require.Error(t, err)
}

func TestHTTPServer_StopNotGracefully(t *testing.T) {
	srv, _ := newTestServer(t, Opts{})
	require.NoError(t, srv.Stop(false))
}

func TestHTTPServer_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { require.NoError(t, ln.Close()) }()

	cfg := NewDefaultConfig()
	cfg.Address = ln.Addr().String() // Already in use.
	srv := NewWithHandler(cfg, logtest.NewRecorder(), http.NotFoundHandler())

	fatalErr := make(chan error, 1)
	srv.Start(fatalErr)
	require.Error(t, <-fatalErr)
}

func TestNewWithHandler_URL(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Address = "127.0.0.1:8443"
	cfg.TLS = TLSConfig{Enabled: true, Certificate: "cert.pem", Key: "key.pem"}
	srv := NewWithHandler(cfg, logtest.NewRecorder(), http.NotFoundHandler())
	require.Equal(t, "https://127.0.0.1:8443", srv.URL)
	require.Nil(t, srv.HTTPRouter)

	cfg = NewDefaultConfig()
	cfg.UnixSocketPath = "/tmp/msglimit.sock"
	srv = NewWithHandler(cfg, logtest.NewRecorder(), chi.NewRouter())
	require.Equal(t, "http://localhost", srv.URL)
	require.NotNil(t, srv.HTTPRouter)
	network, addr := srv.NetworkAndAddr()
	require.Equal(t, networkUnix, network)
	require.Equal(t, "/tmp/msglimit.sock", addr)
	require.Equal(t, 0, srv.GetPort())
}

func TestHTTPServer_GracefulShutdownWaitsForRequests(t *testing.T) {
	started := make(chan struct{})
	srv, _ := newTestServer(t, Opts{
		ServiceNameInURL: "msglimit",
		APIRoutes: map[APIVersion]APIRoute{
			1: func(router chi.Router) {
				router.Get("/slow", func(rw http.ResponseWriter, r *http.Request) {
					close(started)
					time.Sleep(200 * time.Millisecond)
					rw.WriteHeader(http.StatusNoContent)
				})
			},
		},
	})

	respCh := make(chan int, 1)
	go func() {
		resp, err := http.Get(srv.URL + "/api/msglimit/v1/slow")
		if err != nil {
			respCh <- 0
			return
		}
		_ = resp.Body.Close()
		respCh <- resp.StatusCode
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stopped := make(chan error, 1)
	go func() { stopped <- srv.Stop(true) }()
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("server was not stopped")
	}
	require.Equal(t, http.StatusNoContent, <-respCh)
}
