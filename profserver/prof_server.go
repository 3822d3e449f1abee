/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package profserver provides an HTTP server exposing pprof endpoints under "/debug".
package profserver

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/acronis/go-msglimit/httpserver/middleware"
	"github.com/acronis/go-msglimit/log"
	"github.com/acronis/go-msglimit/service"
)

// ProfServer represents HTTP server for profiling.
// It implements service.Unit interface.
type ProfServer struct {
	URL            string
	HTTPServer     *http.Server
	Logger         log.FieldLogger
	listener       net.Listener
	httpServerDone chan struct{}
}

var _ service.Unit = (*ProfServer)(nil)

// New creates a new profiling HTTP server. If listener is nil, the server listens on cfg.Address.
func New(cfg *Config, logger log.FieldLogger, listener net.Listener) *ProfServer {
	router := chi.NewRouter()
	router.Use(middleware.RequestLogger(logger))
	router.Mount("/debug", chimiddleware.Profiler())

	addr := cfg.Address
	if listener != nil {
		addr = listener.Addr().String()
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: time.Second * 5,
	}

	return &ProfServer{
		URL:            "http://" + addr,
		HTTPServer:     httpServer,
		Logger:         logger,
		listener:       listener,
		httpServerDone: make(chan struct{}),
	}
}

// Start starts the server in a blocking way. A fatal error is sent into fatalError.
func (s *ProfServer) Start(fatalError chan<- error) {
	defer close(s.httpServerDone)

	logger := s.Logger.With(log.String("address", s.HTTPServer.Addr))
	logger.Info("starting profiling HTTP server...")

	var err error
	if s.listener != nil {
		err = s.HTTPServer.Serve(s.listener)
	} else {
		err = s.HTTPServer.ListenAndServe()
	}
	if err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("profiling HTTP server closed")
			return
		}
		logger.Error("profiling HTTP server error", log.Error(err))
		fatalError <- err
	}
}

// Stop closes the server. Profiling requests are not waited for, so gracefully is ignored.
func (s *ProfServer) Stop(_ bool) error {
	s.Logger.Info("closing profiling HTTP server...")
	if err := s.HTTPServer.Close(); err != nil {
		s.Logger.Error("profiling HTTP server closing error", log.Error(err))
		return err
	}
	<-s.httpServerDone
	return nil
}
