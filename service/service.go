/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package service runs the units of a process until a shutdown signal is received or the context is done.
package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/acronis/go-msglimit/log"
)

// Service starts a unit, registers its metrics and stops it gracefully on shutdown.
type Service struct {
	Unit            Unit
	Logger          log.FieldLogger
	Signals         chan os.Signal
	ShutdownSignals []os.Signal
}

// New creates a new Service that is stopped by SIGINT or SIGTERM.
func New(logger log.FieldLogger, unit Unit) *Service {
	return &Service{
		Unit:            unit,
		Logger:          logger,
		Signals:         make(chan os.Signal, 1),
		ShutdownSignals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// Run starts the unit in a separate goroutine and blocks until the unit fails,
// a shutdown signal is received or ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if mr, ok := s.Unit.(MetricsRegisterer); ok {
		mr.MustRegisterMetrics()
		defer mr.UnregisterMetrics()
	}

	fatalErr := make(chan error, 1)
	go s.Unit.Start(fatalErr)

	signal.Notify(s.Signals, s.ShutdownSignals...)
	defer signal.Stop(s.Signals)

	select {
	case err := <-fatalErr:
		s.Logger.Error("service fatal error", log.Error(err))
		return fmt.Errorf("fatal error: %w", err)
	case sig := <-s.Signals:
		s.Logger.Info("service got signal, stopping", log.String("signal", sig.String()))
	case <-ctx.Done():
		s.Logger.Info("context is done, stopping service")
	}

	if err := s.Unit.Stop(true); err != nil {
		return fmt.Errorf("stop service gracefully: %w", err)
	}
	return nil
}
