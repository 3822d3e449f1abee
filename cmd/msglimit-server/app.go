/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/acronis/go-msglimit/httpserver"
	"github.com/acronis/go-msglimit/httpserver/middleware"
	"github.com/acronis/go-msglimit/log"
	"github.com/acronis/go-msglimit/lrucache"
	"github.com/acronis/go-msglimit/msglimit"
	"github.com/acronis/go-msglimit/profserver"
	"github.com/acronis/go-msglimit/restapi"
	"github.com/acronis/go-msglimit/service"
)

const (
	serviceNameInURL = "msglimit"
	errDomain        = "MsgLimit"
	metricsNamespace = "msglimit_server"
	chatIDParam      = "chatID"
)

// app is the root unit of the server: the HTTP server, the sweeper of idle chat windows
// and the optional profiling server.
type app struct {
	*service.CompositeUnit

	server         *httpserver.HTTPServer
	limiter        *msglimit.KeyedLimiter
	limiterMetrics *msglimit.PrometheusMetrics
	cacheMetrics   *lrucache.PrometheusMetrics
}

var _ service.MetricsRegisterer = (*app)(nil)

type messageResponseData struct {
	ChatID   string `json:"chatId"`
	Accepted bool   `json:"accepted"`
}

func newApp(cfg *appConfig, logger log.FieldLogger, listener net.Listener) (*app, error) {
	limiterMetrics := msglimit.NewPrometheusMetricsWithOpts(msglimit.PrometheusMetricsOpts{Namespace: metricsNamespace})
	cacheMetrics := lrucache.NewPrometheusMetricsWithOpts(lrucache.PrometheusMetricsOpts{Namespace: metricsNamespace})

	limiter, err := msglimit.NewKeyedLimiter(*cfg.MsgLimit, msglimit.KeyedLimiterOpts{
		MaxKeys:               cfg.Limiter.MaxKeys,
		MetricsCollector:      limiterMetrics,
		CacheMetricsCollector: cacheMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create limiter: %w", err)
	}

	msgLimitMw, err := middleware.MessageRateLimitWithOpts(nil, errDomain, middleware.MessageRateLimitOpts{
		GetKey:         middleware.MessageRateLimitGetKeyByRouteParam(chatIDParam),
		MaxKeys:        cfg.Limiter.MaxKeys,
		ExcludedKeys:   cfg.Limiter.ExcludedChats,
		GetRetryAfter:  middleware.GetRetryAfterEstimatedTime,
		DryRun:         cfg.Limiter.DryRun,
		BacklogLimit:   cfg.Limiter.BacklogLimit,
		BacklogTimeout: cfg.Limiter.BacklogTimeout,
		Limiter:        limiter,
	})
	if err != nil {
		return nil, fmt.Errorf("create message rate limit middleware: %w", err)
	}

	server := httpserver.New(cfg.Server, logger, httpserver.Opts{
		ServiceNameInURL: serviceNameInURL,
		ErrorDomain:      errDomain,
		APIRoutes: map[httpserver.APIVersion]httpserver.APIRoute{
			1: func(router chi.Router) {
				router.With(msgLimitMw).Post(fmt.Sprintf("/chats/{%s}/messages", chatIDParam), handleMessage)
			},
		},
		HealthCheck: func(ctx context.Context) (httpserver.HealthCheckResult, error) {
			return httpserver.HealthCheckResult{"limiter": httpserver.HealthCheckStatusOK}, ctx.Err()
		},
		Listener: listener,
	})

	sweeper, err := service.NewPeriodicUnit("limiter-sweeper", cfg.Limiter.SweepInterval, func(_ context.Context) error {
		if n := limiter.Sweep(time.Now()); n > 0 {
			logger.Debug("idle chat windows are swept", log.Int("count", n), log.Int("keys_left", limiter.KeysCount()))
		}
		return nil
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create sweeper: %w", err)
	}

	units := []service.Unit{server, sweeper}
	if cfg.Prof.Enabled {
		units = append(units, profserver.New(cfg.Prof, logger, nil))
	}

	return &app{
		CompositeUnit:  service.NewCompositeUnit(units...),
		server:         server,
		limiter:        limiter,
		limiterMetrics: limiterMetrics,
		cacheMetrics:   cacheMetrics,
	}, nil
}

// handleMessage accepts a message that passed the rate limiting. Delivery itself is out of scope of the server.
func handleMessage(rw http.ResponseWriter, r *http.Request) {
	restapi.RespondCodeAndJSON(rw, http.StatusAccepted,
		messageResponseData{ChatID: chi.URLParam(r, chatIDParam), Accepted: true},
		middleware.GetLoggerFromContext(r.Context()))
}

func (a *app) MustRegisterMetrics() {
	a.CompositeUnit.MustRegisterMetrics()
	a.limiterMetrics.MustRegister()
	a.cacheMetrics.MustRegister()
}

func (a *app) UnregisterMetrics() {
	a.CompositeUnit.UnregisterMetrics()
	a.limiterMetrics.Unregister()
	a.cacheMetrics.Unregister()
}
