/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/xid"

	"github.com/acronis/go-msglimit/log"
	"github.com/acronis/go-msglimit/restapi"
)

// DefaultRequestIDHeader is the name of the HTTP header used for request IDs if no other is configured.
const DefaultRequestIDHeader = "X-Request-ID"

// RequestLoggerOpts represents options for the RequestLogger middleware.
type RequestLoggerOpts struct {
	// RequestIDHeader is the name of the header with the request ID. DefaultRequestIDHeader is used if empty.
	RequestIDHeader string
	// GenerateID is used when the request has no ID. xid is used by default.
	GenerateID func() string
	// SkipPaths are the paths for which the "response completed" entry is not written (e.g. health checks).
	SkipPaths []string
}

type requestLoggerHandler struct {
	next      http.Handler
	logger    log.FieldLogger
	header    string
	genID     func() string
	skipPaths map[string]struct{}
}

// RequestLogger is a middleware that assigns an ID to the request (reusing the one from the request header),
// puts the logger with this ID into the request context and logs each completed response.
func RequestLogger(logger log.FieldLogger) func(next http.Handler) http.Handler {
	return RequestLoggerWithOpts(logger, RequestLoggerOpts{})
}

// RequestLoggerWithOpts is a configurable version of the RequestLogger middleware.
func RequestLoggerWithOpts(logger log.FieldLogger, opts RequestLoggerOpts) func(next http.Handler) http.Handler {
	header := opts.RequestIDHeader
	if header == "" {
		header = DefaultRequestIDHeader
	}
	genID := opts.GenerateID
	if genID == nil {
		genID = func() string { return xid.New().String() }
	}
	skipPaths := make(map[string]struct{}, len(opts.SkipPaths))
	for _, p := range opts.SkipPaths {
		skipPaths[p] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return &requestLoggerHandler{next: next, logger: logger, header: header, genID: genID, skipPaths: skipPaths}
	}
}

func (h *requestLoggerHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	requestID := r.Header.Get(h.header)
	if requestID == "" {
		requestID = h.genID()
	}
	rw.Header().Set(h.header, requestID)

	logger := h.logger.With(
		log.String("request_id", requestID),
		log.String("method", r.Method),
		log.String("uri", r.RequestURI),
		log.String("remote_addr", r.RemoteAddr),
	)
	r = r.WithContext(NewContextWithLogger(r.Context(), logger))

	wrw := chimw.NewWrapResponseWriter(rw, r.ProtoMajor)
	h.next.ServeHTTP(wrw, r)

	if _, skip := h.skipPaths[r.URL.Path]; skip {
		return
	}
	status := wrw.Status()
	if status == 0 {
		status = http.StatusOK
	}
	logger.Info("response completed",
		log.Int("status", status),
		log.Int("bytes_sent", wrw.BytesWritten()),
		log.Int64("duration_ms", time.Since(startTime).Milliseconds()),
	)
}

// Recovery is a middleware that recovers from panics in the next handlers, logs them
// and responds with 500 Internal Server Error.
func Recovery(errDomain string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					if p == http.ErrAbortHandler {
						panic(p)
					}
					logger := GetLoggerFromContext(r.Context())
					if logger != nil {
						logger.Error("panic while serving request", log.Any("panic", p))
					}
					restapi.RespondInternalError(rw, errDomain, logger)
				}
			}()
			next.ServeHTTP(rw, r)
		})
	}
}
