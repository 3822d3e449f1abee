/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/vasayxtx/go-glob"

	"github.com/acronis/go-msglimit/internal/ratelimit"
	"github.com/acronis/go-msglimit/log"
	"github.com/acronis/go-msglimit/msglimit"
	"github.com/acronis/go-msglimit/restapi"
)

// DefaultMessageRateLimitMaxKeys is a default value of maximum keys number for the MessageRateLimit middleware.
const DefaultMessageRateLimitMaxKeys = 10000

// DefaultMessageRateLimitBacklogTimeout determines how long the HTTP request may be in the backlog status.
const DefaultMessageRateLimitBacklogTimeout = ratelimit.DefaultBacklogTimeout

// MessageRateLimitLogFieldKey is the name of the logged field that contains a key for the message rate limiter.
const MessageRateLimitLogFieldKey = "msg_rate_limit_key"

const userAgentLogFieldKey = "user_agent"

// MessageRateLimitParams contains data that relates to the rate limiting of a request
// and could be used for rejecting it or handling an occurred error.
type MessageRateLimitParams struct {
	ErrDomain           string
	ResponseStatusCode  int
	GetRetryAfter       MessageRateLimitGetRetryAfterFunc
	Key                 string
	RequestBacklogged   bool
	EstimatedRetryAfter time.Duration
}

// MessageRateLimitGetRetryAfterFunc is a function that is called to get a value for Retry-After response HTTP header
// when the rate limit is exceeded.
type MessageRateLimitGetRetryAfterFunc func(r *http.Request, estimatedTime time.Duration) time.Duration

// MessageRateLimitOnRejectFunc is a function that is called for rejecting HTTP request when the rate limit is exceeded.
type MessageRateLimitOnRejectFunc func(
	rw http.ResponseWriter, r *http.Request, params MessageRateLimitParams, next http.Handler, logger log.FieldLogger)

// MessageRateLimitOnErrorFunc is a function that is called when an error occurs during the rate limiting.
type MessageRateLimitOnErrorFunc func(
	rw http.ResponseWriter, r *http.Request, params MessageRateLimitParams, err error, next http.Handler, logger log.FieldLogger)

// MessageRateLimitGetKeyFunc is a function that is called for getting key for rate limiting.
// If bypass is true, the request is served without rate limiting.
type MessageRateLimitGetKeyFunc func(r *http.Request) (key string, bypass bool, err error)

// MessageRateLimitOpts represents options for the MessageRateLimit middleware.
type MessageRateLimitOpts struct {
	// GetKey returns the key of the request. Without it, all requests share a single window.
	GetKey MessageRateLimitGetKeyFunc
	// MaxKeys is the maximum number of keys with own windows. DefaultMessageRateLimitMaxKeys is used if zero.
	MaxKeys int
	// ExcludedKeys is a list of glob patterns. Requests with matching keys are not limited.
	ExcludedKeys []string
	// IncludedKeys is a list of glob patterns. Only requests with matching keys are limited.
	IncludedKeys []string

	ResponseStatusCode int
	GetRetryAfter      MessageRateLimitGetRetryAfterFunc
	DryRun             bool

	// BacklogLimit is the number of requests per key that may wait for the window capacity.
	// Backlogging is disabled if the window never admits messages (MaxMessages is zero).
	BacklogLimit   int
	BacklogTimeout time.Duration

	OnReject         MessageRateLimitOnRejectFunc
	OnRejectInDryRun MessageRateLimitOnRejectFunc
	OnError          MessageRateLimitOnErrorFunc

	MetricsCollector msglimit.MetricsCollector
	Now              func() time.Time

	// Limiter is a pre-built limiter to use instead of creating a new one.
	// If set, MetricsCollector and Now are ignored, MaxKeys only bounds backlogs, and cfg may be nil.
	Limiter *msglimit.KeyedLimiter
}

var (
	_ ratelimit.RecordingLimiter = (*msglimit.KeyedLimiter)(nil)
	_ ratelimit.NeverAdmitter    = (*msglimit.KeyedLimiter)(nil)
)

type messageRateLimitHandler struct {
	next           http.Handler
	processor      *ratelimit.Processor
	getKey         MessageRateLimitGetKeyFunc
	errDomain      string
	respStatusCode int
	getRetryAfter  MessageRateLimitGetRetryAfterFunc

	onReject MessageRateLimitOnRejectFunc
	onError  MessageRateLimitOnErrorFunc
}

func (h *messageRateLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	// Error is always nil, it's handled in the requestHandler methods.
	_ = h.processor.Process(&messageRateLimitRequest{rw: rw, r: r, parent: h})
}

// messageRateLimitRequest implements ratelimit.Handler for HTTP requests.
type messageRateLimitRequest struct {
	rw     http.ResponseWriter
	r      *http.Request
	parent *messageRateLimitHandler
}

func (req *messageRateLimitRequest) Context() context.Context {
	return req.r.Context()
}

func (req *messageRateLimitRequest) Key() (key string, bypass bool, err error) {
	if req.parent.getKey == nil {
		return "", false, nil
	}
	return req.parent.getKey(req.r)
}

func (req *messageRateLimitRequest) Deliver() error {
	req.parent.next.ServeHTTP(req.rw, req.r)
	return nil
}

func (req *messageRateLimitRequest) OnReject(params ratelimit.Params) error {
	req.parent.onReject(req.rw, req.r, req.convertParams(params), req.parent.next, GetLoggerFromContext(req.r.Context()))
	return nil
}

func (req *messageRateLimitRequest) OnError(params ratelimit.Params, err error) error {
	req.parent.onError(req.rw, req.r, req.convertParams(params), err, req.parent.next, GetLoggerFromContext(req.r.Context()))
	return nil
}

func (req *messageRateLimitRequest) convertParams(params ratelimit.Params) MessageRateLimitParams {
	return MessageRateLimitParams{
		ErrDomain:           req.parent.errDomain,
		ResponseStatusCode:  req.parent.respStatusCode,
		GetRetryAfter:       req.parent.getRetryAfter,
		Key:                 params.Key,
		RequestBacklogged:   params.Backlogged,
		EstimatedRetryAfter: params.EstimatedRetryAfter,
	}
}

// MessageRateLimit is a middleware that limits the number of HTTP requests (messages)
// within a sliding window of cfg.CountDuration.
func MessageRateLimit(cfg *msglimit.Config, errDomain string) (func(next http.Handler) http.Handler, error) {
	return MessageRateLimitWithOpts(cfg, errDomain, MessageRateLimitOpts{GetRetryAfter: GetRetryAfterEstimatedTime})
}

// MustMessageRateLimit is a version of MessageRateLimit that panics if an error occurs.
func MustMessageRateLimit(cfg *msglimit.Config, errDomain string) func(next http.Handler) http.Handler {
	mw, err := MessageRateLimit(cfg, errDomain)
	if err != nil {
		panic(err)
	}
	return mw
}

// MessageRateLimitWithOpts is a configurable version of a middleware to limit the number of HTTP requests.
func MessageRateLimitWithOpts(
	cfg *msglimit.Config, errDomain string, opts MessageRateLimitOpts,
) (func(next http.Handler) http.Handler, error) {
	getKey, err := makeMessageRateLimitGetKey(opts)
	if err != nil {
		return nil, err
	}

	maxKeys := 0
	if getKey != nil {
		if opts.MaxKeys < 0 {
			return nil, fmt.Errorf("max keys should not be negative, got %d", opts.MaxKeys)
		}
		maxKeys = opts.MaxKeys
		if maxKeys == 0 {
			maxKeys = DefaultMessageRateLimitMaxKeys
		}
	}

	respStatusCode := opts.ResponseStatusCode
	if respStatusCode == 0 {
		respStatusCode = http.StatusTooManyRequests
	}

	limiter := opts.Limiter
	if limiter == nil {
		if cfg == nil {
			return nil, fmt.Errorf("either config or limiter should be specified")
		}
		if limiter, err = msglimit.NewKeyedLimiter(*cfg, msglimit.KeyedLimiterOpts{
			MaxKeys:          maxKeys,
			Now:              opts.Now,
			MetricsCollector: opts.MetricsCollector,
		}); err != nil {
			return nil, fmt.Errorf("new message rate limiter: %w", err)
		}
	}

	backlogParams := ratelimit.BacklogParams{MaxKeys: maxKeys, Limit: opts.BacklogLimit, Timeout: opts.BacklogTimeout}
	if opts.DryRun {
		backlogParams.Limit = 0 // Requests are never blocked in dry-run mode.
	}
	processor, err := ratelimit.NewProcessor(limiter, backlogParams)
	if err != nil {
		return nil, fmt.Errorf("new message rate limit processor: %w", err)
	}

	return func(next http.Handler) http.Handler {
		return &messageRateLimitHandler{
			next:           next,
			processor:      processor,
			getKey:         getKey,
			errDomain:      errDomain,
			respStatusCode: respStatusCode,
			getRetryAfter:  opts.GetRetryAfter,
			onReject:       makeMessageRateLimitOnRejectFunc(opts),
			onError:        makeMessageRateLimitOnErrorFunc(opts),
		}
	}, nil
}

// MustMessageRateLimitWithOpts is a version of MessageRateLimitWithOpts that panics if an error occurs.
func MustMessageRateLimitWithOpts(
	cfg *msglimit.Config, errDomain string, opts MessageRateLimitOpts,
) func(next http.Handler) http.Handler {
	mw, err := MessageRateLimitWithOpts(cfg, errDomain, opts)
	if err != nil {
		panic(err)
	}
	return mw
}

// MessageRateLimitGetKeyByHeader returns a MessageRateLimitGetKeyFunc that uses the value of the HTTP header as a key.
// Requests without the header bypass the rate limiting.
func MessageRateLimitGetKeyByHeader(name string) MessageRateLimitGetKeyFunc {
	return func(r *http.Request) (string, bool, error) {
		key := r.Header.Get(name)
		return key, key == "", nil
	}
}

// MessageRateLimitGetKeyByRouteParam returns a MessageRateLimitGetKeyFunc that uses the chi route parameter as a key.
// The middleware should be installed for a route (e.g. with chi.Router.With) so the parameter is resolved.
func MessageRateLimitGetKeyByRouteParam(name string) MessageRateLimitGetKeyFunc {
	return func(r *http.Request) (string, bool, error) {
		key := chi.URLParam(r, name)
		if key == "" {
			return "", false, fmt.Errorf("route parameter %q is empty", name)
		}
		return key, false, nil
	}
}

// GetRetryAfterEstimatedTime returns estimated time after that the client may retry the request.
func GetRetryAfterEstimatedTime(_ *http.Request, estimatedTime time.Duration) time.Duration {
	return estimatedTime
}

// DefaultMessageRateLimitOnReject sends HTTP response with the JSON error and Retry-After header
// when the rate limit is exceeded, or when the request is backlogged and the backlog limit is exceeded.
func DefaultMessageRateLimitOnReject(
	rw http.ResponseWriter, r *http.Request, params MessageRateLimitParams, _ http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger = logger.With(
			log.String(MessageRateLimitLogFieldKey, params.Key),
			log.String(userAgentLogFieldKey, r.UserAgent()),
		)
		logger.Warn("too many messages, request is rejected", log.Bool("backlogged", params.RequestBacklogged))
	}
	if params.GetRetryAfter != nil {
		retryAfter := params.GetRetryAfter(r, params.EstimatedRetryAfter)
		rw.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
	}
	restapi.RespondError(rw, params.ResponseStatusCode, restapi.NewTooManyRequestsError(params.ErrDomain), logger)
}

// DefaultMessageRateLimitOnError sends HTTP response with the internal error when the rate limiting fails.
func DefaultMessageRateLimitOnError(
	rw http.ResponseWriter, r *http.Request, params MessageRateLimitParams, err error, _ http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger.Error(err.Error(), log.String(MessageRateLimitLogFieldKey, params.Key))
	}
	restapi.RespondInternalError(rw, params.ErrDomain, logger)
}

// DefaultMessageRateLimitOnRejectInDryRun logs the exceeded rate and serves the request in the dry-run mode.
func DefaultMessageRateLimitOnRejectInDryRun(
	rw http.ResponseWriter, r *http.Request, params MessageRateLimitParams, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger.Warn("too many messages, serving will be continued because of dry run mode",
			log.String(MessageRateLimitLogFieldKey, params.Key),
			log.String(userAgentLogFieldKey, r.UserAgent()),
		)
	}
	next.ServeHTTP(rw, r)
}

func makeMessageRateLimitGetKey(opts MessageRateLimitOpts) (MessageRateLimitGetKeyFunc, error) {
	if len(opts.ExcludedKeys) != 0 && len(opts.IncludedKeys) != 0 {
		return nil, fmt.Errorf("excluded and included keys cannot be used together")
	}
	if len(opts.ExcludedKeys) == 0 && len(opts.IncludedKeys) == 0 {
		return opts.GetKey, nil
	}
	if opts.GetKey == nil {
		return nil, fmt.Errorf("excluded and included keys require GetKey")
	}

	exclude := len(opts.ExcludedKeys) != 0
	patterns := opts.IncludedKeys
	if exclude {
		patterns = opts.ExcludedKeys
	}
	matchers := make([]func(s string) bool, 0, len(patterns))
	for _, pattern := range patterns {
		matchers = append(matchers, glob.Compile(pattern))
	}

	getKey := opts.GetKey
	return func(r *http.Request) (string, bool, error) {
		key, bypass, err := getKey(r)
		if err != nil || bypass {
			return key, bypass, err
		}
		matched := false
		for _, match := range matchers {
			if match(key) {
				matched = true
				break
			}
		}
		return key, matched == exclude, nil
	}, nil
}

func makeMessageRateLimitOnRejectFunc(opts MessageRateLimitOpts) MessageRateLimitOnRejectFunc {
	if opts.DryRun {
		if opts.OnRejectInDryRun != nil {
			return opts.OnRejectInDryRun
		}
		return DefaultMessageRateLimitOnRejectInDryRun
	}
	if opts.OnReject != nil {
		return opts.OnReject
	}
	return DefaultMessageRateLimitOnReject
}

func makeMessageRateLimitOnErrorFunc(opts MessageRateLimitOpts) MessageRateLimitOnErrorFunc {
	if opts.OnError != nil {
		return opts.OnError
	}
	return DefaultMessageRateLimitOnError
}
