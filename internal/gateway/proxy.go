package gateway

import (
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zero-bot/codecoder/internal/apperr"
	"github.com/zero-bot/codecoder/internal/gatewaydb"
	"github.com/zero-bot/codecoder/internal/logging"
	"github.com/zero-bot/codecoder/internal/telemetry"
)

var ErrRateLimited = apperr.New("gateway.proxy", apperr.KindCapacity, "RATE_LIMITED", "rate limit exceeded", apperr.ErrRateLimited)

// Proxy forwards any authenticated request under its prefix to a
// configured upstream, preserving method, body, and headers other than
// the bearer token, then records the transferred bytes as usage
// (spec §4.15).
type Proxy struct {
	prefix   string
	upstream *url.URL
	client   *http.Client
	store    *gatewaydb.Store
	limiter  RateLimiter
	logger   logging.Logger
}

// ProxyOption configures optional Proxy dependencies.
type ProxyOption func(*Proxy)

func WithProxyRateLimiter(l RateLimiter) ProxyOption {
	return func(p *Proxy) { p.limiter = l }
}

func WithProxyLogger(logger logging.Logger) ProxyOption {
	return func(p *Proxy) {
		if logger == nil {
			return
		}
		if cal, ok := logger.(logging.ComponentAwareLogger); ok {
			p.logger = cal.WithComponent("gateway.proxy")
		} else {
			p.logger = logger
		}
	}
}

func WithProxyHTTPClient(client *http.Client) ProxyOption {
	return func(p *Proxy) { p.client = client }
}

// NewProxy builds a Proxy forwarding requests under prefix to upstream.
func NewProxy(prefix, upstream string, store *gatewaydb.Store, opts ...ProxyOption) (*Proxy, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, err
	}

	p := &Proxy{
		prefix:   strings.TrimSuffix(prefix, "/"),
		upstream: u,
		client:   &http.Client{Timeout: 60 * time.Second, Transport: telemetry.TracedTransport(nil)},
		store:    store,
		logger:   &logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ServeHTTP implements http.Handler. It expects an AuthUser already
// attached to the request context by the Verify middleware.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	authUser, ok := AuthUserFromContext(r.Context())
	if !ok {
		writeError(w, ErrMissingToken)
		return
	}

	if p.limiter != nil {
		allowed, retryAfter := p.limiter.Allow(r.Context(), authUser.UserID)
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, ErrRateLimited)
			return
		}
	}

	target := *p.upstream
	target.Path = singleJoiningSlash(p.upstream.Path, strings.TrimPrefix(r.URL.Path, p.prefix))
	target.RawQuery = r.URL.RawQuery

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, apperr.New("gateway.proxy", apperr.KindTransport, "BODY_READ_FAILED", "failed to read request body", err))
		return
	}

	ctx, span := telemetry.StartSpan(r.Context(), "gateway.proxy.dispatch")
	defer span.End()

	outReq, err := http.NewRequestWithContext(ctx, r.Method, target.String(), strings.NewReader(string(body)))
	if err != nil {
		telemetry.RecordSpanError(ctx, err)
		writeError(w, apperr.New("gateway.proxy", apperr.KindTransport, "PROXY_REQUEST_FAILED", "failed to build upstream request", err))
		return
	}
	copyHeadersExceptAuth(outReq.Header, r.Header)

	resp, err := p.client.Do(outReq)
	if err != nil {
		telemetry.RecordSpanError(ctx, err)
		telemetry.Counter("gateway.proxy.upstream_errors", "prefix", p.prefix)
		writeError(w, apperr.New("gateway.proxy", apperr.KindTransport, "UPSTREAM_UNREACHABLE", "upstream request failed", err))
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		writeError(w, apperr.New("gateway.proxy", apperr.KindTransport, "UPSTREAM_READ_FAILED", "failed to read upstream response", err))
		return
	}

	if p.store != nil {
		if err := p.store.RecordUsage(r.Context(), authUser.UserID, int64(len(body)), int64(len(respBody))); err != nil {
			p.logger.WarnWithContext(r.Context(), "failed to record proxy usage", map[string]interface{}{
				"operation": "proxy_usage", "user_id": authUser.UserID, "error": err.Error(),
			})
		}
	}

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(respBody)
}

func copyHeadersExceptAuth(dst, src http.Header) {
	for k, vs := range src {
		if strings.EqualFold(k, "Authorization") {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

func copyHeaders(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}
