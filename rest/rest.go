// Package rest builds and sends the plain HTTP requests of the ledger client, such as the replica status.
// A Rest value is a mutable request template: configure a shared one once, Clone it per request.
package rest

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Doer sends a request. *http.Client is one; RateLimitDoer wraps another.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Rest struct {
	mutex sync.Mutex

	ctx        context.Context
	httpClient Doer
	method     string
	// target resolved so far and the URL relative paths resolve against
	baseURL *url.URL
	rawURL  string
	header  http.Header

	responseDecoder ResponseDecoder
	counterVec      *prometheus.CounterVec
	log             *zap.Logger
}

var defaultClient = &http.Client{
	Transport: http.DefaultTransport,
}

func New(opts ...Option) *Rest {
	c := newConfig(opts...)
	return &Rest{
		httpClient:      c.httpClient,
		method:          http.MethodGet,
		header:          make(http.Header),
		responseDecoder: c.responseDecoder,
		log:             c.log,
	}
}

// NewOtel returns a Rest whose transport records a client span per request.
// base may be nil, http.DefaultTransport is used then.
func NewOtel(base http.RoundTripper, opts ...Option) *Rest {
	if base == nil {
		base = http.DefaultTransport
	}
	otelOpt := WithHttpClient(&http.Client{
		Transport: otelhttp.NewTransport(base),
	})
	return New(append([]Option{otelOpt}, opts...)...)
}

// Clone copies the template. Header and base URL of the copy are independent of s.
func (s *Rest) Clone() *Rest {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	header := make(http.Header, len(s.header))
	for k, v := range s.header {
		header[k] = append([]string(nil), v...)
	}
	var baseURL *url.URL
	if s.baseURL != nil {
		u := *s.baseURL
		baseURL = &u
	}
	return &Rest{
		ctx:             s.ctx,
		httpClient:      s.httpClient,
		method:          s.method,
		baseURL:         baseURL,
		rawURL:          s.rawURL,
		header:          header,
		responseDecoder: s.responseDecoder,
		counterVec:      s.counterVec,
		log:             s.log,
	}
}

// RateLimit wraps the current Doer so that every request first takes a token from limiter.
// Sharing the limiter with other clients of the same host keeps them in one budget. nil leaves the Doer untouched.
func (s *Rest) RateLimit(limiter *rate.Limiter) *Rest {
	if limiter == nil {
		return s
	}
	s.httpClient = NewRateLimitDoer(s.httpClient, limiter)
	return s
}

// Context is the request context, context.Background when unset.
func (s *Rest) Context() context.Context {
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func (s *Rest) SetContext(ctx context.Context) *Rest {
	s.ctx = ctx
	return s
}

// RegisterCounter attaches the request counter. The vec is registered on reg once;
// an already registered identical collector is reused.
func (s *Rest) RegisterCounter(reg prometheus.Registerer) (*prometheus.CounterVec, error) {
	vec := RequestCounterVec()
	if reg != nil {
		if err := reg.Register(vec); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, err
			}
			vec = are.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	s.counterVec = vec
	return vec, nil
}

func RequestCounterVec() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "most_explorer_ledger_requests_total",
		Help: "HTTP requests sent to the ledger service.",
	}, []string{"method", "host", "path", "status_code"})
}

func (s *Rest) Get(pathURL string) *Rest {
	s.method = http.MethodGet
	return s.Path(pathURL)
}

func (s *Rest) SetHeader(key, value string) *Rest {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.header.Set(key, value)
	return s
}

// Base sets the URL later paths resolve against. End it with a slash to extend its path.
func (s *Rest) Base(baseURL string) (*Rest, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return s, err
	}
	s.baseURL = u
	s.rawURL = u.String()
	return s, nil
}

// Path resolves path against the base URL. An unparsable path leaves the target unchanged.
func (s *Rest) Path(path string) *Rest {
	ref, err := url.Parse(path)
	if err != nil {
		return s
	}
	if s.baseURL == nil {
		s.baseURL = ref
	}
	s.rawURL = s.baseURL.ResolveReference(ref).String()
	if strings.HasSuffix(path, "/") && !strings.HasSuffix(s.rawURL, "/") {
		s.rawURL += "/"
	}
	return s
}

// Request builds the http.Request described by s.
func (s *Rest) Request() (*http.Request, error) {
	reqURL, err := url.Parse(s.rawURL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(s.Context(), s.method, reqURL.String(), nil)
	if err != nil {
		return nil, err
	}
	for key, values := range s.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	return req, nil
}

// Receive builds and sends the request, see Do.
func (s *Rest) Receive(successV, failureV interface{}) (*Response, error) {
	req, err := s.Request()
	if err != nil {
		return nil, err
	}
	return s.Do(req, successV, failureV)
}

// Do sends req. A success reply is decoded into successV, any other into failureV; a nil target skips
// decoding and a 204 is never decoded. The returned Response is nil only when no reply was received.
func (s *Rest) Do(req *http.Request, successV, failureV interface{}) (*Response, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.log.Error("failed to execute request", zap.String("method", req.Method), zap.String("url", req.URL.String()), zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()
	// drain so the keep-alive connection can be reused
	//nolint:errcheck
	defer io.Copy(io.Discard, resp.Body)

	s.count(req, resp)
	if resp.StatusCode == http.StatusNoContent {
		return NewResponse(resp), nil
	}
	if successV != nil || failureV != nil {
		err = s.decode(req, resp, successV, failureV)
	}
	return NewResponse(resp), err
}

func (s *Rest) count(req *http.Request, resp *http.Response) {
	if s.counterVec == nil {
		return
	}
	s.counterVec.WithLabelValues(req.Method, req.URL.Host, req.URL.Path, strconv.Itoa(resp.StatusCode)).Inc()
}

func (s *Rest) decode(req *http.Request, resp *http.Response, successV, failureV interface{}) error {
	target := req.URL.String()
	if DecodeOnSuccess(resp) {
		err := s.decodeInto(resp, successV)
		s.log.Debug("decoded reply", zap.String(req.Method, target), zap.Int("status", resp.StatusCode), zap.Error(err))
		return err
	}
	if failureV == nil {
		body, err := io.ReadAll(resp.Body)
		s.log.Warn("unsuccessful reply", zap.String(req.Method, target), zap.String("status", resp.Status), zap.ByteString("resp", body), zap.Error(err))
		return nil
	}
	err := s.decodeInto(resp, failureV)
	s.log.Warn("unsuccessful reply", zap.String(req.Method, target), zap.String("status", resp.Status), zap.Any("resp", failureV), zap.Error(err))
	return err
}

// decodeInto fills v: raw bytes for *Raw, the response decoder otherwise.
func (s *Rest) decodeInto(resp *http.Response, v interface{}) error {
	switch rv := v.(type) {
	case nil:
		return nil
	case *Raw:
		body, err := io.ReadAll(resp.Body)
		*rv = body
		return err
	default:
		return s.responseDecoder.Decode(resp, v)
	}
}
