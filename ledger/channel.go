// Package ledger talks to the minter service through the replica's HTTP interface: CBOR envelopes,
// Candid arguments and certified replies, verified against the channel's trust root.
package ledger

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aviate-labs/agent-go"
	"github.com/aviate-labs/agent-go/candid/idl"
	"github.com/aviate-labs/agent-go/certification"
	"github.com/aviate-labs/agent-go/principal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dungnh3/most-explorer/config"
	"github.com/dungnh3/most-explorer/rest"
)

const (
	statusPath   = "api/v2/status"
	statusMethod = "status"
	tracerName   = "github.com/dungnh3/most-explorer/ledger"
)

// mainnetRootKey is trusted without a fetch outside local deployments.
var mainnetRootKey, _ = hex.DecodeString(certification.RootKey)

// ReplicaStatus is what the host reports about itself on the status endpoint.
type ReplicaStatus struct {
	APIVersion   string `json:"ic_api_version"`
	ImplVersion  string `json:"impl_version,omitempty"`
	ImplRevision string `json:"impl_revision,omitempty"`
	TrustRoot    bool   `json:"trust_root"`
}

// Channel is an authenticated connection to one service on one host.
type Channel struct {
	host          *url.URL
	canister      principal.Principal
	iface         Interface
	isLocal       bool
	timeout       time.Duration
	pollDelay     time.Duration
	verifyQueries bool
	// configured ROOT_KEY, the fetched key must match it
	pinned []byte

	limiter *rate.Limiter
	status  *rest.Rest
	log     *zap.Logger
	tracer  trace.Tracer

	mu sync.RWMutex
	// nil until a trust root is held
	agent *agent.Agent
}

type Option func(*Channel)

// WithRest sets the request builder the status endpoint is read with. Its decoder must read CBOR.
func WithRest(cli *rest.Rest) Option {
	return func(c *Channel) {
		if cli != nil {
			c.status = cli
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Channel) {
		if log != nil {
			c.log = log
		}
	}
}

// WithPollDelay sets how often an update call polls for its certified reply.
func WithPollDelay(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.pollDelay = d
		}
	}
}

// WithQueryVerification turns the check of replica signatures on query replies on or off. On by default.
func WithQueryVerification(verify bool) Option {
	return func(c *Channel) {
		c.verifyQueries = verify
	}
}

// Connect binds a channel to cfg.Host and cfg.CanisterID. No request is made.
// Outside local deployments the mainnet root key is the trust root unless ROOT_KEY names another one,
// which then has to be confirmed with FetchRootKey.
func Connect(cfg config.Config, iface Interface, opts ...Option) (*Channel, error) {
	host, err := url.Parse(cfg.Host)
	if err != nil {
		return nil, &config.ConfigError{Key: "HOST", Err: err}
	}
	if (host.Scheme != "http" && host.Scheme != "https") || host.Host == "" {
		return nil, &config.ConfigError{Key: "HOST", Err: fmt.Errorf("%q is not an absolute http(s) url", cfg.Host)}
	}
	// paths are resolved against the host, keep any prefix it carries
	host.Path = strings.TrimSuffix(host.Path, "/") + "/"
	host.RawQuery = ""

	canister, err := principal.Decode(cfg.CanisterID)
	if err != nil {
		return nil, &config.ConfigError{Key: "CANISTER_ID", Err: err}
	}
	if canister.Encode() != cfg.CanisterID {
		return nil, &config.ConfigError{Key: "CANISTER_ID", Err: fmt.Errorf("%q is not a canonical principal", cfg.CanisterID)}
	}

	c := &Channel{
		host:          host,
		canister:      canister,
		iface:         iface,
		isLocal:       cfg.IsLocal,
		timeout:       cfg.RequestTimeout,
		pollDelay:     time.Second,
		verifyQueries: true,
		limiter:       rate.NewLimiter(rate.Inf, 1),
		log:           zap.NewNop(),
		tracer:        otel.Tracer(tracerName),
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.status == nil {
		c.status = rest.New(rest.WithLogger(c.log), rest.WithResponseDecoder(rest.CBORDecoder{}))
	}
	// status reads share the budget of the agent's requests
	c.status = c.status.Clone().RateLimit(c.limiter)

	if cfg.RootKey != "" {
		key, err := decodeRootKey(cfg.RootKey)
		if err != nil {
			return nil, &config.ConfigError{Key: "ROOT_KEY", Err: err}
		}
		c.pinned = key
	}
	if !c.isLocal && (c.pinned == nil || bytes.Equal(c.pinned, mainnetRootKey)) {
		// without FetchRootKey the agent makes no request
		a, err := agent.New(c.agentConfig(false))
		if err != nil {
			return nil, err
		}
		c.agent = a
	}
	return c, nil
}

func (c *Channel) HasTrustRoot() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.agent != nil
}

// FetchRootKey asks the host for its root key and trusts it from then on.
// Only a local replica should be trusted this way.
func (c *Channel) FetchRootKey(ctx context.Context) error {
	if !c.isLocal {
		c.log.Warn("fetching the root key from a non-local host, do not do this in production",
			zap.String("host", c.host.String()))
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.limiter.Wait(ctx); err != nil {
		return &TransportError{Method: statusMethod, Err: err}
	}

	a, err := await(ctx, func() (*agent.Agent, error) {
		return agent.New(c.agentConfig(true))
	})
	if err != nil {
		return &TransportError{Method: statusMethod, Err: err}
	}
	key := a.GetRootKey()
	if _, err := certification.PublicBLSKeyFromDER(key); err != nil {
		return &TransportError{Method: statusMethod, Err: fmt.Errorf("%w: %v", ErrInvalidRootKey, err)}
	}
	if c.pinned != nil && !bytes.Equal(c.pinned, key) {
		return &TransportError{Method: statusMethod, Err: ErrRootKeyMismatch}
	}

	c.mu.Lock()
	c.agent = a
	c.mu.Unlock()
	c.log.Info("trust root established", zap.String("host", c.host.String()),
		zap.String("root_key", hex.EncodeToString(key[len(key)-8:])))
	return nil
}

// Status reads the host's status endpoint. It needs no trust root.
func (c *Channel) Status(ctx context.Context) (*ReplicaStatus, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	r, err := c.status.Clone().SetContext(ctx).Base(c.host.String())
	if err != nil {
		return nil, &TransportError{Method: statusMethod, Err: err}
	}
	var reply agent.Status
	var failure rest.Raw
	resp, err := r.Get(statusPath).SetHeader("Accept", "application/cbor").Receive(&reply, &failure)
	if err != nil {
		return nil, receiveError(statusMethod, resp, err)
	}
	if !rest.DecodeOnSuccess(resp.Response) {
		return nil, &TransportError{Method: statusMethod, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(failure))}
	}

	st := &ReplicaStatus{APIVersion: reply.Version, TrustRoot: c.HasTrustRoot()}
	if reply.Impl != nil {
		st.ImplVersion = reply.Impl.Version
		st.ImplRevision = reply.Impl.Revision
	}
	return st, nil
}

// Call invokes a declared procedure and decodes its results into out, one pointer per declared result.
// Queries go to a single replica, every other procedure is submitted and its certified reply awaited.
func (c *Channel) Call(ctx context.Context, method string, out []any, args ...any) error {
	f, ok := c.iface.Lookup(method)
	if !ok {
		return &TransportError{Method: method, Err: fmt.Errorf("%w: %s", ErrUnknownMethod, method)}
	}
	c.mu.RLock()
	a := c.agent
	c.mu.RUnlock()
	if a == nil {
		return &TransportError{Method: method, Err: ErrTrustRootMissing}
	}
	if err := checkArgs(f, args); err != nil {
		return &TransportError{Method: method, Err: fmt.Errorf("arguments: %w", err)}
	}
	if len(out) != len(f.ReturnParameters) {
		return &TransportError{Method: method, Err: fmt.Errorf("expected %d result(s), got %d", len(f.ReturnParameters), len(out))}
	}

	query := isQuery(f)
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	ctx, span := c.tracer.Start(ctx, "ledger."+method, trace.WithAttributes(
		attribute.String("ledger.canister", c.canister.Encode()),
		attribute.Bool("ledger.query", query),
	))
	defer span.End()

	start := time.Now()
	err := c.limiter.Wait(ctx)
	if err == nil {
		_, err = await(ctx, func() (struct{}, error) {
			if query {
				return struct{}{}, a.Query(c.canister, method, args, out)
			}
			return struct{}{}, a.Call(c.canister, method, args, out)
		})
	}
	if err != nil {
		var mismatch *idl.UnmarshalGoError
		if errors.As(err, &mismatch) {
			err = fmt.Errorf("%w: %v", ErrResultMismatch, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &TransportError{Method: method, Err: err}
	}
	c.log.Debug("ledger call", zap.String("method", method), zap.Bool("query", query),
		zap.Duration("took", time.Since(start)))
	return nil
}

func (c *Channel) agentConfig(fetchRootKey bool) agent.Config {
	return agent.Config{
		ClientConfig:                   &agent.ClientConfig{Host: c.host},
		FetchRootKey:                   fetchRootKey,
		Logger:                         agentLogger{log: c.log.Sugar()},
		PollDelay:                      c.pollDelay,
		PollTimeout:                    c.timeout,
		DisableSignedQueryVerification: !c.verifyQueries,
	}
}

func (c *Channel) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// await runs fn, which cannot be cancelled, and stops waiting for it once ctx is done.
func await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn()
		done <- outcome{v: v, err: err}
	}()
	select {
	case o := <-done:
		return o.v, o.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// receiveError classifies a Receive failure: no response means the request never completed.
func receiveError(method string, resp *rest.Response, err error) error {
	if resp == nil {
		return &TransportError{Method: method, Err: err}
	}
	return &TransportError{Method: method, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode reply: %w", err)}
}

func decodeRootKey(text string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRootKey, err)
	}
	if _, err := certification.PublicBLSKeyFromDER(key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRootKey, err)
	}
	return key, nil
}

// agentLogger hands the agent's trace lines to zap at debug level.
type agentLogger struct {
	log *zap.SugaredLogger
}

func (l agentLogger) Printf(format string, v ...any) {
	l.log.Debugf(format, v...)
}
