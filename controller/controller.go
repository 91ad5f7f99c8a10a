// Package controller drives the mint and burn lanes of one dashboard view from mount to teardown.
package controller

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dungnh3/most-explorer/internal/models"
)

const tracerName = "github.com/dungnh3/most-explorer/controller"

// Source serves the raw records of both lanes.
type Source interface {
	HasTrustRoot() bool
	FetchRootKey(ctx context.Context) error
	GetMintedTransactions(ctx context.Context) ([]string, error)
	GetFinalizedTransactions(ctx context.Context) ([]string, error)
}

// Normalizer turns raw records into display records.
type Normalizer interface {
	NormalizeMints(raws []string) ([]models.MintedRecord, error)
	NormalizeBurns(raws []string) ([]models.BurnRecord, error)
}

type Snapshot struct {
	Mint LaneSnapshot[models.MintedRecord]
	Burn LaneSnapshot[models.BurnRecord]
}

// Busy reports whether a lane has not settled yet.
func (s Snapshot) Busy() bool {
	return s.Mint.State == Idle || s.Mint.State == Loading || s.Burn.State == Idle || s.Burn.State == Loading
}

type Controller struct {
	src  Source
	norm Normalizer

	fetchRootKey bool
	parallel     bool
	log          *zap.Logger
	metrics      *Metrics
	tracer       trace.Tracer
	now          func() time.Time

	mint *lane[models.MintedRecord]
	burn *lane[models.BurnRecord]

	mu        sync.RWMutex
	mounted   bool
	unmounted bool
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

type Option func(*Controller)

func WithLogger(log *zap.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithParallel fetches both lanes at the same time instead of mint first.
func WithParallel(parallel bool) Option {
	return func(c *Controller) {
		c.parallel = parallel
	}
}

// WithTrustRootFetch makes the mount fetch the trust root before any lane when the source holds none yet.
// Local deployments only.
func WithTrustRootFetch(fetch bool) Option {
	return func(c *Controller) {
		c.fetchRootKey = fetch
	}
}

func New(src Source, norm Normalizer, opts ...Option) *Controller {
	c := &Controller{
		src:    src,
		norm:   norm,
		log:    zap.NewNop(),
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
		mint:   newLane[models.MintedRecord](LaneMint),
		burn:   newLane[models.BurnRecord](LaneBurn),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mount runs the fetch sequence and returns once both lanes settled.
// Only the first Mount or Start of a controller does anything.
func (c *Controller) Mount(ctx context.Context) {
	if c.begin(ctx) {
		c.run()
	}
}

// Start moves both lanes to Loading and fetches in the background.
func (c *Controller) Start(ctx context.Context) {
	if c.begin(ctx) {
		go c.run()
	}
}

// Done is closed when a started fetch sequence has finished.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Unmount cancels in-flight fetches. Results that arrive afterwards are dropped.
func (c *Controller) Unmount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted {
		return
	}
	c.unmounted = true
	if c.cancel != nil {
		c.cancel()
	}
	c.log.Debug("view unmounted")
}

func (c *Controller) Alive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.unmounted
}

// Snapshot reads both lanes at one instant: no transition lands between the two reads.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{Mint: c.mint.snapshot(), Burn: c.burn.snapshot()}
}

func (c *Controller) begin(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mounted || c.unmounted {
		return false
	}
	c.mounted = true
	c.ctx, c.cancel = context.WithCancel(ctx)
	now := c.now()
	c.mint.start(now)
	c.burn.start(now)
	return true
}

func (c *Controller) run() {
	defer close(c.done)
	defer c.cancel()
	ctx := c.ctx

	if c.fetchRootKey && !c.src.HasTrustRoot() {
		if err := c.src.FetchRootKey(ctx); err != nil {
			applied := c.settle(func(now time.Time) {
				c.mint.fail(err, now)
				c.burn.fail(err, now)
			})
			if !applied {
				c.log.Debug("dropped trust root failure of an unmounted view", zap.Error(err))
				return
			}
			c.log.Error("failed to establish trust root", zap.Error(err))
			c.metrics.observe(LaneMint, Failed, 0)
			c.metrics.observe(LaneBurn, Failed, 0)
			return
		}
	}

	mint := func() error {
		syncLane(ctx, c, c.mint, c.src.GetMintedTransactions, c.norm.NormalizeMints)
		return nil
	}
	burn := func() error {
		syncLane(ctx, c, c.burn, c.src.GetFinalizedTransactions, c.norm.NormalizeBurns)
		return nil
	}
	if !c.parallel {
		_ = mint()
		_ = burn()
		return
	}
	// lanes report their own failures, neither cancels the other
	var g errgroup.Group
	g.Go(mint)
	g.Go(burn)
	_ = g.Wait()
}

// settle applies a lane transition unless the view was unmounted.
func (c *Controller) settle(apply func(now time.Time)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted {
		return false
	}
	apply(c.now())
	return true
}

func syncLane[T any](ctx context.Context, c *Controller, l *lane[T],
	fetch func(context.Context) ([]string, error), normalize func([]string) ([]T, error)) {
	ctx, span := c.tracer.Start(ctx, "lane."+string(l.name))
	defer span.End()

	start := time.Now()
	raws, err := fetch(ctx)
	var records []T
	if err == nil {
		records, err = normalize(raws)
	}
	took := time.Since(start)

	state := Loaded
	if err != nil {
		state = Failed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("lane.state", state.String()), attribute.Int("lane.records", len(records)))

	applied := c.settle(func(now time.Time) {
		if err != nil {
			l.fail(err, now)
			return
		}
		l.load(records, now)
	})
	if !applied {
		c.log.Debug("dropped lane result of an unmounted view", zap.String("lane", string(l.name)))
		return
	}
	c.metrics.observe(l.name, state, took)
	if err != nil {
		c.log.Error("lane sync failed", zap.String("lane", string(l.name)), zap.Duration("took", took), zap.Error(err))
		return
	}
	c.log.Info("lane synced", zap.String("lane", string(l.name)), zap.Int("records", len(records)), zap.Duration("took", took))
}
