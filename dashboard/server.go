// Package dashboard serves the minter explorer page. Every visit mounts its own view: a controller that
// fetches both lanes once, kept until it is closed or idles past the view TTL.
package dashboard

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/dungnh3/most-explorer/controller"
	"github.com/dungnh3/most-explorer/ledger"
	"github.com/dungnh3/most-explorer/repositories"
	"github.com/dungnh3/most-explorer/table"
)

//go:embed templates/*.html
var templateFS embed.FS

// ControllerFactory builds the controller of a new view.
type ControllerFactory func() *controller.Controller

// KeySource answers the public key endpoint.
type KeySource interface {
	PublicKey(ctx context.Context) (ledger.PublicKeyResult, error)
}

// StatusSource reports on the ledger host behind the views.
type StatusSource interface {
	Status(ctx context.Context) (*ledger.ReplicaStatus, error)
}

// View is one mounted dashboard.
type View struct {
	ID      string
	Created time.Time
	ctrl    *controller.Controller
}

func (v *View) Snapshot() controller.Snapshot {
	return v.ctrl.Snapshot()
}

type Server struct {
	newController ControllerFactory
	keys          KeySource
	status        StatusSource
	views         repositories.Repository[*View]

	pageSize int
	ttl      time.Duration
	log      *zap.Logger
	gatherer prometheus.Gatherer
	active   prometheus.Gauge
	tmpl     *template.Template
	now      func() time.Time

	// parent of every mount, outlives the request that created the view
	baseCtx context.Context
}

type Option func(*Server)

func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

func WithPageSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

func WithViewTTL(ttl time.Duration) Option {
	return func(s *Server) {
		s.ttl = ttl
	}
}

// WithRegistry registers the view gauge on reg and serves reg on /metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		if reg != nil {
			s.gatherer = reg
		}
	}
}

// WithStatusSource makes /readyz depend on the ledger host and its trust root.
func WithStatusSource(src StatusSource) Option {
	return func(s *Server) {
		s.status = src
	}
}

func WithRepository(repo repositories.Repository[*View]) Option {
	return func(s *Server) {
		if repo != nil {
			s.views = repo
		}
	}
}

func New(newController ControllerFactory, keys KeySource, opts ...Option) (*Server, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"inc": func(i int) int { return i + 1 },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	s := &Server{
		newController: newController,
		keys:          keys,
		views:         repositories.New[*View](),
		pageSize:      table.DefaultPageSize,
		ttl:           5 * time.Minute,
		log:           zap.NewNop(),
		gatherer:      prometheus.DefaultGatherer,
		tmpl:          tmpl,
		now:           time.Now,
		baseCtx:       context.Background(),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "most_explorer_views",
			Help: "Mounted dashboard views.",
		}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if reg, ok := s.gatherer.(prometheus.Registerer); ok {
		if err := reg.Register(s.active); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return nil, err
			}
			s.active = are.ExistingCollector.(prometheus.Gauge)
		}
	}
	return s, nil
}

// Handler routes every endpoint and traces inbound requests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.createView)
	mux.HandleFunc("GET /views/{id}", s.showView)
	mux.HandleFunc("GET /views/{id}/minted", s.mintedTable)
	mux.HandleFunc("GET /views/{id}/finalized", s.finalizedTable)
	mux.HandleFunc("DELETE /views/{id}", s.closeView)
	mux.HandleFunc("POST /views/{id}/close", s.closeView)
	mux.HandleFunc("GET /api/minter/public-key", s.publicKey)
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("GET /readyz", s.readyz)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return otelhttp.NewHandler(mux, "dashboard")
}

// Run serves on addr until ctx is done, then shuts down gracefully and unmounts every view.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.baseCtx = ctx
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.sweepLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("dashboard listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.closeAll()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Mount creates a view and starts its fetch sequence.
func (s *Server) Mount(ctx context.Context) (*View, error) {
	v := &View{
		ID:      uuid.NewString(),
		Created: s.now(),
		ctrl:    s.newController(),
	}
	if err := s.views.Put(ctx, v.ID, v); err != nil {
		return nil, err
	}
	v.ctrl.Start(s.baseCtx)
	s.active.Inc()
	s.log.Info("view mounted", zap.String("view", v.ID))
	return v, nil
}

// Unmount stops the view and forgets it.
func (s *Server) Unmount(ctx context.Context, id string) error {
	v, err := s.views.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.release(v, "closed")
	return nil
}

// Sweep unmounts every view not used within the TTL.
func (s *Server) Sweep(ctx context.Context) (int, error) {
	evicted, err := s.views.Sweep(ctx, s.now().Add(-s.ttl))
	for _, v := range evicted {
		s.release(v, "expired")
	}
	return len(evicted), err
}

func (s *Server) release(v *View, reason string) {
	v.ctrl.Unmount()
	s.active.Dec()
	s.log.Info("view unmounted", zap.String("view", v.ID), zap.String("reason", reason))
}

func (s *Server) sweepLoop(ctx context.Context) {
	if s.ttl <= 0 {
		return
	}
	interval := max(s.ttl/2, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.Sweep(ctx); err != nil {
				s.log.Warn("failed to sweep views", zap.Error(err))
			} else if n > 0 {
				s.log.Debug("swept idle views", zap.Int("count", n))
			}
		}
	}
}

func (s *Server) closeAll() {
	views, _ := s.views.Sweep(context.Background(), s.now().Add(time.Hour))
	for _, v := range views {
		s.release(v, "shutdown")
	}
}
