package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/efritz/glock"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apihttp "github.com/GriffinCanCode/ironclad/backend/internal/api/http"
	"github.com/GriffinCanCode/ironclad/backend/internal/api/middleware"
	"github.com/GriffinCanCode/ironclad/backend/internal/domain/users"
	"github.com/GriffinCanCode/ironclad/backend/internal/events"
	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/chaos"
	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/grpchealth"
	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/ironclad/backend/internal/store"
)

// Version is reported in every log entry. Set at build time.
var Version = "1.0.0"

// BreakerName names the data store breaker in metrics, events and gRPC health
const BreakerName = "datastore"

// Options overrides collaborators. Zero values build everything from the config.
type Options struct {
	Clock         glock.Clock
	Logger        *logging.Logger
	Store         store.Store
	TraceExporter sdktrace.SpanExporter
}

// Server wraps the HTTP server and dependencies
type Server struct {
	config     *config.Config
	logger     *logging.Logger
	router     *gin.Engine
	handler    http.Handler
	http       *http.Server
	store      store.Store
	guarded    *store.Guarded
	breaker    *resilience.Breaker
	chaos      *chaos.Controller
	metrics    *monitoring.Metrics
	objectives *monitoring.ObjectiveSet
	tracer     *tracing.Provider
	hub        *events.Hub
	health     *grpchealth.Server
}

// New creates a new server instance
func New(cfg *config.Config, opts Options) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = glock.NewRealClock()
	}

	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
			Service:     cfg.Tracing.ServiceName,
			Version:     Version,
			Environment: cfg.Server.Environment,
		})
		if err != nil {
			return nil, fmt.Errorf("create logger: %w", err)
		}
	}

	logger.Info("Initializing server",
		zap.String("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Driver),
		zap.String("sli_calculator", cfg.SLO.Calculator),
	)

	objectives := monitoring.DefaultObjectives()
	if cfg.SLO.ObjectivesFile != "" {
		loaded, err := monitoring.LoadObjectives(cfg.SLO.ObjectivesFile)
		if err != nil {
			return nil, err
		}
		objectives = loaded
	}
	objectiveSet := monitoring.NewObjectiveSet(objectives)

	window := monitoring.NewWindow(opts.Clock, cfg.SLO.Window, cfg.SLO.MaxSamples)
	var calculator monitoring.SLICalculator = monitoring.StaticSLIs{Values: monitoring.DefaultStaticSLIs}
	if cfg.SLO.Calculator == "window" {
		calculator = monitoring.NewWindowedSLIs(window, objectiveSet)
	}
	metrics := monitoring.NewMetrics(monitoring.Options{
		Calculator: calculator,
		Window:     window,
		Clock:      opts.Clock,
	})

	tracer, err := tracing.New(tracing.Options{
		ServiceName: cfg.Tracing.ServiceName,
		Stdout:      cfg.Tracing.Stdout,
		Exporter:    opts.TraceExporter,
	})
	if err != nil {
		return nil, err
	}

	hub := events.NewHub(opts.Clock, events.DefaultBuffer)

	var health *grpchealth.Server
	if cfg.GRPC.HealthEnabled {
		health = grpchealth.New(logger.Logger)
	}

	breaker := resilience.New(BreakerName, resilience.Settings{
		FailureThreshold:         cfg.Breaker.FailureThreshold,
		ResetTimeout:             cfg.Breaker.ResetTimeout,
		HalfOpenSuccessThreshold: cfg.Breaker.HalfOpenSuccessThreshold,
		Timeout:                  cfg.Breaker.CallTimeout,
		IsFailure:                store.IsFailure,
		Clock:                    opts.Clock,
		OnStateChange:            breakerListeners(logger.Logger, metrics, hub, health),
	})
	metrics.RegisterBreaker(breaker)
	if health != nil {
		health.Track(breaker)
	}

	ctrl := chaos.New(chaos.Options{
		Clock:    opts.Clock,
		Logger:   logger.Logger,
		Observer: metrics,
		OnChange: hub.ChaosConfigChanged,
	})

	raw := opts.Store
	if raw == nil {
		raw, err = store.Open(cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
		}
	}
	if pooled, ok := raw.(interface{ PoolStats() monitoring.PoolStats }); ok {
		metrics.RegisterPool(pooled.PoolStats)
	}
	guarded := store.NewGuarded(raw, breaker, tracer.Tracer("store"), metrics)

	handlers := apihttp.NewHandlers(apihttp.Deps{
		Store:      guarded,
		Chaos:      ctrl,
		Metrics:    metrics,
		Objectives: objectiveSet,
		Users:      users.NewRepository(guarded, opts.Clock),
		Validator:  users.NewValidator(opts.Clock.Now),
		Logger:     logger.Logger,
		Clock:      opts.Clock,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Order matters: metrics wraps recovery so a panic is still counted as a
	// 500, and the chaos gates run inside metrics so injected failures are too.
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger.Logger))
	if cfg.Tracing.Enabled {
		router.Use(tracing.HTTPMiddleware(tracer)...)
	}
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.Recovery(logger.Logger))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	// /api is gated inside its group so the rate limiter sees every request
	// before chaos can fail it.
	globalExempt := append(append([]string(nil), cfg.Chaos.ExemptPaths...), "/api")
	router.Use(chaos.Middleware(ctrl, globalExempt))

	var apiMiddleware []gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("max", cfg.RateLimit.Max),
			zap.Duration("window", cfg.RateLimit.Window),
		)
		apiMiddleware = append(apiMiddleware, middleware.RateLimit(middleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}))
	}
	apiMiddleware = append(apiMiddleware, chaos.Middleware(ctrl, cfg.Chaos.ExemptPaths))
	handlers.RegisterRoutes(router, apiMiddleware...)
	router.GET("/events", events.NewHandler(hub, logger.Logger).HandleConnection)

	s := &Server{
		config:     cfg,
		logger:     logger,
		router:     router,
		handler:    compress(router),
		store:      raw,
		guarded:    guarded,
		breaker:    breaker,
		chaos:      ctrl,
		metrics:    metrics,
		objectives: objectiveSet,
		tracer:     tracer,
		hub:        hub,
		health:     health,
	}
	s.http = &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler: s.handler,
	}
	s.http.RegisterOnShutdown(hub.Close)

	logger.Info("Server initialized successfully")
	return s, nil
}

// breakerListeners fans a breaker transition out to every observer. It runs
// under the breaker lock; every listener only records or enqueues.
func breakerListeners(logger *zap.Logger, metrics *monitoring.Metrics, hub *events.Hub, health *grpchealth.Server) func(string, resilience.State, resilience.State) {
	return func(name string, from, to resilience.State) {
		logger.Warn("Circuit breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		metrics.BreakerStateChanged(name, from, to)
		hub.BreakerStateChanged(name, from, to)
		if health != nil {
			health.BreakerStateChanged(name, from, to)
		}
	}
}

// compress gzips responses for clients that accept it. WebSocket upgrades
// bypass it since they need the raw connection.
func compress(next http.Handler) http.Handler {
	gz := gzhttp.GzipHandler(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}
		gz.ServeHTTP(w, r)
	})
}

// Handler returns the complete HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Breaker returns the data store circuit breaker
func (s *Server) Breaker() *resilience.Breaker {
	return s.breaker
}

// Chaos returns the chaos controller
func (s *Server) Chaos() *chaos.Controller {
	return s.chaos
}

// Metrics returns the metrics registry
func (s *Server) Metrics() *monitoring.Metrics {
	return s.metrics
}

// Events returns the event hub
func (s *Server) Events() *events.Hub {
	return s.hub
}

// Run serves until ctx is cancelled, then shuts down gracefully and releases
// every resource. It returns nil after a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	lis, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return errors.Join(fmt.Errorf("listen %s: %w", s.http.Addr, err), s.Close())
	}

	g.Go(func() error {
		s.logger.Info("Server started",
			zap.String("addr", lis.Addr().String()),
			zap.String("environment", s.config.Server.Environment),
			zap.Int("pid", os.Getpid()),
		)
		if err := s.http.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Starting graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		s.logger.Info("HTTP server closed")
		return nil
	})

	if s.health != nil {
		addr := net.JoinHostPort(s.config.Server.Host, s.config.GRPC.HealthPort)
		g.Go(func() error {
			return s.health.Serve(gctx, addr)
		})
	}

	if path := s.config.SLO.ObjectivesFile; path != "" && s.config.SLO.Watch {
		g.Go(func() error {
			return monitoring.WatchObjectives(gctx, path, s.objectives, s.logger.Logger)
		})
	}

	err = g.Wait()
	return errors.Join(err, s.Close())
}

// Close releases the store, flushes spans and syncs the logger
func (s *Server) Close() error {
	var errs []error

	s.hub.Close()
	if err := s.store.Close(); err != nil {
		s.logger.Error("Failed to close store", zap.Error(err))
		errs = append(errs, fmt.Errorf("close store: %w", err))
	} else {
		s.logger.Info("Database connections closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	if err := s.tracer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush traces: %w", err))
	}

	_ = s.logger.Sync()
	return errors.Join(errs...)
}
