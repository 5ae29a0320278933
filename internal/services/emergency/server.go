package emergency

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/egress/internal/platform/timeouts"
	"github.com/louisbranch/egress/internal/services/emergency/app"
	"github.com/louisbranch/egress/internal/services/emergency/facility"
	"github.com/louisbranch/egress/internal/services/emergency/integration/natsbus"
	"github.com/louisbranch/egress/internal/services/emergency/integration/redisfeed"
	emergencysqlite "github.com/louisbranch/egress/internal/services/emergency/storage/sqlite"
	"github.com/louisbranch/egress/internal/services/emergency/transport/httpapi"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the gRPC health service name reported while the monitor
// loop runs.
const HealthService = "emergency.coordinator"

// Config defines the inputs for the coordinator process.
type Config struct {
	HTTPAddr string
	GRPCAddr string
	DBPath   string
	// FacilityPath points at a YAML floor plan; empty uses the embedded sample.
	FacilityPath string
	NATS         natsbus.Config
	Redis        redisfeed.Config
	Coordinator  app.Config

	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the coordinator with its HTTP and gRPC surfaces.
type Server struct {
	coordinator     *app.Coordinator
	store           *emergencysqlite.Store
	bus             *natsbus.Client
	feed            *redisfeed.Feed
	httpListener    net.Listener
	httpServer      *http.Server
	grpcListener    net.Listener
	grpcServer      *grpc.Server
	health          *health.Server
	shutdownTimeout time.Duration
}

// NewServer loads the facility, opens the journal, connects the optional
// transports and builds the coordinator. Nothing runs until Serve.
func NewServer(ctx context.Context, cfg Config) (*Server, error) {
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = timeouts.Shutdown
	}
	if err := cfg.Coordinator.Validate(); err != nil {
		return nil, fmt.Errorf("coordinator config: %w", err)
	}

	graph, err := loadFacility(cfg.FacilityPath)
	if err != nil {
		return nil, err
	}
	directory, err := graph.Plan().Directory()
	if err != nil {
		return nil, fmt.Errorf("facility contacts: %w", err)
	}
	log.Printf("facility %q loaded: %d areas", graph.Name(), len(graph.Areas()))

	s := &Server{shutdownTimeout: cfg.ShutdownTimeout}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	s.store, err = openStore(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	deps := app.Deps{
		Graph:    graph,
		Contacts: directory,
		Journal:  s.store,
	}

	if strings.TrimSpace(cfg.NATS.URL) != "" {
		s.bus, err = natsbus.Connect(cfg.NATS)
		if err != nil {
			return nil, err
		}
		deps.Dispatcher = s.bus
		deps.Broadcaster = s.bus
	} else {
		log.Printf("nats not configured: alerts and dispatches go to the log")
	}
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		s.feed, err = redisfeed.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		deps.StatusFeed = s.feed
	} else {
		log.Printf("redis not configured: contact statuses change only through the operator API")
	}

	s.coordinator, err = app.New(cfg.Coordinator, deps)
	if err != nil {
		return nil, fmt.Errorf("build coordinator: %w", err)
	}

	s.httpListener, err = net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
	}
	s.httpServer = &http.Server{
		Handler:           httpapi.NewHandler(s.coordinator, s.store),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	s.grpcListener, err = net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.GRPCAddr, err)
	}
	s.grpcServer = grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	s.health = health.NewServer()
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	ok = true
	return s, nil
}

// Run creates and serves a coordinator until the context ends.
func Run(ctx context.Context, cfg Config) error {
	server, err := NewServer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init coordinator server: %w", err)
	}
	defer server.Close()
	return server.Serve(ctx)
}

// HTTPAddr returns the operator API listener address.
func (s *Server) HTTPAddr() string {
	if s == nil || s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// GRPCAddr returns the health listener address.
func (s *Server) GRPCAddr() string {
	if s == nil || s.grpcListener == nil {
		return ""
	}
	return s.grpcListener.Addr().String()
}

// Coordinator returns the coordinator the server drives.
func (s *Server) Coordinator() *app.Coordinator {
	return s.coordinator
}

// Serve starts the monitor loop and every listener, and blocks until ctx
// ends or one of them fails.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	if s.bus != nil {
		if err := s.bus.SubscribeReports(ctx, s.coordinator); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	if s.coordinator.Start(ctx) {
		s.health.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_SERVING)
	}
	if s.feed != nil {
		g.Go(func() error {
			if err := s.feed.Listen(ctx, s.coordinator); err != nil {
				log.Printf("contact status listener stopped: %v", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		log.Printf("operator api listening on %s", s.HTTPAddr())
		if err := s.httpServer.Serve(s.httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Printf("grpc health listening on %s", s.GRPCAddr())
		if err := s.grpcServer.Serve(s.grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve grpc: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.health.Shutdown()
		s.coordinator.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		s.grpcServer.GracefulStop()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
	for _, listener := range []net.Listener{s.httpListener, s.grpcListener} {
		if listener != nil {
			_ = listener.Close()
		}
	}
	if s.coordinator != nil {
		s.coordinator.Close()
	}
	if s.bus != nil {
		s.bus.Close()
	}
	if s.feed != nil {
		if err := s.feed.Close(); err != nil {
			log.Printf("close redis feed: %v", err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close journal store: %v", err)
		}
	}
}

func loadFacility(path string) (*facility.Graph, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		graph, err := facility.Sample()
		if err != nil {
			return nil, fmt.Errorf("load sample facility: %w", err)
		}
		return graph, nil
	}
	graph, err := facility.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load facility %s: %w", path, err)
	}
	return graph, nil
}

func openStore(ctx context.Context, path string) (*emergencysqlite.Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = filepath.Join("data", "coordinator.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := emergencysqlite.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open journal sqlite store: %w", err)
	}
	return store, nil
}
