package grpc

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const coordinatorService = "emergency.coordinator"

func TestWaitForHealthServing(t *testing.T) {
	addr, _, stop := startHealthServer(t, grpc_health_v1.HealthCheckResponse_SERVING)
	defer stop()

	conn := dialHealthServer(t, addr)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := WaitForHealth(ctx, conn, coordinatorService, nil); err != nil {
		t.Fatalf("wait for health: %v", err)
	}
}

// The runtime reports the process as serving at once but holds the
// coordinator service NOT_SERVING until the monitor loop has started.
func TestWaitForHealthFollowsCoordinatorService(t *testing.T) {
	addr, healthServer, stop := startHealthServer(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	defer stop()
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	conn := dialHealthServer(t, addr)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := WaitForHealth(ctx, conn, "", nil); err != nil {
		t.Fatalf("wait for process health: %v", err)
	}

	early, cancelEarly := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancelEarly()
	if err := WaitForHealth(early, conn, coordinatorService, nil); err == nil {
		t.Fatal("coordinator reported healthy before monitor start")
	}

	waits := 0
	go func() {
		time.Sleep(200 * time.Millisecond)
		healthServer.SetServingStatus(coordinatorService, grpc_health_v1.HealthCheckResponse_SERVING)
	}()
	logf := func(format string, _ ...any) {
		if strings.HasPrefix(format, "waiting") {
			waits++
		}
	}
	if err := WaitForHealth(ctx, conn, coordinatorService, logf); err != nil {
		t.Fatalf("wait for coordinator health: %v", err)
	}
	if waits == 0 {
		t.Fatal("expected not-serving attempts to be logged before transition")
	}
}

func TestWaitForHealthRespectsContext(t *testing.T) {
	addr, _, stop := startHealthServer(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	defer stop()

	conn := dialHealthServer(t, addr)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if err := WaitForHealth(ctx, conn, coordinatorService, nil); err == nil {
		t.Fatal("expected context error, got nil")
	}
}

// startHealthServer serves the health service with both the process ("")
// and coordinator entries set to status.
func startHealthServer(t *testing.T, status grpc_health_v1.HealthCheckResponse_ServingStatus) (string, *health.Server, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	grpcServer := gogrpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", status)
	healthServer.SetServingStatus(coordinatorService, status)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()

	stop := func() {
		grpcServer.GracefulStop()
		_ = listener.Close()
		select {
		case <-serveErr:
		case <-time.After(2 * time.Second):
		}
	}

	return listener.Addr().String(), healthServer, stop
}

func dialHealthServer(t *testing.T, addr string) *gogrpc.ClientConn {
	t.Helper()

	conn, err := gogrpc.NewClient(
		addr,
		gogrpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial health server: %v", err)
	}

	return conn
}
