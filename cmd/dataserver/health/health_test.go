package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func startServer(t *testing.T, ping func(context.Context) error) (*Server, grpc_health_v1.HealthClient) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv := New(ping, time.Hour, logger)
	lis := bufconn.Listen(1024 * 1024)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return srv, grpc_health_v1.NewHealthClient(conn)
}

func check(t *testing.T, client grpc_health_v1.HealthClient, service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q) error = %v", service, err)
	}
	return resp.GetStatus()
}

func TestHealth_FollowsBackend(t *testing.T) {
	var healthy atomic.Bool
	srv, client := startServer(t, func(context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("backend down")
	})

	if got := check(t, client, ""); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("initial status = %v, want NOT_SERVING", got)
	}

	healthy.Store(true)
	srv.Probe(context.Background())
	for _, service := range []string{"", ServiceName} {
		if got := check(t, client, service); got != grpc_health_v1.HealthCheckResponse_SERVING {
			t.Errorf("Check(%q) = %v, want SERVING", service, got)
		}
	}

	healthy.Store(false)
	srv.Probe(context.Background())
	if got := check(t, client, ServiceName); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status after failure = %v, want NOT_SERVING", got)
	}
}

func TestHealth_RunProbesImmediately(t *testing.T) {
	probed := make(chan struct{}, 1)
	srv, client := startServer(t, func(context.Context) error {
		select {
		case probed <- struct{}{}:
		default:
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Run(ctx)
		close(done)
	}()

	select {
	case <-probed:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not probe")
	}

	deadline := time.Now().Add(5 * time.Second)
	for check(t, client, "") != grpc_health_v1.HealthCheckResponse_SERVING {
		if time.Now().After(deadline) {
			t.Fatal("status never became SERVING")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
