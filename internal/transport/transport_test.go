package transport

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Harshitk-cp/sketchhive/internal/config"
	"github.com/Harshitk-cp/sketchhive/internal/health"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGRPCServer_Reports_Checker_Status(t *testing.T) {
	req := require.New(t)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)

	server := NewGRPCServer(discard(), config.GRPCConfig{Enabled: true})
	served := make(chan error, 1)
	go func() { served <- server.Serve(listener) }()
	t.Cleanup(func() {
		server.GracefulStop()
		<-served
	})

	conn, err := grpc.NewClient(listener.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	req.NoError(err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Given a server that has not been told the hub is up
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	req.NoError(err)
	req.Equal(healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	// When the checker reports degraded the service still serves
	server.SetStatus(health.StatusDegraded)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	req.NoError(err)
	req.Equal(healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	req.NoError(err)
	req.Equal(healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestHTTPServer_Applies_Middleware_In_Order(t *testing.T) {
	req := require.New(t)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, name)
	}
	tag := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				record(name)
				next.ServeHTTP(w, r)
			})
		}
	}

	server := NewHTTPServer(discard(), config.HTTPConfig{ReadTimeout: time.Second, WriteTimeout: time.Second},
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			record("handler")
			w.WriteHeader(http.StatusNoContent)
		}))
	server.Use(tag("outer"))
	server.Use(tag("inner"))

	served := make(chan error, 1)
	go func() { served <- server.Serve(listener) }()

	// Wait for Serve to install the server before shutting down
	var resp *http.Response
	req.Eventually(func() bool {
		resp, err = http.Get("http://" + listener.Addr().String() + "/")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	_ = resp.Body.Close()

	req.Equal(http.StatusNoContent, resp.StatusCode)
	mu.Lock()
	req.Equal([]string{"outer", "inner", "handler"}, order)
	mu.Unlock()

	req.NoError(server.Shutdown(context.Background()))
	req.NoError(<-served)
}
