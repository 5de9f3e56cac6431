package handlers

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestServer_StartStop(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t)
	router := gin.New()
	router.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	s := NewServer(50061, 8091, router, logger, grpc.ChainUnaryInterceptor(LoggingInterceptor(logger)))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	// Give the server a moment to start.
	time.Sleep(200 * time.Millisecond)

	conn, err := grpc.NewClient(
		"localhost"+s.grpcEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to connect to gRPC server: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Errorf("health check failed: %v", err)
	} else if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING, got %v", resp.GetStatus())
	}
	conn.Close()

	httpResp, err := http.Get("http://localhost" + s.httpEndpoint + "/health")
	if err != nil {
		t.Errorf("HTTP health request failed: %v", err)
	} else {
		body, _ := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		if httpResp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"ok"`) {
			t.Errorf("unexpected health response %d %s", httpResp.StatusCode, body)
		}
	}

	s.Stop()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Server Start returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for server to stop")
	}

	// Verify that the gRPC server has stopped by attempting to listen on the same endpoint.
	lis, err := net.Listen("tcp", s.grpcEndpoint)
	if err != nil {
		t.Errorf("expected to be able to listen on %q after shutdown, but got error: %v", s.grpcEndpoint, err)
	} else {
		lis.Close()
	}
}
