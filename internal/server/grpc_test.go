package server

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/magefree/tabletop-server-go/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

type flakyPinger struct{ down atomic.Bool }

func (p *flakyPinger) Ping(context.Context) error {
	if p.down.Load() {
		return errors.New("store unreachable")
	}
	return nil
}

func startGRPC(t *testing.T, h *Health) healthpb.HealthClient {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewGRPCServer(h, zaptest.NewLogger(t))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func checkStatus(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealthFollowsStore(t *testing.T) {
	p := &flakyPinger{}
	h := NewHealth(p, zaptest.NewLogger(t))
	client := startGRPC(t, h)

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkStatus(t, client, ServiceName))

	require.NoError(t, h.Check(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkStatus(t, client, ServiceName))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkStatus(t, client, ""))

	p.down.Store(true)
	assert.Error(t, h.Check(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkStatus(t, client, ServiceName))

	h.Shutdown()
	p.down.Store(false)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkStatus(t, client, ServiceName))
}

func TestInterceptors(t *testing.T) {
	logger := zaptest.NewLogger(t)
	chain := ChainUnaryInterceptors(RecoveryInterceptor(logger), LoggingInterceptor(logger))
	info := &grpc.UnaryServerInfo{FullMethod: "/tabletop.Sessions/Test"}

	_, err := chain(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))

	_, err = chain(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, game.NotFound("GetSession", "session %s not found", "s1")
	})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = chain(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, game.Busy("Execute", "busy")
	})
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	resp, err := chain(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) grpc.UnaryServerInterceptor {
		return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			order = append(order, name)
			return handler(ctx, req)
		}
	}
	chain := ChainUnaryInterceptors(mark("a"), mark("b"), mark("c"))
	_, err := chain(context.Background(), nil, &grpc.UnaryServerInfo{}, func(context.Context, any) (any, error) {
		order = append(order, "handler")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "handler"}, order)
}
