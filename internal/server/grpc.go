package server

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
)

// ServiceName is the health service name reported for the session store.
const ServiceName = "tabletop.Sessions"

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health mirrors store reachability into the gRPC health service.
type Health struct {
	server *health.Server
	pinger Pinger
	logger *zap.Logger

	mu      sync.Mutex
	serving bool
}

// NewHealth starts out NOT_SERVING until the first successful Check.
func NewHealth(pinger Pinger, logger *zap.Logger) *Health {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Health{server: health.NewServer(), pinger: pinger, logger: logger}
	h.set(false)
	return h
}

// Check pings the store and updates the reported status.
func (h *Health) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err := h.pinger.Ping(ctx)
	h.set(err == nil)
	return err
}

// Shutdown reports NOT_SERVING for good.
func (h *Health) Shutdown() {
	h.server.Shutdown()
}

func (h *Health) set(serving bool) {
	h.mu.Lock()
	changed := h.serving != serving
	h.serving = serving
	h.mu.Unlock()

	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.server.SetServingStatus("", st)
	h.server.SetServingStatus(ServiceName, st)
	if changed {
		h.logger.Info("health status changed", zap.String("status", st.String()))
	}
}

// NewGRPCServer builds the gRPC server with the health service registered.
func NewGRPCServer(h *Health, logger *zap.Logger) *grpc.Server {
	srv := grpc.NewServer(
		grpc.UnaryInterceptor(ChainUnaryInterceptors(
			RecoveryInterceptor(logger),
			LoggingInterceptor(logger),
		)),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    30 * time.Second,
			Timeout: 10 * time.Second,
		}),
	)
	healthpb.RegisterHealthServer(srv, h.server)
	return srv
}

// ChainUnaryInterceptors runs interceptors in order, outermost first.
func ChainUnaryInterceptors(interceptors ...grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		chained := handler
		for i := len(interceptors) - 1; i >= 0; i-- {
			next, interceptor := chained, interceptors[i]
			chained = func(ctx context.Context, req any) (any, error) {
				return interceptor(ctx, req, info, next)
			}
		}
		return chained(ctx, req)
	}
}

// RecoveryInterceptor turns handler panics into Internal errors.
func RecoveryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in grpc handler",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// LoggingInterceptor logs every call and converts session errors to gRPC
// status codes.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		err = toStatus(err)
		logger.Debug("grpc request",
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
			zap.String("code", status.Code(err).String()),
		)
		return resp, err
	}
}
