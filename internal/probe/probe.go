// Package probe runs the gRPC health service and its client.
package probe

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
)

// Service is the name reported for the web application as a whole.
const Service = "grandbridge"

// Pinger is whatever the probe checks on every tick, usually the database.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	grpc   *grpc.Server
	health *health.Server
	db     Pinger
	log    *zap.Logger
	every  time.Duration
}

func New(db Pinger, log *zap.Logger, every time.Duration, interceptors ...grpc.UnaryServerInterceptor) *Server {
	s := &Server{
		health: health.NewServer(),
		db:     db,
		log:    log,
		every:  every,
	}
	interceptors = append(interceptors, s.logCalls)
	s.grpc = grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus(Service, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

func (s *Server) logCalls(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := next(ctx, req)
	s.log.Debug("grpc", zap.String("method", info.FullMethod),
		zap.Duration("latency", time.Since(start)), zap.Error(err))
	return resp, err
}

// check updates the overall and application status from one database ping.
func (s *Server) check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := s.db.Ping(ctx); err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(Service, status)
	return status
}

// Serve listens on lis and refreshes health until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.check(ctx)
	go func() {
		t := time.NewTicker(s.every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.check(ctx)
			}
		}
	}()
	s.log.Info("grpc health listening", zap.String("addr", lis.Addr().String()))
	return s.grpc.Serve(lis)
}

func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// Check asks the health service at addr about service.
func Check(ctx context.Context, addr, service string, opts ...grpc.DialOption) (*healthpb.HealthCheckResponse, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	return healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
}

// Format renders a health response as JSON.
func Format(res *healthpb.HealthCheckResponse) (string, error) {
	b, err := protojson.MarshalOptions{UseProtoNames: true}.Marshal(res)
	return string(b), err
}
