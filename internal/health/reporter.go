// Package health exposes session readiness over the standard gRPC health
// protocol so orchestrators can check the daemon.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"sync"

	"github.com/ashureev/collabsync/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// SessionService is the health service name reporting sync readiness.
const SessionService = "collabsync.Session"

// retiredLimit bounds how many torn-down session ids are remembered.
const retiredLimit = 32

// Reporter flips SessionService between SERVING and NOT_SERVING as
// notifications arrive. The empty service name always reports the daemon
// itself as SERVING.
type Reporter struct {
	srv    *health.Server
	logger *slog.Logger

	mu      sync.Mutex
	retired []string
}

// NewReporter creates a reporter with the session marked NOT_SERVING.
func NewReporter(logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	srv := health.NewServer()
	srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	srv.SetServingStatus(SessionService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Reporter{srv: srv, logger: logger}
}

// Consume updates the session status from n. It matches notify.Sink.
// Notifications from a retired session are ignored; they may still be queued
// behind the teardown.
func (r *Reporter) Consume(_ context.Context, n domain.Notification) error {
	if r.isRetired(n.SessionID()) {
		return nil
	}
	switch n.Name {
	case domain.EventSynced:
		r.set(healthpb.HealthCheckResponse_SERVING)
	case domain.EventDisconnected, domain.EventError:
		r.set(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return nil
}

// Reset marks the session NOT_SERVING, used when the session is torn down.
func (r *Reporter) Reset() {
	r.set(healthpb.HealthCheckResponse_NOT_SERVING)
}

// Retire marks the session NOT_SERVING and ignores every later notification
// carrying sessionID. Call it before the session is replaced.
func (r *Reporter) Retire(sessionID string) {
	if sessionID != "" {
		r.mu.Lock()
		r.retired = append(r.retired, sessionID)
		if len(r.retired) > retiredLimit {
			r.retired = r.retired[len(r.retired)-retiredLimit:]
		}
		r.mu.Unlock()
	}
	r.Reset()
}

func (r *Reporter) isRetired(sessionID string) bool {
	if sessionID == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.retired, sessionID)
}

func (r *Reporter) set(status healthpb.HealthCheckResponse_ServingStatus) {
	r.srv.SetServingStatus(SessionService, status)
	r.logger.Debug("Session health updated", "status", status.String())
}

// Check returns the current status of service.
func (r *Reporter) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := r.srv.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Register installs the health service on s.
func (r *Reporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, r.srv)
}

// Serve listens on addr and serves the health service until ctx is done.
func (r *Reporter) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	s := grpc.NewServer()
	r.Register(s)

	go func() {
		<-ctx.Done()
		r.srv.Shutdown()
		s.GracefulStop()
	}()

	r.logger.Info("gRPC health listening", "addr", lis.Addr().String())
	if err := s.Serve(lis); err != nil {
		return fmt.Errorf("serve grpc health: %w", err)
	}
	return nil
}
