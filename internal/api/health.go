package api

import (
	"Go2NetAccounting/internal/model"

	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported next to the overall status.
const ServiceName = "ns.accounting"

// Health tracks cycle outcomes and publishes them through the gRPC health protocol.
// It reports SERVING after a successful cycle and NOT_SERVING once threshold
// consecutive cycles have failed.
type Health struct {
	server      *health.Server
	threshold   int32
	consecutive atomic.Int32
	serving     atomic.Bool
}

// NewHealth creates a Health that starts NOT_SERVING until the first successful cycle.
func NewHealth(threshold int) *Health {
	if threshold < 1 {
		threshold = 1
	}
	h := &Health{server: health.NewServer(), threshold: int32(threshold)}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// ObserveCycle implements model.CycleObserver.
func (h *Health) ObserveCycle(result model.CycleResult) {
	if result.Err == nil {
		h.consecutive.Store(0)
		if !h.serving.Load() {
			log.Info("Health status changed to SERVING")
		}
		h.set(healthpb.HealthCheckResponse_SERVING)
		return
	}

	failures := h.consecutive.Inc()
	if failures >= h.threshold && h.serving.Load() {
		log.Warnf("Health status changed to NOT_SERVING after %d consecutive failed cycles", failures)
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	}
}

// Healthy reports whether the service is currently SERVING.
func (h *Health) Healthy() bool {
	return h.serving.Load()
}

// Register adds the health service to a gRPC server.
func (h *Health) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Shutdown marks every service NOT_SERVING for the rest of the process lifetime.
func (h *Health) Shutdown() {
	h.serving.Store(false)
	h.server.Shutdown()
}

func (h *Health) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.serving.Store(status == healthpb.HealthCheckResponse_SERVING)
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ServiceName, status)
}
