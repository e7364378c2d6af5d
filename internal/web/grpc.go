package web

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServiceName is the service reported by the gRPC health endpoint besides "".
const HealthServiceName = "yield_optimizer.Store"

// HealthServer exposes grpc.health.v1 for orchestrators that probe over gRPC.
type HealthServer struct {
	server *grpc.Server
	health *health.Server
}

func NewHealthServer() *HealthServer {
	hs := &HealthServer{
		server: grpc.NewServer(),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(hs.server, hs.health)
	hs.SetServing(true)
	return hs
}

// SetServing flips both the overall and the store service status.
func (hs *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_SERVING
	if !serving {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	hs.health.SetServingStatus("", status)
	hs.health.SetServingStatus(HealthServiceName, status)
}

// Serve blocks serving on lis until Stop is called.
func (hs *HealthServer) Serve(lis net.Listener) error {
	webLogger.Info().Str("addr", lis.Addr().String()).Msg("Starting gRPC health server")
	return hs.server.Serve(lis)
}

// Stop marks the service as not serving and stops the server gracefully.
func (hs *HealthServer) Stop() {
	hs.health.Shutdown()
	hs.server.GracefulStop()
}
