package imapc

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/tacheron/imapc/imaperr"
	"github.com/tacheron/imapc/lalog"
)

// healthServer wraps the standard grpc_health_v1 service so a Connection can expose liveness to
// an operator's probe without them having to scrape logs, per the Domain Stack's health-endpoint
// entry.
type healthServer struct {
	logger *lalog.Logger
	srv    *grpc.Server
	health *health.Server
}

// startHealthServer listens on addr and serves grpc_health_v1, reporting SERVING immediately.
func startHealthServer(addr string, logger *lalog.Logger) (*healthServer, *imaperr.Error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, imaperr.New(imaperr.CannotConnect, "startHealthServer", "failed to listen on "+addr, err)
	}
	h := &healthServer{logger: logger, srv: grpc.NewServer(), health: health.NewServer()}
	healthpb.RegisterHealthServer(h.srv, h.health)
	h.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	go func() {
		if err := h.srv.Serve(lis); err != nil {
			logger.MaybeMinorError(err)
		}
	}()
	return h, nil
}

// markUnavailable flips the reported status to NOT_SERVING, called once the connection observes
// BYE or is explicitly closed.
func (h *healthServer) markUnavailable() {
	if h == nil {
		return
	}
	h.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
}

// stop gracefully shuts the health server down.
func (h *healthServer) stop() {
	if h == nil {
		return
	}
	h.srv.GracefulStop()
}
