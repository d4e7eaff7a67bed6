// Package health tracks whether the classification service is reachable and
// publishes it through the standard gRPC health service.
package health

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/banshee-data/gait.report/internal/classifier"
	"github.com/banshee-data/gait.report/internal/timeutil"
)

// Service is the name the classifier status is published under.
const Service = "gait.classifier"

// Status is the reachability of the classification service. LastError also
// records rejected or malformed answers, which leave Serving set.
type Status struct {
	Serving   bool      `json:"serving"`
	LastError string    `json:"last_error,omitempty"`
	Since     time.Time `json:"since"`
	Failures  int       `json:"consecutive_failures"`
}

// Reporter turns call outcomes into a serving status. It starts NOT_SERVING
// and flips on the first successful call.
type Reporter struct {
	srv   *grpchealth.Server
	clock timeutil.Clock

	mu     sync.Mutex
	status Status
}

func NewReporter(clock timeutil.Clock) *Reporter {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	r := &Reporter{
		srv:    grpchealth.NewServer(),
		clock:  clock,
		status: Status{Since: clock.Now()},
	}
	r.srv.SetServingStatus(Service, healthpb.HealthCheckResponse_NOT_SERVING)
	return r
}

// answered reports whether err is the service's own reply rather than a
// failure to reach it.
func answered(err error) bool {
	return errors.Is(err, classifier.ErrRejected) || errors.Is(err, classifier.ErrMalformed)
}

// Observe records the outcome of one call to the service. A rejected or
// malformed reply still shows the service is up. Context cancellation says
// nothing about the service and is ignored.
func (r *Reporter) Observe(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	serving := err == nil || answered(err)
	if serving {
		r.status.Failures = 0
	} else {
		r.status.Failures++
	}
	if err != nil {
		r.status.LastError = err.Error()
	} else {
		r.status.LastError = ""
	}
	if serving == r.status.Serving {
		return
	}
	r.status.Serving = serving
	r.status.Since = r.clock.Now()

	if serving {
		log.Printf("classification service reachable")
		r.srv.SetServingStatus(Service, healthpb.HealthCheckResponse_SERVING)
	} else {
		log.Printf("classification service unreachable: %v", err)
		r.srv.SetServingStatus(Service, healthpb.HealthCheckResponse_NOT_SERVING)
	}
}

// Status returns the current status.
func (r *Reporter) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Register adds the health service to s.
func (r *Reporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, r.srv)
}

// Serve runs a gRPC server with the health and reflection services on lis
// until ctx is done, then stops it gracefully.
func (r *Reporter) Serve(ctx context.Context, lis net.Listener) error {
	s := grpc.NewServer()
	r.Register(s)
	reflection.Register(s)

	errc := make(chan error, 1)
	go func() {
		errc <- s.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		r.srv.Shutdown()
		s.GracefulStop()
		<-errc
		return nil
	case err := <-errc:
		return fmt.Errorf("grpc health server: %w", err)
	}
}

// ListenAndServe listens on addr and calls Serve.
func (r *Reporter) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	log.Printf("grpc health service listening on %s", lis.Addr())
	return r.Serve(ctx, lis)
}
