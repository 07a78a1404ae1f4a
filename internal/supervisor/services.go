package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/couchcryptid/qso-map-service/internal/pipeline"
)

// finish maps a stage's return into suture's restart semantics. A stage that
// returns on its own is done for good; only panics are restarted.
func finish(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		return suture.ErrDoNotRestart
	}
	return fmt.Errorf("%w: %w", suture.ErrDoNotRestart, err)
}

// Listener is satisfied by *udp.Listener.
type Listener interface {
	Run(ctx context.Context) error
}

// ListenerService runs the ingestion socket.
type ListenerService struct {
	listener Listener
}

// NewListenerService wraps l.
func NewListenerService(l Listener) *ListenerService {
	return &ListenerService{listener: l}
}

// Serve implements suture.Service.
func (s *ListenerService) Serve(ctx context.Context) error {
	return finish(ctx, s.listener.Run(ctx))
}

func (s *ListenerService) String() string { return "udp-listener" }

// Enricher is satisfied by *pipeline.Enricher.
type Enricher interface {
	Run(ctx context.Context, source pipeline.RecordSource) error
}

// Source is the consumer side of the ingestion queue.
type Source interface {
	pipeline.RecordSource
	CloseRecv()
}

// Closer is the producer side of the hub.
type Closer interface {
	Close()
}

// EnricherService runs the enricher. When it stops the ingestion queue is
// closed from the consumer side and the hub from the producer side, so the
// listener and every subscriber see the end instead of stalling.
type EnricherService struct {
	enricher Enricher
	source   Source
	hub      Closer
}

// NewEnricherService wraps e, reading from source and owning hub.
func NewEnricherService(e Enricher, source Source, hub Closer) *EnricherService {
	return &EnricherService{enricher: e, source: source, hub: hub}
}

// Serve implements suture.Service. A panic skips the close so the restarted
// enricher resumes on the same queue and hub.
func (s *EnricherService) Serve(ctx context.Context) error {
	err := s.enricher.Run(ctx, s.source)
	s.source.CloseRecv()
	s.hub.Close()
	return finish(ctx, err)
}

func (s *EnricherService) String() string { return "enricher" }

// HTTPServer is satisfied by *http.Server from the http adapter.
type HTTPServer interface {
	Run(ctx context.Context, timeout time.Duration) error
}

// HTTPService runs the HTTP server.
type HTTPService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPService wraps srv.
func NewHTTPService(srv HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	return &HTTPService{server: srv, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service.
func (s *HTTPService) Serve(ctx context.Context) error {
	return finish(ctx, s.server.Run(ctx, s.shutdownTimeout))
}

func (s *HTTPService) String() string { return "http-server" }

// Mirror is satisfied by *kafka.Mirror.
type Mirror interface {
	Run(ctx context.Context) error
}

// MirrorService runs the Kafka mirror subscriber.
type MirrorService struct {
	mirror Mirror
}

// NewMirrorService wraps m.
func NewMirrorService(m Mirror) *MirrorService {
	return &MirrorService{mirror: m}
}

// Serve implements suture.Service.
func (s *MirrorService) Serve(ctx context.Context) error {
	return finish(ctx, s.mirror.Run(ctx))
}

func (s *MirrorService) String() string { return "kafka-mirror" }
