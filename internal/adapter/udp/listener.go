// Package udp receives contact datagrams broadcast by the logging software.
package udp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/couchcryptid/qso-map-service/internal/domain"
	"github.com/couchcryptid/qso-map-service/internal/observability"
	"github.com/couchcryptid/qso-map-service/internal/queue"
)

// DefaultAddr is the address QARTest broadcasts contacts to.
const DefaultAddr = "[::]:12060"

// maxDatagramSize is the receive buffer; longer datagrams are truncated and
// then fail to decode.
const maxDatagramSize = 8192

// Sink accepts decoded records. CloseSend tells the consumer no more will come.
type Sink interface {
	Push(r domain.ContactRecord) error
	CloseSend()
}

// Listener reads datagrams from a UDP socket, decodes each into a contact
// record, and forwards it to the sink.
type Listener struct {
	addr    string
	sink    Sink
	logger  *slog.Logger
	metrics *observability.Metrics

	mu    sync.Mutex
	bound net.Addr
}

// NewListener creates a Listener for addr.
func NewListener(addr string, sink Sink, logger *slog.Logger, metrics *observability.Metrics) *Listener {
	if addr == "" {
		addr = DefaultAddr
	}
	return &Listener{
		addr:    addr,
		sink:    sink,
		logger:  logger,
		metrics: metrics,
	}
}

// LocalAddr returns the bound socket address, or nil before binding.
func (l *Listener) LocalAddr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bound
}

// CheckReadiness returns nil once the socket is bound.
func (l *Listener) CheckReadiness(_ context.Context) error {
	if l.LocalAddr() == nil {
		return errors.New("ingestion socket not bound")
	}
	return nil
}

// Run binds the socket and forwards records until ctx ends or the sink
// refuses them. The sink's producer side is closed on return; a panic leaves
// it open so a restarted listener can carry on.
// A bind failure wraps domain.ErrBind; cancellation returns ctx.Err().
func (l *Listener) Run(ctx context.Context) error {
	err := l.serve(ctx)
	l.sink.CloseSend()
	return err
}

func (l *Listener) serve(ctx context.Context) error {
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp", l.addr)
	if err != nil {
		return fmt.Errorf("%w %s: %w", domain.ErrBind, l.addr, err)
	}
	defer conn.Close()

	l.setBound(conn.LocalAddr())
	defer l.setBound(nil)
	l.logger.Info("listening for contacts", "addr", conn.LocalAddr().String())

	// Closing the socket is the only way to unblock ReadFrom.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	buf := make([]byte, maxDatagramSize)
	for {
		n, src, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info("listener stopping", "reason", ctx.Err())
				return ctx.Err()
			}
			return fmt.Errorf("read datagram: %w", err)
		}
		if err := l.handle(buf[:n], src); err != nil {
			return err
		}
	}
}

// handle decodes one datagram. Malformed input is logged and dropped; only a
// closed sink is returned.
func (l *Listener) handle(payload []byte, src net.Addr) error {
	l.metrics.DatagramsReceived.Inc()

	record, err := domain.ParseContactRecord(payload)
	if err != nil {
		l.metrics.DatagramsMalformed.Inc()
		l.logger.Warn("discarding malformed datagram",
			"size", len(payload),
			"source", addrString(src),
			"error", err,
		)
		return nil
	}

	if err := l.sink.Push(record); err != nil {
		if errors.Is(err, queue.ErrClosed) {
			l.logger.Error("enricher gone, listener stopping", "call", record.Call)
		}
		return fmt.Errorf("forward %s: %w", record.Call, err)
	}
	l.metrics.ContactsQueued.Inc()
	l.logger.Debug("contact received", "contact", record.String(), "source", addrString(src))
	return nil
}

func (l *Listener) setBound(a net.Addr) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bound = a
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
