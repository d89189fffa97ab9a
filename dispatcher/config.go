package dispatcher

import (
	"fmt"
	"net"
	"time"

	"github.com/arvo-systems/chanhttp/api"
	"github.com/arvo-systems/chanhttp/control"
)

// Config holds the dispatcher's open-time settings (spec.md §4.F): the
// listen address and the WebSocket behavior configuration shared by
// every WS node it routes to.
type Config struct {
	ListenAddr string

	WSPayloadCap   int
	WSIdleTimeout  time.Duration
	WSBackpressure int

	CloseDrainTicks int

	Tracer  api.Tracer
	Metrics *control.Metrics
}

// DefaultConfig returns the defaults spec.md §4.F/§6 mandates.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:      "127.0.0.1:0",
		WSPayloadCap:    control.DefaultWSPayloadCap,
		WSIdleTimeout:   control.DefaultWSIdleTimeout,
		WSBackpressure:  control.DefaultWSBackpressure,
		CloseDrainTicks: control.DefaultCloseDrainTicks,
		Metrics:         control.NewMetrics(),
	}
}

// Option customizes a Dispatcher at construction, mirroring the
// teacher's functional-options convention (server.ServerOption).
type Option func(*Dispatcher)

// WithTracer overrides the dispatcher's structured logger.
func WithTracer(t api.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// WithWSPayloadCap overrides the per-frame payload cap.
func WithWSPayloadCap(n int) Option {
	return func(d *Dispatcher) { d.cfg.WSPayloadCap = n }
}

// WithWSIdleTimeout overrides the WebSocket idle timeout.
func WithWSIdleTimeout(d_ time.Duration) Option {
	return func(d *Dispatcher) { d.cfg.WSIdleTimeout = d_ }
}

// WithMetrics overrides the dispatcher's Prometheus counter set, e.g. to
// share one registry across several dispatchers in a host process.
func WithMetrics(m *control.Metrics) Option {
	return func(d *Dispatcher) { d.cfg.Metrics = m }
}

// parseListenAddr validates host:port, per spec.md §6's "parsing failure
// aborts open."
func parseListenAddr(addr string) error {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%w: %v", api.ErrBadListenAddr, err)
	}
	return nil
}
