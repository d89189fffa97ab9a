// Package control holds the ambient stack shared by every other package:
// logging, structured errors, metrics, HTTP status text, and config parsing.
// None of it is wire-protocol specific.
package control

import (
	"log"
	"os"

	"github.com/arvo-systems/chanhttp/api"
)

// StdTracer wraps the standard library logger, prefixed per subsystem, the
// way the teacher framework logs (no zap/zerolog dependency anywhere in
// that stack either).
type StdTracer struct {
	logger *log.Logger
	prefix string
}

// NewStdTracer builds a tracer writing to stderr with the given subsystem
// prefix, e.g. NewStdTracer("dispatcher").
func NewStdTracer(prefix string) *StdTracer {
	return &StdTracer{
		logger: log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds),
		prefix: prefix,
	}
}

var _ api.Tracer = (*StdTracer)(nil)

func (t *StdTracer) Debugf(format string, args ...any) {
	t.logger.Printf(t.prefix+": DEBUG "+format, args...)
}

func (t *StdTracer) Infof(format string, args ...any) {
	t.logger.Printf(t.prefix+": "+format, args...)
}

func (t *StdTracer) Errorf(format string, args ...any) {
	t.logger.Printf(t.prefix+": ERROR "+format, args...)
}

// noopTracer discards everything; used as a safe zero-value default.
type noopTracer struct{}

func (noopTracer) Debugf(string, ...any) {}
func (noopTracer) Infof(string, ...any)  {}
func (noopTracer) Errorf(string, ...any) {}

// NoopTracer is a Tracer that discards all output.
var NoopTracer api.Tracer = noopTracer{}
