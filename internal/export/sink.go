package export

import (
	"context"
	"errors"

	"github.com/starford/questline/internal/models"
)

// Sink receives every successful export bundle.
type Sink interface {
	Deliver(ctx context.Context, b models.Bundle) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, b models.Bundle) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, b models.Bundle) error {
	return f(ctx, b)
}

// MultiSink delivers to every sink in order and joins their errors.
type MultiSink []Sink

// Deliver implements Sink.
func (m MultiSink) Deliver(ctx context.Context, b models.Bundle) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
