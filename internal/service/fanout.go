package service

import (
	"context"
	"errors"

	"fixture-edge/internal/domain"
)

// Fanout delivers each alert to every dispatcher. One failing dispatcher does
// not stop the others; their errors are joined.
type Fanout []Dispatcher

// NewFanout drops nil dispatchers and returns nil when none remain.
func NewFanout(ds ...Dispatcher) Dispatcher {
	var out Fanout
	for _, d := range ds {
		if d != nil {
			out = append(out, d)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

func (f Fanout) Notify(ctx context.Context, a domain.Alert) error {
	var errs []error
	for _, d := range f {
		if err := d.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
