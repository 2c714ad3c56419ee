// Package runlog persists the outcome of every run so that history can be
// inspected after the browser has closed.
package runlog

import (
	"context"
	"errors"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/mailpilot/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Sink receives finished run outcomes.
type Sink interface {
	Append(ctx context.Context, outcome schemas.RunOutcome) error
	Close() error
}

// Multi fans an outcome out to several sinks concurrently. Every sink is
// attempted even when another one fails.
type Multi struct {
	sinks []Sink
}

var _ Sink = (*Multi)(nil)

// NewMulti creates a Multi. Nil sinks are skipped.
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *Multi) Append(ctx context.Context, outcome schemas.RunOutcome) error {
	errs := make([]error, len(m.sinks))
	var g errgroup.Group
	for i, s := range m.sinks {
		g.Go(func() error {
			errs[i] = s.Append(ctx, outcome)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len reports how many sinks are attached.
func (m *Multi) Len() int { return len(m.sinks) }
