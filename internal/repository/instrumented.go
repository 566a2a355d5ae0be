package repository

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"metarepo/internal/model"
)

// Instrumented counts repository calls by backend, operation and outcome.
type Instrumented struct {
	next    DocumentRepository
	backend string
	ops     *prometheus.CounterVec
}

var _ DocumentRepository = (*Instrumented)(nil)

// NewInstrumented wraps next and registers its counter on reg.
func NewInstrumented(next DocumentRepository, backend string, reg prometheus.Registerer) (*Instrumented, error) {
	ops := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metarepo_repository_operations_total",
			Help: "Repository operations by backend, operation and outcome.",
		},
		[]string{"backend", "operation", "outcome"},
	)
	if err := reg.Register(ops); err != nil {
		return nil, err
	}
	return &Instrumented{next: next, backend: backend, ops: ops}, nil
}

func (r *Instrumented) Find(ctx context.Context, filters Filters, allowedGroups []string, page int) ([]model.Document, error) {
	docs, err := r.next.Find(ctx, filters, allowedGroups, page)
	r.observe("find", err)
	return docs, err
}

func (r *Instrumented) Notate(ctx context.Context, doc *model.Document) error {
	err := r.next.Notate(ctx, doc)
	r.observe("notate", err)
	return err
}

func (r *Instrumented) Update(ctx context.Context, docID string, patch *model.Patch) error {
	err := r.next.Update(ctx, docID, patch)
	r.observe("update", err)
	return err
}

// Ping forwards to the wrapped backend when it supports it.
func (r *Instrumented) Ping(ctx context.Context) error {
	if p, ok := r.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (r *Instrumented) observe(op string, err error) {
	r.ops.WithLabelValues(r.backend, op, model.KindOf(err)).Inc()
}
