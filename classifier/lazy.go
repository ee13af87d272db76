package classifier

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
)

type LoadFunc func(ctx context.Context) (Model, error)

type loadedModel struct {
	Model
}

// LazyModel loads the underlying model on first use and keeps it for the
// rest of the process. A failed load is not cached. Only one load runs at
// a time; other callers wait for it until their own context is done.
type LazyModel struct {
	load LoadFunc

	loading chan struct{}
	model   atomic.Pointer[loadedModel]
}

func NewLazyModel(load LoadFunc) *LazyModel {
	return &LazyModel{
		load:    load,
		loading: make(chan struct{}, 1),
	}
}

func (l *LazyModel) get(ctx context.Context) (Model, error) {
	if m := l.model.Load(); m != nil {
		return m.Model, nil
	}

	select {
	case l.loading <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for model load: %w", ErrModel, ctx.Err())
	}
	defer func() { <-l.loading }()

	// loaded by the caller we waited for
	if m := l.model.Load(); m != nil {
		return m.Model, nil
	}

	m, err := l.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModel, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: loader returned no model", ErrModel)
	}
	slog.Info("Model loaded")
	l.model.Store(&loadedModel{Model: m})
	return m, nil
}

// Warm forces the load without predicting.
func (l *LazyModel) Warm(ctx context.Context) error {
	_, err := l.get(ctx)
	return err
}

// Loaded never blocks, even while a load is in progress.
func (l *LazyModel) Loaded() bool {
	return l.model.Load() != nil
}

func (l *LazyModel) Predict(ctx context.Context, input *Tensor) (ScoreVector, error) {
	m, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return m.Predict(ctx, input)
}

func (l *LazyModel) Close() error {
	m := l.model.Load()
	if m == nil {
		return nil
	}
	if c, ok := m.Model.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
