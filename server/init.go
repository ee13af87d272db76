package server

import (
	"context"
	"fmt"

	"github.com/krau/neuroscan/classifier"
	"github.com/krau/neuroscan/config"
	"github.com/krau/neuroscan/modelstore"
	"github.com/krau/neuroscan/onnx"
)

// Init wires the classification pipeline. The model itself is fetched and
// loaded on first use.
func Init(cfg config.Config) (*classifier.Pipeline, *classifier.LazyModel, error) {
	resizer, err := classifier.NewResizer(cfg.ResizeBackend, cfg.ResizeFilter)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create resizer: %w", err)
	}

	model := classifier.NewLazyModel(func(ctx context.Context) (classifier.Model, error) {
		path, err := modelstore.Ensure(ctx, cfg)
		if err != nil {
			return nil, err
		}
		m, err := onnx.Load(path, onnx.Options{
			PoolSize:       cfg.PoolSize,
			IntraOpThreads: cfg.IntraOpThreads,
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	})

	p := classifier.New(model,
		classifier.WithDecoder(classifier.ImageDecoder{MaxPixels: cfg.MaxPixels}),
		classifier.WithResizer(resizer),
	)
	return p, model, nil
}
