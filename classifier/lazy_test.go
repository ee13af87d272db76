package classifier

import (
	"context"
	"errors"
	"image/color"
	"sync/atomic"
	"testing"
	"time"
)

type closingModel struct {
	fakeModel
	closed bool
}

func (m *closingModel) Close() error {
	m.closed = true
	return nil
}

func TestLazyModel_LoadsOnce(t *testing.T) {
	loads := 0
	inner := &closingModel{fakeModel: fakeModel{scores: ScoreVector{0.1, 0.6, 0.2, 0.1}}}
	lazy := NewLazyModel(func(context.Context) (Model, error) {
		loads++
		return inner, nil
	})

	if lazy.Loaded() {
		t.Fatal("model should not load before first use")
	}
	for i := 0; i < 3; i++ {
		scores, err := lazy.Predict(context.Background(), &Tensor{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(scores) != NumClasses {
			t.Fatalf("unexpected scores %v", scores)
		}
	}
	if loads != 1 {
		t.Errorf("expected 1 load, got %d", loads)
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 predictions, got %d", inner.calls)
	}
	if err := lazy.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !inner.closed {
		t.Error("expected underlying model to be closed")
	}
}

func TestLazyModel_FailedLoadRetries(t *testing.T) {
	attempts := 0
	lazy := NewLazyModel(func(context.Context) (Model, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("model.onnx: no such file")
		}
		return &fakeModel{scores: ScoreVector{1, 0, 0, 0}}, nil
	})

	if err := lazy.Warm(context.Background()); !errors.Is(err, ErrModel) {
		t.Fatalf("expected ErrModel, got %v", err)
	}
	if lazy.Loaded() {
		t.Fatal("failed load must not be cached")
	}
	if err := lazy.Warm(context.Background()); err != nil {
		t.Fatalf("second attempt: %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestLazyModel_NilModel(t *testing.T) {
	lazy := NewLazyModel(func(context.Context) (Model, error) { return nil, nil })
	if _, err := lazy.Predict(context.Background(), &Tensor{}); !errors.Is(err, ErrModel) {
		t.Errorf("expected ErrModel, got %v", err)
	}
	if err := lazy.Close(); err != nil {
		t.Errorf("close on unloaded model: %v", err)
	}
}

func TestPipeline_WithLazyModelSurfacesLoadFailure(t *testing.T) {
	lazy := NewLazyModel(func(context.Context) (Model, error) {
		return nil, errors.New("runtime library missing")
	})
	_, err := New(lazy).ClassifyImage(context.Background(), createTestImage(2, 2, color.White))
	if !errors.Is(err, ErrModel) {
		t.Errorf("expected ErrModel, got %v", err)
	}
}

func TestLazyModel_LoadDoesNotBlockOtherCallers(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	lazy := NewLazyModel(func(context.Context) (Model, error) {
		close(started)
		<-release
		return &fakeModel{scores: ScoreVector{0.1, 0.7, 0.1, 0.1}}, nil
	})

	firstDone := make(chan error, 1)
	go func() {
		_, err := lazy.Predict(context.Background(), &Tensor{})
		firstDone <- err
	}()
	<-started

	loaded := make(chan bool, 1)
	go func() { loaded <- lazy.Loaded() }()
	select {
	case v := <-loaded:
		if v {
			t.Error("model reported loaded before the loader returned")
		}
	case <-time.After(time.Second):
		t.Fatal("Loaded() blocked while the loader runs")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	waitErr := make(chan error, 1)
	go func() {
		_, err := lazy.Predict(ctx, &Tensor{})
		waitErr <- err
	}()
	select {
	case err := <-waitErr:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected context.DeadlineExceeded, got %v", err)
		}
		if !errors.Is(err, ErrModel) {
			t.Errorf("expected ErrModel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Predict ignored its context while waiting for the load")
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first prediction: %v", err)
	}
	if !lazy.Loaded() {
		t.Error("expected model to be loaded")
	}
}

func TestLazyModel_ConcurrentCallersShareOneLoad(t *testing.T) {
	release := make(chan struct{})
	var loads atomic.Int32
	lazy := NewLazyModel(func(context.Context) (Model, error) {
		loads.Add(1)
		<-release
		return &fakeModel{scores: ScoreVector{1, 0, 0, 0}}, nil
	})

	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() { errs <- lazy.Warm(context.Background()) }()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	for i := 0; i < 4; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if n := loads.Load(); n != 1 {
		t.Errorf("expected 1 load, got %d", n)
	}
}
