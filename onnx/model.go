package onnx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/krau/neuroscan/classifier"
	ort "github.com/yalue/onnxruntime_go"
)

type Options struct {
	PoolSize       int
	IntraOpThreads int
}

type session struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func (s *session) destroy() {
	if s.session != nil {
		s.session.Destroy()
	}
	if s.input != nil {
		s.input.Destroy()
	}
	if s.output != nil {
		s.output.Destroy()
	}
}

// Model serves predictions from a pool of sessions. A session binds fixed
// input and output tensors, so each one is used by a single call at a time.
type Model struct {
	pool     chan *session
	sessions []*session

	done      chan struct{}
	closeOnce sync.Once
}

var errClosed = errors.New("model closed")

func newModel(poolSize int) *Model {
	return &Model{
		pool: make(chan *session, poolSize),
		done: make(chan struct{}),
	}
}

func Load(path string, opts Options) (*Model, error) {
	if opts.PoolSize < 1 {
		opts.PoolSize = 1
	}
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if err := checkShapes(inputs, outputs); err != nil {
		return nil, err
	}

	sessionOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer sessionOpts.Destroy()
	if opts.IntraOpThreads > 0 {
		if err := sessionOpts.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}

	m := newModel(opts.PoolSize)
	for i := 0; i < opts.PoolSize; i++ {
		s, err := newSession(path, inputs[0].Name, outputs[0].Name, sessionOpts)
		if err != nil {
			m.Close()
			return nil, err
		}
		m.sessions = append(m.sessions, s)
		m.pool <- s
	}
	slog.Info("ONNX model ready",
		slog.String("path", path),
		slog.String("input", inputs[0].Name),
		slog.String("output", outputs[0].Name),
		slog.Int("sessions", opts.PoolSize))
	return m, nil
}

func newSession(path, inputName, outputName string, opts *ort.SessionOptions) (*session, error) {
	shape := classifier.InputShape
	inputTensor, err := ort.NewTensor(
		ort.NewShape(int64(shape[0]), int64(shape[1]), int64(shape[2]), int64(shape[3])),
		make([]float32, shape[0]*shape[1]*shape[2]*shape[3]),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, classifier.NumClasses))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	s, err := ort.NewAdvancedSession(
		path,
		[]string{inputName},
		[]string{outputName},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX Runtime session: %w", err)
	}
	return &session{session: s, input: inputTensor, output: outputTensor}, nil
}

// checkShapes accepts a single (?,224,224,3) float input and a (?,4) output.
// Dynamic dimensions (-1) match anything.
func checkShapes(inputs, outputs []ort.InputOutputInfo) error {
	if len(inputs) != 1 || len(outputs) < 1 {
		return fmt.Errorf("%w: expected 1 input and at least 1 output, got %d and %d",
			classifier.ErrShape, len(inputs), len(outputs))
	}
	want := classifier.InputShape
	in := inputs[0].Dimensions
	if len(in) != len(want) {
		return fmt.Errorf("%w: input %q has shape %v, expected %v", classifier.ErrShape, inputs[0].Name, in, want)
	}
	for i := 1; i < len(want); i++ {
		if in[i] != -1 && in[i] != int64(want[i]) {
			return fmt.Errorf("%w: input %q has shape %v, expected %v", classifier.ErrShape, inputs[0].Name, in, want)
		}
	}
	out := outputs[0].Dimensions
	if len(out) == 0 || out[len(out)-1] != classifier.NumClasses {
		return fmt.Errorf("%w: output %q has shape %v, expected [1 %d]",
			classifier.ErrShape, outputs[0].Name, out, classifier.NumClasses)
	}
	return nil
}

func (m *Model) Predict(ctx context.Context, input *classifier.Tensor) (classifier.ScoreVector, error) {
	if input == nil || input.Shape != classifier.InputShape || len(input.Data) != input.Len() {
		return nil, fmt.Errorf("%w: bad input tensor", classifier.ErrShape)
	}
	if m.pool == nil {
		return nil, errors.New("model not initialized")
	}

	var s *session
	select {
	case s = <-m.pool:
	case <-m.done:
		return nil, errClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { m.pool <- s }()

	copy(s.input.GetData(), input.Data)
	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := s.output.GetData()
	scores := make(classifier.ScoreVector, len(out))
	copy(scores, out)
	return scores, nil
}

// Close stops handing out sessions and destroys each one once it is back
// in the pool, so it waits for in-flight predictions.
func (m *Model) Close() error {
	m.closeOnce.Do(func() {
		close(m.done)
		for range m.sessions {
			s := <-m.pool
			s.destroy()
		}
	})
	return nil
}
