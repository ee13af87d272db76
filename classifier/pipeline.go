package classifier

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"

	"github.com/disintegration/imaging"
)

type Decoder interface {
	Decode(r io.Reader) (image.Image, error)
}

type Resizer interface {
	Resize(img image.Image, width, height int) image.Image
}

type Normalizer interface {
	Normalize(img image.Image) (*Tensor, error)
}

// Model scores a (1,224,224,3) tensor, one score per Class.
type Model interface {
	Predict(ctx context.Context, input *Tensor) (ScoreVector, error)
}

// Pipeline composes decode, resize, normalize and predict in that order.
// It holds no per-call state.
type Pipeline struct {
	decoder    Decoder
	resizer    Resizer
	normalizer Normalizer
	model      Model
}

type Option func(*Pipeline)

func WithDecoder(d Decoder) Option {
	return func(p *Pipeline) { p.decoder = d }
}

func WithResizer(r Resizer) Option {
	return func(p *Pipeline) { p.resizer = r }
}

func WithNormalizer(n Normalizer) Option {
	return func(p *Pipeline) { p.normalizer = n }
}

func New(model Model, opts ...Option) *Pipeline {
	p := &Pipeline{
		decoder:    ImageDecoder{},
		resizer:    ImagingResizer{filter: imaging.CatmullRom},
		normalizer: RGBNormalizer{},
		model:      model,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Classify(ctx context.Context, r io.Reader) (*Result, error) {
	if r == nil {
		return nil, ErrInputMissing
	}
	img, err := p.decoder.Decode(r)
	if err != nil {
		if errors.Is(err, ErrInputMissing) || errors.Is(err, ErrDecode) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return p.ClassifyImage(ctx, img)
}

func (p *Pipeline) ClassifyImage(ctx context.Context, img image.Image) (*Result, error) {
	if img == nil {
		return nil, ErrInputMissing
	}
	if p.model == nil {
		return nil, fmt.Errorf("%w: model not initialized", ErrModel)
	}

	resized := p.resizer.Resize(img, ImageSize, ImageSize)
	input, err := p.normalizer.Normalize(resized)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize image: %w", err)
	}
	if input.Shape != InputShape || len(input.Data) != input.Len() {
		return nil, fmt.Errorf("%w: input tensor %v does not match %v", ErrShape, input.Shape, InputShape)
	}

	scores, err := p.model.Predict(ctx, input)
	if err != nil {
		if errors.Is(err, ErrShape) || errors.Is(err, ErrModel) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrModel, err)
	}

	result, err := ResultFor(scores)
	if err != nil {
		return nil, err
	}
	slog.Debug("Classified image",
		slog.String("class", result.ClassName),
		slog.Float64("confidence", result.Confidence))
	return result, nil
}

// ResultFor selects the highest scoring class, caps its score at
// MaxConfidence and maps it to a label.
func ResultFor(scores ScoreVector) (*Result, error) {
	if err := scores.validate(); err != nil {
		return nil, err
	}
	class := Class(scores.argmax())

	confidence := min(float64(scores[class]), MaxConfidence)
	if confidence < 0 {
		confidence = 0
	}

	all := make(map[string]float32, NumClasses)
	for _, c := range Classes() {
		all[c.String()] = scores[c]
	}

	return &Result{
		Label:      class.Label(),
		Class:      class,
		ClassName:  class.String(),
		Confidence: confidence,
		Scores:     all,
	}, nil
}
