package classifier

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"

	"github.com/disintegration/imaging"
	_ "github.com/gen2brain/avif"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"
)

const (
	DefaultFilter = "catmullrom"

	// DefaultMaxPixels bounds the decoded bitmap, about 200 MB as NRGBA.
	DefaultMaxPixels = 50_000_000
)

// ImageDecoder decodes any registered raster format (jpeg, png, webp, avif).
// Images whose header declares more than MaxPixels pixels are rejected
// before the bitmap is allocated.
type ImageDecoder struct {
	MaxPixels int
}

func (d ImageDecoder) Decode(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrInputMissing
	}

	maxPixels := d.MaxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image %dx%d", ErrDecode, cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecode, cfg.Width, cfg.Height, maxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return img, nil
}

var imagingFilters = map[string]imaging.ResampleFilter{
	"nearest":    imaging.NearestNeighbor,
	"box":        imaging.Box,
	"linear":     imaging.Linear,
	"catmullrom": imaging.CatmullRom,
	"mitchell":   imaging.MitchellNetravali,
	"lanczos":    imaging.Lanczos,
}

var nfntFilters = map[string]resize.InterpolationFunction{
	"nearest":    resize.NearestNeighbor,
	"linear":     resize.Bilinear,
	"catmullrom": resize.Bicubic,
	"mitchell":   resize.MitchellNetravali,
	"lanczos":    resize.Lanczos3,
}

// ImagingResizer stretches to the target size; aspect ratio is not kept.
type ImagingResizer struct {
	filter imaging.ResampleFilter
}

func NewImagingResizer(filter string) (ImagingResizer, error) {
	if filter == "" {
		filter = DefaultFilter
	}
	f, ok := imagingFilters[strings.ToLower(filter)]
	if !ok {
		return ImagingResizer{}, fmt.Errorf("unknown resize filter for imaging: %q", filter)
	}
	return ImagingResizer{filter: f}, nil
}

func (r ImagingResizer) Resize(img image.Image, width, height int) image.Image {
	return imaging.Resize(img, width, height, r.filter)
}

type NfntResizer struct {
	interp resize.InterpolationFunction
}

func NewNfntResizer(filter string) (NfntResizer, error) {
	if filter == "" {
		filter = DefaultFilter
	}
	f, ok := nfntFilters[strings.ToLower(filter)]
	if !ok {
		return NfntResizer{}, fmt.Errorf("unknown resize filter for nfnt: %q", filter)
	}
	return NfntResizer{interp: f}, nil
}

func (r NfntResizer) Resize(img image.Image, width, height int) image.Image {
	return resize.Resize(uint(width), uint(height), img, r.interp)
}

// NewResizer picks a resize backend and filter by name. An empty filter
// selects DefaultFilter; an unknown one is an error.
func NewResizer(backend, filter string) (Resizer, error) {
	switch backend {
	case "", "imaging":
		r, err := NewImagingResizer(filter)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "nfnt":
		r, err := NewNfntResizer(filter)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown resize backend: %q", backend)
	}
}

// RGBNormalizer maps 8-bit RGB to [0,1], interleaved HWC with a batch
// axis of 1. Alpha is dropped without compositing.
type RGBNormalizer struct{}

func (RGBNormalizer) Normalize(img image.Image) (*Tensor, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("empty image")
	}

	src, ok := img.(*image.NRGBA)
	if !ok || b.Min != (image.Point{}) {
		src = imaging.Clone(img)
	}

	t := &Tensor{
		Shape: [4]int{1, h, w, Channels},
		Data:  make([]float32, h*w*Channels),
	}
	i := 0
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+3]
			t.Data[i] = float32(px[0]) / 255.0
			t.Data[i+1] = float32(px[1]) / 255.0
			t.Data[i+2] = float32(px[2]) / 255.0
			i += Channels
		}
	}
	return t, nil
}
