package classifier

import (
	"fmt"
	"math"
)

const (
	ImageSize = 224
	Channels  = 3

	// MaxConfidence keeps the reported confidence below 100%.
	MaxConfidence = 0.9999
)

// InputShape is the NHWC shape the model expects.
var InputShape = [4]int{1, ImageSize, ImageSize, Channels}

// Tensor is a dense float32 array in NHWC order.
type Tensor struct {
	Shape [4]int
	Data  []float32
}

func (t *Tensor) Len() int {
	return t.Shape[0] * t.Shape[1] * t.Shape[2] * t.Shape[3]
}

// ScoreVector holds one score per Class, index aligned.
type ScoreVector []float32

func (s ScoreVector) validate() error {
	if len(s) != NumClasses {
		return fmt.Errorf("%w: expected %d scores, got %d", ErrShape, NumClasses, len(s))
	}
	for i, v := range s {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: score %d is not finite", ErrShape, i)
		}
	}
	return nil
}

// argmax returns the first index holding the highest score.
func (s ScoreVector) argmax() int {
	best := 0
	for i, v := range s {
		if v > s[best] {
			best = i
		}
	}
	return best
}

type Result struct {
	Label      string             `json:"label"`
	Class      Class              `json:"-"`
	ClassName  string             `json:"class"`
	Confidence float64            `json:"confidence"`
	Scores     map[string]float32 `json:"scores"`
}

// Percent formats a confidence for display, e.g. "97.00%".
func Percent(confidence float64) string {
	return fmt.Sprintf("%.2f%%", confidence*100)
}
