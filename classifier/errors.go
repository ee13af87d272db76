package classifier

import "errors"

var (
	ErrDecode       = errors.New("invalid image")
	ErrShape        = errors.New("unexpected model output shape")
	ErrModel        = errors.New("model unavailable")
	ErrInputMissing = errors.New("no image provided")
)
