package classifier

import "fmt"

// Class indexes the model output. The order is fixed by the trained model
// and must not be changed independently of it.
type Class int

const (
	Pituitary Class = iota
	NoTumor
	Glioma
	Meningioma
)

const NumClasses = 4

var classNames = [NumClasses]string{"pituitary", "notumor", "glioma", "meningioma"}

const (
	NoTumorLabel = "No Tumor"
	TumorPrefix  = "Tumor: "
)

func Classes() []Class {
	return []Class{Pituitary, NoTumor, Glioma, Meningioma}
}

func (c Class) Valid() bool {
	return c >= 0 && c < NumClasses
}

func (c Class) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Class(%d)", int(c))
	}
	return classNames[c]
}

// Finding reports whether c is an abnormal finding.
func (c Class) Finding() bool {
	return c != NoTumor
}

// Label is the user facing text for c.
func (c Class) Label() string {
	if !c.Finding() {
		return NoTumorLabel
	}
	return TumorPrefix + c.String()
}
