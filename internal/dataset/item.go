package dataset

// Tensor is a dense float32 array in row-major order.
type Tensor struct {
	Data  []float32
	Shape []int // C, H, W
}

func (t Tensor) Len() int {
	return len(t.Data)
}

// Item is either a LabeledItem or an UnlabeledItem.
type Item interface {
	ID() string
	Image() Tensor
	item()
}

type LabeledItem struct {
	Path     string
	Features Tensor
	Target   int
	OneHot   []float32
}

func (it LabeledItem) ID() string    { return it.Path }
func (it LabeledItem) Image() Tensor { return it.Features }
func (LabeledItem) item()            {}

type UnlabeledItem struct {
	Path     string
	Features Tensor
}

func (it UnlabeledItem) ID() string    { return it.Path }
func (it UnlabeledItem) Image() Tensor { return it.Features }
func (UnlabeledItem) item()            {}
