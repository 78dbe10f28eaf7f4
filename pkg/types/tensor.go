package types

// Tensor carries a name (possibly empty), an ordered shape, and a dtype.
// An empty shape means "unknown" — workers that declare this as their
// output tensor are signaling a dynamic output (spec.md §3).
type Tensor struct {
	Name  string
	Shape []uint64
	Dtype DataType
}

// NewTensor builds a Tensor, copying the shape so callers can't mutate it
// through the original slice afterward.
func NewTensor(name string, shape []uint64, dtype DataType) Tensor {
	s := make([]uint64, len(shape))
	copy(s, shape)
	return Tensor{Name: name, Shape: s, Dtype: dtype}
}

// ElementCount returns product(shape). An empty shape returns 0, matching
// the "unknown size" convention of spec.md §3.
func (t Tensor) ElementCount() uint64 {
	if len(t.Shape) == 0 {
		return 0
	}
	count := uint64(1)
	for _, d := range t.Shape {
		count *= d
	}
	return count
}

// ByteSize returns ElementCount() * Dtype.Size().
func (t Tensor) ByteSize() uint64 {
	return t.ElementCount() * uint64(t.Dtype.Size())
}

// IsDynamic reports whether this tensor signals an unknown/dynamic shape.
func (t Tensor) IsDynamic() bool {
	return len(t.Shape) == 0
}
