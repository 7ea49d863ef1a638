package engine

import "fmt"

// Array is a dense row-major float64 array of arbitrary rank. It is the
// interchange type between the engine's internal result storage and the
// extraction layer.
type Array struct {
	Shape []int
	Data  []float64
}

// NewArray allocates a zeroed array with the given shape.
func NewArray(shape ...int) *Array {
	n := 1
	for _, d := range shape {
		if d < 0 {
			panic(fmt.Sprintf("engine: negative array dimension %d", d))
		}
		n *= d
	}
	s := make([]int, len(shape))
	copy(s, shape)
	return &Array{Shape: s, Data: make([]float64, n)}
}

// Size returns the total number of elements.
func (a *Array) Size() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// Strides returns the row-major stride per axis.
func (a *Array) Strides() []int {
	strides := make([]int, len(a.Shape))
	acc := 1
	for i := len(a.Shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= a.Shape[i]
	}
	return strides
}

func (a *Array) offset(idx ...int) int {
	if len(idx) != len(a.Shape) {
		panic(fmt.Sprintf("engine: index rank %d does not match array rank %d", len(idx), len(a.Shape)))
	}
	off := 0
	acc := 1
	for i := len(a.Shape) - 1; i >= 0; i-- {
		if idx[i] < 0 || idx[i] >= a.Shape[i] {
			panic(fmt.Sprintf("engine: index %d out of range for axis %d of length %d", idx[i], i, a.Shape[i]))
		}
		off += idx[i] * acc
		acc *= a.Shape[i]
	}
	return off
}

// At returns the element at the given multi-index.
func (a *Array) At(idx ...int) float64 {
	return a.Data[a.offset(idx...)]
}

// Set writes the element at the given multi-index.
func (a *Array) Set(v float64, idx ...int) {
	a.Data[a.offset(idx...)] = v
}

// SubArray returns a view of the array with the leading axis fixed at i.
// The view shares the underlying data.
func (a *Array) SubArray(i int) *Array {
	if len(a.Shape) == 0 {
		panic("engine: SubArray on rank-0 array")
	}
	if i < 0 || i >= a.Shape[0] {
		panic(fmt.Sprintf("engine: SubArray index %d out of range for axis of length %d", i, a.Shape[0]))
	}
	stride := 1
	for _, d := range a.Shape[1:] {
		stride *= d
	}
	sub := make([]int, len(a.Shape)-1)
	copy(sub, a.Shape[1:])
	return &Array{Shape: sub, Data: a.Data[i*stride : (i+1)*stride]}
}
