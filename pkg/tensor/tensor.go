package tensor

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrInvalidShape is returned when a shape and its values disagree, or when
	// nested input is ragged or non-numeric.
	ErrInvalidShape = errors.New("invalid tensor shape")

	// ErrUnsupportedOperation is returned when an operation name is not registered.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrInvalidOperands is returned when operands do not fit an operation
	// (wrong count, mismatched shapes or ranks).
	ErrInvalidOperands = errors.New("invalid operands")
)

// Tensor is an immutable n-dimensional array of float64 values stored in
// row-major order. Operations always return new tensors.
type Tensor struct {
	shape []int
	data  []float64
}

// New creates a tensor with the given shape, copying values.
// An empty shape describes a scalar holding exactly one value.
func New(shape []int, values []float64) (*Tensor, error) {
	size := 1
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("%w: negative dimension %d", ErrInvalidShape, d)
		}
		size *= d
	}
	if size != len(values) {
		return nil, fmt.Errorf("%w: shape %v needs %d values, got %d", ErrInvalidShape, shape, size, len(values))
	}

	return &Tensor{
		shape: append([]int{}, shape...),
		data:  append([]float64{}, values...),
	}, nil
}

// Scalar creates a rank-0 tensor.
func Scalar(v float64) *Tensor {
	return &Tensor{shape: []int{}, data: []float64{v}}
}

// wrap builds a tensor that takes ownership of data. Callers guarantee the
// shape matches.
func wrap(shape []int, data []float64) *Tensor {
	return &Tensor{shape: append([]int{}, shape...), data: data}
}

// Shape returns a copy of the tensor dimensions.
func (t *Tensor) Shape() []int {
	return append([]int{}, t.shape...)
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.shape)
}

// Size returns the number of elements.
func (t *Tensor) Size() int {
	return len(t.data)
}

// Data returns a copy of the flattened values in row-major order.
func (t *Tensor) Data() []float64 {
	return append([]float64{}, t.data...)
}

// Reshape returns a tensor sharing no memory with t, holding the same values
// under a new shape of equal size.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	return New(shape, t.data)
}

// At returns the element at the given index. It panics if the index does
// not match the tensor rank or is out of range.
func (t *Tensor) At(idx ...int) float64 {
	if len(idx) != len(t.shape) {
		panic(fmt.Sprintf("tensor: index rank %d does not match tensor rank %d", len(idx), len(t.shape)))
	}
	offset := 0
	for i, v := range idx {
		if v < 0 || v >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index %d out of range for dimension %d of size %d", v, i, t.shape[i]))
		}
		offset = offset*t.shape[i] + v
	}
	return t.data[offset]
}

// Equal reports whether both tensors have the same shape and values.
// NaN elements compare equal to each other.
func (t *Tensor) Equal(other *Tensor) bool {
	if t == nil || other == nil {
		return t == other
	}
	if !sameShape(t.shape, other.shape) || len(t.data) != len(other.data) {
		return false
	}
	for i := range t.data {
		a, b := t.data[i], other.data[i]
		if a != b && !(math.IsNaN(a) && math.IsNaN(b)) {
			return false
		}
	}
	return true
}

// Nested returns the values as nested []any slices following the shape,
// the inverse of FromNested.
func (t *Tensor) Nested() any {
	return t.nested(func(f float64) any { return f })
}

// NestedValues is Nested with Value leaves, so the result encodes to JSON
// even when it holds NaN or infinities. FromNested reads it back.
func (t *Tensor) NestedValues() any {
	return t.nested(func(f float64) any { return Value(f) })
}

func (t *Tensor) nested(leaf func(float64) any) any {
	if len(t.shape) == 0 {
		return leaf(t.data[0])
	}
	v, _ := t.nest(0, 0, leaf)
	return v
}

func (t *Tensor) nest(dim, offset int, leaf func(float64) any) (any, int) {
	if dim == len(t.shape)-1 {
		out := make([]any, t.shape[dim])
		for i := range out {
			out[i] = leaf(t.data[offset+i])
		}
		return out, offset + t.shape[dim]
	}
	out := make([]any, t.shape[dim])
	for i := range out {
		out[i], offset = t.nest(dim+1, offset, leaf)
	}
	return out, offset
}

func (t *Tensor) String() string {
	if t == nil {
		return "<nil>"
	}
	var sb strings.Builder
	writeNested(&sb, t.Nested())
	return sb.String()
}

func writeNested(sb *strings.Builder, v any) {
	switch x := v.(type) {
	case []any:
		sb.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				sb.WriteByte(' ')
			}
			writeNested(sb, e)
		}
		sb.WriteByte(']')
	case float64:
		sb.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
	}
}

type jsonTensor struct {
	Shape  []int   `json:"shape"`
	Values []Value `json:"values"`
}

// MarshalJSON encodes the tensor as {"shape": [...], "values": [...]}.
// Non-finite values are written as described for Value.
func (t *Tensor) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonTensor{Shape: t.shape, Values: toValues(t.data)})
}

// UnmarshalJSON decodes the format produced by MarshalJSON.
func (t *Tensor) UnmarshalJSON(b []byte) error {
	var raw jsonTensor
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.Shape == nil {
		raw.Shape = []int{}
	}
	decoded, err := New(raw.Shape, fromValues(raw.Values))
	if err != nil {
		return err
	}
	*t = *decoded
	return nil
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
