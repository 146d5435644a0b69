package tensor

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Func computes a new tensor from its operands.
type Func func(operands ...*Tensor) (*Tensor, error)

// Op is a named operation registered in a Registry.
type Op struct {
	// Arity is the number of operands the operation expects.
	Arity int
	Fn    Func
}

// Registry maps operation names to implementations.
// Safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Op
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Op)}
}

// DefaultRegistry returns a new registry holding the built-in operations.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	binary := map[string]func(dst, s, t []float64){
		"add":     func(dst, s, t []float64) { floats.AddTo(dst, s, t) },
		"sub":     func(dst, s, t []float64) { floats.SubTo(dst, s, t) },
		"mul":     func(dst, s, t []float64) { floats.MulTo(dst, s, t) },
		"div":     func(dst, s, t []float64) { floats.DivTo(dst, s, t) },
		"pow":     zipWith(math.Pow),
		"maximum": zipWith(math.Max),
		"minimum": zipWith(math.Min),
	}
	for name, fn := range binary {
		r.mustRegister(name, Op{Arity: 2, Fn: elementwise(fn)})
	}

	unary := map[string]func(float64) float64{
		"neg":     func(v float64) float64 { return -v },
		"abs":     math.Abs,
		"exp":     math.Exp,
		"log":     math.Log,
		"sqrt":    math.Sqrt,
		"square":  func(v float64) float64 { return v * v },
		"relu":    func(v float64) float64 { return math.Max(0, v) },
		"sigmoid": func(v float64) float64 { return 1 / (1 + math.Exp(-v)) },
		"tanh":    math.Tanh,
	}
	for name, fn := range unary {
		r.mustRegister(name, Op{Arity: 1, Fn: apply(fn)})
	}

	r.mustRegister("sum", Op{Arity: 1, Fn: reduce(floats.Sum)})
	r.mustRegister("mean", Op{Arity: 1, Fn: reduce(func(x []float64) float64 { return stat.Mean(x, nil) })})
	r.mustRegister("max", Op{Arity: 1, Fn: reduce(floats.Max)})
	r.mustRegister("min", Op{Arity: 1, Fn: reduce(floats.Min)})
	r.mustRegister("dot", Op{Arity: 2, Fn: dot})
	r.mustRegister("matMul", Op{Arity: 2, Fn: matMul})
	r.mustRegister("transpose", Op{Arity: 1, Fn: transpose})

	return r
}

// Register adds or replaces an operation.
func (r *Registry) Register(name string, op Op) error {
	if name == "" {
		return fmt.Errorf("operation name is required")
	}
	if op.Fn == nil {
		return fmt.Errorf("operation %q has no implementation", name)
	}
	if op.Arity < 1 {
		return fmt.Errorf("operation %q must take at least one operand", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[name] = op
	return nil
}

func (r *Registry) mustRegister(name string, op Op) {
	if err := r.Register(name, op); err != nil {
		panic(err)
	}
}

// Lookup returns the operation registered under name.
func (r *Registry) Lookup(name string) (Op, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[name]
	return op, ok
}

// Names returns the registered operation names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply runs the named operation.
func (r *Registry) Apply(name string, operands ...*Tensor) (*Tensor, error) {
	op, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedOperation, name)
	}
	if len(operands) != op.Arity {
		return nil, fmt.Errorf("%w: %s expects %d operands, got %d", ErrInvalidOperands, name, op.Arity, len(operands))
	}
	for i, t := range operands {
		if t == nil {
			return nil, fmt.Errorf("%w: operand %d of %s is nil", ErrInvalidOperands, i, name)
		}
	}
	return op.Fn(operands...)
}

func zipWith(fn func(a, b float64) float64) func(dst, s, t []float64) {
	return func(dst, s, t []float64) {
		for i := range dst {
			dst[i] = fn(s[i], t[i])
		}
	}
}

// elementwise pairs values of equally shaped operands. A single-element
// operand is broadcast against the other one.
func elementwise(fn func(dst, s, t []float64)) Func {
	return func(operands ...*Tensor) (*Tensor, error) {
		a, b := operands[0], operands[1]
		shape := a.shape
		s, t := a.data, b.data

		switch {
		case sameShape(a.shape, b.shape):
		case b.Size() == 1 && a.Size() != 1:
			t = fill(len(s), b.data[0])
		case a.Size() == 1 && b.Size() != 1:
			shape = b.shape
			s = fill(len(t), a.data[0])
		case a.Size() == 1 && b.Size() == 1:
			if b.Rank() > a.Rank() {
				shape = b.shape
			}
		default:
			return nil, fmt.Errorf("%w: shapes %v and %v do not match", ErrInvalidOperands, a.shape, b.shape)
		}

		dst := make([]float64, len(s))
		fn(dst, s, t)
		return wrap(shape, dst), nil
	}
}

func fill(n int, v float64) []float64 {
	out := make([]float64, n)
	floats.AddConst(v, out)
	return out
}

// apply maps fn over every element through a 1xN gonum matrix view.
func apply(fn func(float64) float64) Func {
	return func(operands ...*Tensor) (*Tensor, error) {
		a := operands[0]
		if a.Size() == 0 {
			return wrap(a.shape, []float64{}), nil
		}
		src := mat.NewDense(1, a.Size(), a.Data())
		var dst mat.Dense
		dst.Apply(func(_, _ int, v float64) float64 { return fn(v) }, src)
		return wrap(a.shape, mat.Row(nil, 0, &dst)), nil
	}
}

func reduce(fn func([]float64) float64) Func {
	return func(operands ...*Tensor) (*Tensor, error) {
		a := operands[0]
		if a.Size() == 0 {
			return nil, fmt.Errorf("%w: cannot reduce an empty tensor", ErrInvalidOperands)
		}
		return Scalar(fn(a.data)), nil
	}
}

func dot(operands ...*Tensor) (*Tensor, error) {
	a, b := operands[0], operands[1]
	if a.Rank() != 1 || b.Rank() != 1 || a.Size() != b.Size() {
		return nil, fmt.Errorf("%w: dot needs two vectors of equal length, got %v and %v", ErrInvalidOperands, a.shape, b.shape)
	}
	return Scalar(floats.Dot(a.data, b.data)), nil
}

func matMul(operands ...*Tensor) (*Tensor, error) {
	a, b := operands[0], operands[1]
	if a.Rank() != 2 || b.Rank() != 2 {
		return nil, fmt.Errorf("%w: matMul needs rank 2 operands, got %v and %v", ErrInvalidOperands, a.shape, b.shape)
	}
	if a.shape[1] != b.shape[0] {
		return nil, fmt.Errorf("%w: inner dimensions %d and %d differ", ErrInvalidOperands, a.shape[1], b.shape[0])
	}
	if a.Size() == 0 || b.Size() == 0 {
		return nil, fmt.Errorf("%w: matMul on empty matrix", ErrInvalidOperands)
	}

	var out mat.Dense
	out.Mul(dense(a), dense(b))
	return fromDense(&out), nil
}

func transpose(operands ...*Tensor) (*Tensor, error) {
	a := operands[0]
	if a.Rank() != 2 {
		return nil, fmt.Errorf("%w: transpose needs a rank 2 operand, got %v", ErrInvalidOperands, a.shape)
	}
	if a.Size() == 0 {
		return wrap([]int{a.shape[1], a.shape[0]}, []float64{}), nil
	}
	return fromDense(mat.DenseCopyOf(dense(a).T())), nil
}

func dense(t *Tensor) *mat.Dense {
	return mat.NewDense(t.shape[0], t.shape[1], t.Data())
}

func fromDense(m *mat.Dense) *Tensor {
	r, c := m.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		data = append(data, mat.Row(nil, i, m)...)
	}
	return wrap([]int{r, c}, data)
}
