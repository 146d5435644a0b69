package tensor

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// FromNested builds a tensor from nested slices or arrays of numbers, such as
// [][]float64{{1, 2}, {3, 4}} or the []any values produced by encoding/json.
// A bare number yields a scalar and an existing *Tensor is returned as is.
// The strings "NaN", "Inf" and "-Inf" are read as non-finite numbers.
// Ragged or non-numeric input returns ErrInvalidShape.
func FromNested(raw any) (*Tensor, error) {
	if t, ok := raw.(*Tensor); ok {
		if t == nil {
			return nil, fmt.Errorf("%w: nil tensor", ErrInvalidShape)
		}
		return t, nil
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: nil data", ErrInvalidShape)
	}

	shape, err := inferShape(reflect.ValueOf(raw))
	if err != nil {
		return nil, err
	}

	size := 1
	for _, d := range shape {
		size *= d
	}
	data := make([]float64, 0, size)
	data, err = flatten(reflect.ValueOf(raw), shape, data)
	if err != nil {
		return nil, err
	}
	return wrap(shape, data), nil
}

// inferShape walks the first element of every level.
func inferShape(v reflect.Value) ([]int, error) {
	var shape []int
	for {
		v = indirect(v)
		switch v.Kind() {
		case reflect.Slice, reflect.Array:
			shape = append(shape, v.Len())
			if v.Len() == 0 {
				return shape, nil
			}
			v = v.Index(0)
		default:
			if _, ok := number(v); !ok {
				return nil, fmt.Errorf("%w: unsupported element type %s", ErrInvalidShape, v.Type())
			}
			if shape == nil {
				shape = []int{}
			}
			return shape, nil
		}
	}
}

func flatten(v reflect.Value, shape []int, out []float64) ([]float64, error) {
	v = indirect(v)
	if len(shape) == 0 {
		f, ok := number(v)
		if !ok {
			return nil, fmt.Errorf("%w: expected a number, got %s", ErrInvalidShape, describe(v))
		}
		return append(out, f), nil
	}

	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: expected a list of length %d, got %s", ErrInvalidShape, shape[0], describe(v))
	}
	if v.Len() != shape[0] {
		return nil, fmt.Errorf("%w: ragged input, expected length %d, got %d", ErrInvalidShape, shape[0], v.Len())
	}
	var err error
	for i := 0; i < v.Len(); i++ {
		if out, err = flatten(v.Index(i), shape[1:], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func number(v reflect.Value) (float64, bool) {
	if !v.IsValid() {
		return 0, false
	}
	if n, ok := v.Interface().(json.Number); ok {
		f, err := n.Float64()
		return f, err == nil
	}
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	case reflect.String:
		return ParseNonFinite(v.String())
	}
	return 0, false
}

func describe(v reflect.Value) string {
	if !v.IsValid() {
		return "nil"
	}
	return v.Type().String()
}
