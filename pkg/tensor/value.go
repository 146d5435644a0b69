package tensor

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Value is a float64 that encodes to JSON even when it is not finite.
// NaN and the infinities are written as the strings "NaN", "Inf" and "-Inf".
type Value float64

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	f := float64(v)
	switch {
	case math.IsNaN(f):
		return []byte(`"NaN"`), nil
	case math.IsInf(f, 1):
		return []byte(`"Inf"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-Inf"`), nil
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

// UnmarshalJSON accepts a JSON number or one of the non-finite names.
func (v *Value) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		f, ok := ParseNonFinite(s)
		if !ok {
			return fmt.Errorf("%w: unexpected value %q", ErrInvalidShape, s)
		}
		*v = Value(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*v = Value(f)
	return nil
}

// ParseNonFinite maps "NaN", "Inf" ("+Inf") and "-Inf" to their float64
// values.
func ParseNonFinite(s string) (float64, bool) {
	switch s {
	case "NaN":
		return math.NaN(), true
	case "Inf", "+Inf":
		return math.Inf(1), true
	case "-Inf":
		return math.Inf(-1), true
	}
	return 0, false
}

func toValues(data []float64) []Value {
	out := make([]Value, len(data))
	for i, f := range data {
		out[i] = Value(f)
	}
	return out
}

func fromValues(values []Value) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}
