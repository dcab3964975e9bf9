package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tempo/internal/timeval"
)

// Time is a time value in milliseconds. Documents write it either as a
// number or as a time value string parsed by timeval.Parse.
type Time float64

// Float returns t as a float64.
func (t Time) Float() float64 {
	return float64(t)
}

// String formats t like timeval.Format.
func (t Time) String() string {
	return timeval.Format(float64(t))
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Time) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: time must be a number or a string", node.Line)
	}
	if tag := node.ShortTag(); tag == "!!int" || tag == "!!float" {
		var f float64
		if err := node.Decode(&f); err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		return t.set(f)
	}
	v, err := timeval.Parse(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	return t.set(v)
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Time) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := timeval.Parse(s)
		if err != nil {
			return err
		}
		return t.set(v)
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("time must be a number or a string: %w", err)
	}
	return t.set(f)
}

// MarshalJSON writes finite times as numbers and +Inf as "indefinite".
func (t Time) MarshalJSON() ([]byte, error) {
	if math.IsInf(float64(t), 1) {
		return []byte(`"indefinite"`), nil
	}
	return json.Marshal(float64(t))
}

func (t *Time) set(v float64) error {
	if math.IsNaN(v) {
		return fmt.Errorf("time is not a number")
	}
	*t = Time(v)
	return nil
}

// Literal is an arbitrary document value (null, bool, number, string, list
// or map with string keys). Whole numbers decode as int so that values
// written in YAML, JSON and CUE compare equal.
type Literal struct {
	V any
}

// L wraps v in a Literal.
func L(v any) *Literal {
	return &Literal{V: v}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *Literal) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	l.V = normalize(v)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Literal) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	l.V = normalize(v)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (l Literal) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.V)
}

// normalize converts decoded numbers to int when they are whole, float64
// otherwise, and map[any]any keys to strings.
func normalize(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return int(i)
		}
		f, _ := val.Float64()
		return normalize(f)
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return int(val)
		}
		return val
	case int64:
		return int(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = normalize(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = normalize(elem)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[fmt.Sprint(k)] = normalize(elem)
		}
		return out
	default:
		return v
	}
}

// Equal reports whether two values have the same canonical JSON form.
// Values that cannot be serialized are never equal.
func Equal(a, b any) bool {
	ca, err := MarshalCanonical(a)
	if err != nil {
		return false
	}
	cb, err := MarshalCanonical(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}
