package fields

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// Form holds the current value of every registered field.
type Form struct {
	mu     sync.RWMutex
	values map[ID]any
}

// NewForm returns a form with zero values for every field.
func NewForm() *Form {
	f := &Form{values: make(map[ID]any, len(registry))}
	for id, spec := range registry {
		f.values[id] = zeroValue(spec.Kind)
	}
	return f
}

func zeroValue(kind Kind) any {
	switch kind {
	case KindBool:
		return false
	case KindNumber:
		return float64(0)
	case KindInt:
		return 0
	case KindOptionalInt:
		return (*int)(nil)
	default:
		return ""
	}
}

// Get returns the raw value of a field.
func (f *Form) Get(id ID) (any, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.values[id]
	return v, ok
}

// Bool returns a boolean field, false when unset or mistyped.
func (f *Form) Bool(id ID) bool {
	v, _ := f.Get(id)
	b, _ := v.(bool)
	return b
}

// String returns a string, enum, or secret field.
func (f *Form) String(id ID) string {
	v, _ := f.Get(id)
	s, _ := v.(string)
	return s
}

// Float returns a number field.
func (f *Form) Float(id ID) float64 {
	v, _ := f.Get(id)
	n, _ := v.(float64)
	return n
}

// Int returns an integer field.
func (f *Form) Int(id ID) int {
	v, _ := f.Get(id)
	n, _ := v.(int)
	return n
}

// OptionalInt returns an optional integer field; nil means unset.
func (f *Form) OptionalInt(id ID) *int {
	v, _ := f.Get(id)
	p, _ := v.(*int)
	if p == nil {
		return nil
	}
	out := *p
	return &out
}

// Set stores a typed value after checking it against the field spec.
func (f *Form) Set(id ID, value any) error {
	spec, ok := Lookup(id)
	if !ok {
		return fmt.Errorf("unknown field %q", id)
	}
	normalized, err := normalize(spec, value)
	if err != nil {
		return fmt.Errorf("field %s: %w", id, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[id] = normalized
	return nil
}

// SetText parses raw input for the field kind and stores it.
func (f *Form) SetText(id ID, raw string) (any, error) {
	spec, ok := Lookup(id)
	if !ok {
		return nil, fmt.Errorf("unknown field %q", id)
	}
	value, err := Parse(spec, raw)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", id, err)
	}
	if err := f.Set(id, value); err != nil {
		return nil, err
	}
	v, _ := f.Get(id)
	return v, nil
}

// Snapshot copies every non-secret value.
func (f *Form) Snapshot() map[ID]any {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[ID]any, len(f.values))
	for id, v := range f.values {
		if registry[id].Kind == KindSecret {
			continue
		}
		out[id] = v
	}
	return out
}

// Parse converts text input into a typed value for spec.
func Parse(spec Spec, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch spec.Kind {
	case KindBool:
		switch strings.ToLower(raw) {
		case "1", "true", "yes", "on":
			return true, nil
		case "0", "false", "no", "off":
			return false, nil
		}
		return nil, fmt.Errorf("expected boolean, got %q", raw)
	case KindNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("expected number, got %q", raw)
		}
		return n, nil
	case KindInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("expected integer, got %q", raw)
		}
		return n, nil
	case KindOptionalInt:
		if raw == "" || strings.EqualFold(raw, "default") || strings.EqualFold(raw, "none") {
			return (*int)(nil), nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("expected integer or \"default\", got %q", raw)
		}
		return &n, nil
	default:
		return raw, nil
	}
}

func normalize(spec Spec, value any) (any, error) {
	switch spec.Kind {
	case KindBool:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", value)
		}
		return b, nil
	case KindNumber:
		var n float64
		switch v := value.(type) {
		case float64:
			n = v
		case int:
			n = float64(v)
		default:
			return nil, fmt.Errorf("expected number, got %T", value)
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("number must be finite")
		}
		if err := checkBounds(spec, n); err != nil {
			return nil, err
		}
		return n, nil
	case KindInt:
		n, ok := value.(int)
		if !ok {
			return nil, fmt.Errorf("expected int, got %T", value)
		}
		if err := checkBounds(spec, float64(n)); err != nil {
			return nil, err
		}
		return n, nil
	case KindOptionalInt:
		switch v := value.(type) {
		case nil:
			return (*int)(nil), nil
		case *int:
			if v == nil {
				return (*int)(nil), nil
			}
			if *v < 0 {
				return nil, fmt.Errorf("must be >= 0")
			}
			n := *v
			return &n, nil
		case int:
			if v < 0 {
				return nil, fmt.Errorf("must be >= 0")
			}
			return &v, nil
		default:
			return nil, fmt.Errorf("expected optional int, got %T", value)
		}
	case KindEnum:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", value)
		}
		s = strings.TrimSpace(s)
		if !slices.Contains(spec.Options, s) {
			return nil, fmt.Errorf("must be one of: %s", strings.Join(spec.Options, ", "))
		}
		return s, nil
	default:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", value)
		}
		if spec.Kind == KindSecret {
			return s, nil
		}
		return strings.TrimSpace(s), nil
	}
}

func checkBounds(spec Spec, n float64) error {
	switch {
	case spec.Min != nil && spec.Max != nil && (n < *spec.Min || n > *spec.Max):
		return fmt.Errorf("must be within [%g, %g]", *spec.Min, *spec.Max)
	case spec.Min != nil && n < *spec.Min:
		return fmt.Errorf("must be at least %g", *spec.Min)
	case spec.Max != nil && n > *spec.Max:
		return fmt.Errorf("must be at most %g", *spec.Max)
	}
	return nil
}
