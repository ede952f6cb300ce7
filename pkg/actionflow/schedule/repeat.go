package schedule

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Repeat is the number of executions a timer record performs.
// The zero value means "omitted" and resolves to a single execution.
type Repeat struct {
	count    int
	infinite bool
	set      bool
}

// Times returns a Repeat of exactly n executions.
func Times(n int) Repeat {
	return Repeat{count: n, set: true}
}

// Forever returns an unbounded Repeat.
func Forever() Repeat {
	return Repeat{infinite: true, set: true}
}

// Never returns a Repeat of zero executions.
func Never() Repeat {
	return Repeat{set: true}
}

// IsSet reports whether the repeat was given explicitly.
func (r Repeat) IsSet() bool {
	return r.set
}

// IsInfinite reports whether the repeat is unbounded.
func (r Repeat) IsInfinite() bool {
	return r.infinite
}

// IsNever reports whether no executions will happen.
func (r Repeat) IsNever() bool {
	return r.set && !r.infinite && r.count == 0
}

// Count returns the resolved execution count: 1 when omitted, -1 when
// unbounded.
func (r Repeat) Count() int {
	switch {
	case !r.set:
		return 1
	case r.infinite:
		return -1
	default:
		return r.count
	}
}

// String returns "infinite" or the resolved count.
func (r Repeat) String() string {
	if r.infinite {
		return "infinite"
	}
	return strconv.Itoa(r.Count())
}

// ParseRepeat converts a loosely typed value (as decoded from YAML or JSON)
// into a Repeat.
//
// Accepts:
//   - nil: omitted
//   - bool: true is Forever, false is Never
//   - int, int64, float64 (integral): Times
//   - string: "infinite", "forever", "true", "false" or an integer
func ParseRepeat(v any) (Repeat, error) {
	switch val := v.(type) {
	case nil:
		return Repeat{}, nil
	case Repeat:
		return val, nil
	case bool:
		if val {
			return Forever(), nil
		}
		return Never(), nil
	case int:
		return checkedTimes(val)
	case int64:
		return checkedTimes(int(val))
	case float64:
		if val != math.Trunc(val) {
			return Repeat{}, fmt.Errorf("%w: %v is not a whole number", ErrInvalidRepeat, val)
		}
		return checkedTimes(int(val))
	case string:
		s := strings.ToLower(strings.TrimSpace(val))
		switch s {
		case "infinite", "forever", "true":
			return Forever(), nil
		case "false":
			return Never(), nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return Repeat{}, fmt.Errorf("%w: %q", ErrInvalidRepeat, val)
		}
		return checkedTimes(n)
	default:
		return Repeat{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidRepeat, v)
	}
}

func checkedTimes(n int) (Repeat, error) {
	if n < 0 {
		return Repeat{}, fmt.Errorf("%w: negative count %d", ErrInvalidRepeat, n)
	}
	return Times(n), nil
}

// MarshalJSON encodes an omitted repeat as null, an unbounded one as
// "infinite" and anything else as its count.
func (r Repeat) MarshalJSON() ([]byte, error) {
	switch {
	case !r.set:
		return []byte("null"), nil
	case r.infinite:
		return []byte(`"infinite"`), nil
	default:
		return []byte(strconv.Itoa(r.count)), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Repeat) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := ParseRepeat(v)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *Repeat) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	parsed, err := ParseRepeat(v)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
