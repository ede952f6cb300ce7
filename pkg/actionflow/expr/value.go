package expr

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

type node interface {
	eval(payload any) any
}

type literal struct{ v any }

func (l literal) eval(any) any { return l.v }

type pathNode []string

func (p pathNode) eval(payload any) any {
	segs := []string(p)
	cur := payload
	if segs[0] == "payload" || segs[0] == "$" {
		segs = segs[1:]
	}
	for _, s := range segs {
		var ok bool
		if cur, ok = field(cur, s); !ok {
			return nil
		}
	}
	return cur
}

type notNode struct{ inner node }

func (n notNode) eval(payload any) any { return !IsTruthy(n.inner.eval(payload)) }

type andNode struct{ left, right node }

func (n andNode) eval(payload any) any {
	return IsTruthy(n.left.eval(payload)) && IsTruthy(n.right.eval(payload))
}

type orNode struct{ left, right node }

func (n orNode) eval(payload any) any {
	return IsTruthy(n.left.eval(payload)) || IsTruthy(n.right.eval(payload))
}

type cmpNode struct {
	op          string
	fn          BinaryOp
	left, right node
}

func (n cmpNode) eval(payload any) any {
	return n.fn(n.left.eval(payload), n.right.eval(payload))
}

var builtinOps = map[string]BinaryOp{
	"==":       func(l, r any) bool { return format(l) == format(r) },
	"!=":       func(l, r any) bool { return format(l) != format(r) },
	"<":        func(l, r any) bool { return ToFloat64(l) < ToFloat64(r) },
	">":        func(l, r any) bool { return ToFloat64(l) > ToFloat64(r) },
	"<=":       func(l, r any) bool { return ToFloat64(l) <= ToFloat64(r) },
	">=":       func(l, r any) bool { return ToFloat64(l) >= ToFloat64(r) },
	"contains": func(l, r any) bool { return strings.Contains(format(l), format(r)) },
}

func format(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%v", v)
}

// field looks up name on v: a key of a string-keyed map, an exported struct
// field (by name or json tag) or an index into a slice.
func field(v any, name string) (any, bool) {
	switch m := v.(type) {
	case nil:
		return nil, false
	case map[string]any:
		val, ok := m[name]
		return val, ok
	case map[string]string:
		val, ok := m[name]
		return val, ok
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		val := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !val.IsValid() {
			return nil, false
		}
		return val.Interface(), true

	case reflect.Struct:
		t := rv.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if f.Name == name || tag == name {
				return rv.Field(i).Interface(), true
			}
		}
		return nil, false

	case reflect.Slice, reflect.Array:
		i, err := strconv.Atoi(name)
		if err != nil || i < 0 || i >= rv.Len() {
			return nil, false
		}
		return rv.Index(i).Interface(), true
	}
	return nil, false
}

// IsTruthy returns whether a value is truthy.
// nil is false, bools return their value, empty strings are false,
// zero numbers are false, everything else is true.
func IsTruthy(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != ""
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return ToFloat64(val) != 0
	default:
		return true
	}
}

// ToFloat64 converts a value to float64 for numeric comparison.
// Returns 0 for values that cannot be converted.
func ToFloat64(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int8:
		return float64(val)
	case int16:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case uint:
		return float64(val)
	case uint8:
		return float64(val)
	case uint16:
		return float64(val)
	case uint32:
		return float64(val)
	case uint64:
		return float64(val)
	case json.Number:
		f, _ := val.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f
	default:
		return 0
	}
}
