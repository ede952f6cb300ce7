package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// ErrUndefinedVariable is returned when a manifest references a variable
// that is not set and has no default.
var ErrUndefinedVariable = errors.New("undefined variable")

// varPattern matches ${NAME} and ${NAME:-default}.
var varPattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)(?::-([^}]*))?\}`)

// Lookup resolves a variable name.
type Lookup func(name string) (string, bool)

// EnvLookup resolves variables from the process environment.
func EnvLookup(name string) (string, bool) {
	return os.LookupEnv(name)
}

// MapLookup resolves variables from vars.
func MapLookup(vars map[string]string) Lookup {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

// Expand returns a copy of c with variable references in every string value
// replaced. Map keys are left alone. All undefined names are reported in a
// single error wrapping ErrUndefinedVariable.
func Expand(c Config, lookup Lookup) (Config, error) {
	if lookup == nil {
		lookup = EnvLookup
	}
	missing := make(map[string]struct{})
	out := expandValue(c.data, lookup, missing)
	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for n := range missing {
			names = append(names, n)
		}
		sort.Strings(names)
		return Config{}, fmt.Errorf("%w: %s", ErrUndefinedVariable, strings.Join(names, ", "))
	}
	m, _ := out.(map[string]any)
	return New(m), nil
}

func expandValue(v any, lookup Lookup, missing map[string]struct{}) any {
	switch val := v.(type) {
	case string:
		return expandString(val, lookup, missing)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = expandValue(item, lookup, missing)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = expandValue(item, lookup, missing)
		}
		return out
	default:
		return v
	}
}

func expandString(s string, lookup Lookup, missing map[string]struct{}) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := varPattern.FindStringSubmatch(match)
		name := sub[1]
		if v, ok := lookup(name); ok {
			return v
		}
		if strings.Contains(match, ":-") {
			return sub[2]
		}
		missing[name] = struct{}{}
		return match
	})
}
