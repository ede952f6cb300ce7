package actionflow

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequired(t *testing.T) {
	var nilMap map[string]any
	var nilPtr *int

	tests := []struct {
		name string
		mode RequiredMode
		in   any
		ok   bool
	}{
		{"defined accepts empty string", RequiredDefined, "", true},
		{"defined accepts zero", RequiredDefined, 0, true},
		{"defined rejects nil", RequiredDefined, nil, false},
		{"defined rejects typed nil map", RequiredDefined, nilMap, false},
		{"defined rejects typed nil pointer", RequiredDefined, nilPtr, false},
		{"non-empty rejects empty string", RequiredNonEmpty, "", false},
		{"non-empty rejects empty slice", RequiredNonEmpty, []int{}, false},
		{"non-empty rejects empty map", RequiredNonEmpty, map[string]int{}, false},
		{"non-empty accepts false", RequiredNonEmpty, false, true},
		{"non-empty accepts value", RequiredNonEmpty, "x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			rec := register(t, e, Action{ID: "ch", Required: tt.mode})

			resp := e.Call(bg, "ch", tt.in)
			assert.Equal(t, tt.ok, resp.OK)
			if tt.ok {
				assert.Equal(t, 1, rec.count())
				return
			}
			assert.True(t, resp.Error)
			assert.ErrorIs(t, resp.Err, ErrValidationFailed)
			var te *TalentError
			require.True(t, errors.As(resp.Err, &te))
			assert.Equal(t, TalentRequired, te.Talent)
			assert.Zero(t, rec.count())
		})
	}
}

func TestSchema(t *testing.T) {
	normalize := func(p any) SchemaResult {
		s, ok := p.(string)
		if !ok {
			return SchemaResult{Errors: []string{"not a string", "too odd"}}
		}
		return SchemaResult{OK: true, Data: strings.ToUpper(s)}
	}

	e, _ := newTestEngine(t)
	rec := register(t, e, Action{ID: "ch", Schema: normalize})

	resp := e.Call(bg, "ch", "abc")
	require.True(t, resp.OK)
	assert.Equal(t, "ABC", rec.last(), "schema data replaces the payload")

	resp = e.Call(bg, "ch", 42)
	assert.True(t, resp.Error)
	assert.ErrorIs(t, resp.Err, ErrValidationFailed)
	assert.Equal(t, "schema validation failed: not a string; too odd", resp.Message)

	resp = e.Call(bg, "ch", nil)
	assert.ErrorIs(t, resp.Err, ErrValidationFailed, "schema implies required")
	assert.Equal(t, 1, rec.count())
}

func TestSchemaFromBool(t *testing.T) {
	e, _ := newTestEngine(t)
	rec := register(t, e, Action{
		ID:     "ch",
		Schema: SchemaFromBool(func(p any) bool { _, ok := p.(int); return ok }),
	})

	assert.True(t, e.Call(bg, "ch", 7).OK)
	assert.Equal(t, 7, rec.last(), "payload kept when schema returns no data")

	resp := e.Call(bg, "ch", "seven")
	assert.ErrorIs(t, resp.Err, ErrValidationFailed)
}

func TestSelector(t *testing.T) {
	e, _ := newTestEngine(t)
	rec := register(t, e, Action{
		ID: "ch",
		Selector: func(p any) (any, error) {
			m, ok := p.(map[string]any)
			if !ok {
				return nil, errors.New("want a map")
			}
			return m["user"], nil
		},
	})

	resp := e.Call(bg, "ch", map[string]any{"user": "ada", "extra": 1})
	require.True(t, resp.OK)
	assert.Equal(t, "ada", rec.last())
	assert.Equal(t, "ada", resp.Payload)

	resp = e.Call(bg, "ch", "nope")
	assert.True(t, resp.Error)
	assert.ErrorIs(t, resp.Err, ErrSelectorFailed)
	assert.Contains(t, resp.Message, "want a map")
}

func TestCondition(t *testing.T) {
	e, _ := newTestEngine(t)
	rec := register(t, e, Action{
		ID:        "ch",
		Condition: func(p any) bool { return p.(int) > 10 },
	})

	resp := e.Call(bg, "ch", 5)
	assert.False(t, resp.OK)
	assert.False(t, resp.Error, "a false condition is a soft skip")
	assert.ErrorIs(t, resp.Err, ErrConditionNotMet)
	assert.Equal(t, "condition not met", resp.Message)

	assert.True(t, e.Call(bg, "ch", 11).OK)
	assert.Equal(t, []any{11}, rec.all())
}

func TestCondition_WhenExpression(t *testing.T) {
	e, _ := newTestEngine(t)
	rec := register(t, e, Action{
		ID:        "ch",
		When:      "score >= 3",
		Condition: func(p any) bool { return p.(map[string]any)["enabled"] == true },
	})

	call := func(score int, enabled bool) Response {
		return e.Call(bg, "ch", map[string]any{"score": score, "enabled": enabled})
	}

	assert.ErrorIs(t, call(2, true).Err, ErrConditionNotMet)
	assert.ErrorIs(t, call(5, false).Err, ErrConditionNotMet, "function and expression are ANDed")
	assert.True(t, call(5, true).OK)
	assert.Equal(t, 1, rec.count())
}

func TestTransform(t *testing.T) {
	e, _ := newTestEngine(t)
	rec := register(t, e, Action{
		ID: "ch",
		Transform: func(p any) (any, error) {
			n, ok := p.(int)
			if !ok {
				return nil, errors.New("want an int")
			}
			return n * 2, nil
		},
	})

	resp := e.Call(bg, "ch", 21)
	require.True(t, resp.OK)
	assert.Equal(t, 42, rec.last())

	resp = e.Call(bg, "ch", "x")
	assert.True(t, resp.Error)
	assert.ErrorIs(t, resp.Err, ErrTransformFailed)
	var te *TalentError
	require.True(t, errors.As(resp.Err, &te))
	assert.Equal(t, TalentTransform, te.Talent)
}

func TestTalentOrder(t *testing.T) {
	var order []string
	e, _ := newTestEngine(t)
	register(t, e, Action{
		ID: "ch",
		Schema: func(p any) SchemaResult {
			order = append(order, "schema")
			return SchemaResult{OK: true}
		},
		Selector: func(p any) (any, error) {
			order = append(order, "selector")
			return p, nil
		},
		Condition: func(p any) bool {
			order = append(order, "condition")
			return true
		},
		Transform: func(p any) (any, error) {
			order = append(order, "transform")
			return p, nil
		},
	})

	require.True(t, e.Call(bg, "ch", 1).OK)
	assert.Equal(t, []string{"schema", "selector", "condition", "transform"}, order)
}

func TestTalentPanics(t *testing.T) {
	boom := func(p any) (any, error) { panic("kaboom") }

	tests := []struct {
		name   string
		action Action
		stage  string
	}{
		{"schema", Action{ID: "ch", Schema: func(any) SchemaResult { panic("kaboom") }}, "schema"},
		{"selector", Action{ID: "ch", Selector: boom}, "selector"},
		{"condition", Action{ID: "ch", Condition: func(any) bool { panic("kaboom") }}, "condition"},
		{"transform", Action{ID: "ch", Transform: boom}, "transform"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			rec := register(t, e, tt.action)

			var resp Response
			require.NotPanics(t, func() { resp = e.Call(bg, "ch", 1) })

			assert.True(t, resp.Error)
			var pe *PanicError
			require.True(t, errors.As(resp.Err, &pe))
			assert.Equal(t, tt.stage, pe.Stage)
			assert.Equal(t, "kaboom", pe.Value)
			assert.NotEmpty(t, pe.Stack)
			assert.Zero(t, rec.count())
		})
	}
}

func TestDetectChanges(t *testing.T) {
	e, _ := newTestEngine(t)
	rec := register(t, e, Action{ID: "ch", DetectChanges: true})

	assert.True(t, e.Call(bg, "ch", map[string]any{"a": 1}).OK, "first call always passes")

	resp := e.Call(bg, "ch", map[string]any{"a": 1})
	assert.False(t, resp.OK)
	assert.False(t, resp.Error)
	assert.ErrorIs(t, resp.Err, ErrPayloadUnchanged)

	assert.True(t, e.Call(bg, "ch", map[string]any{"a": 2}).OK)
	assert.Equal(t, 2, rec.count())
}

func TestDetectChanges_SeededPayload(t *testing.T) {
	e, _ := newTestEngine(t)
	rec := register(t, e, Action{ID: "ch", DetectChanges: true, Payload: "initial"})

	assert.ErrorIs(t, e.Call(bg, "ch", "initial").Err, ErrPayloadUnchanged)
	assert.True(t, e.Call(bg, "ch", "next").OK)
	assert.Equal(t, 1, rec.count())
}

func TestChanged(t *testing.T) {
	shared := map[string]any{"k": 1}
	slice := []int{1, 2}

	type point struct{ X, Y int }
	type holder struct {
		Name string
		Tags []string
	}
	tags := []string{"a"}

	tests := []struct {
		name       string
		prev, next any
		want       bool
	}{
		{"both nil", nil, nil, false},
		{"nil to value", nil, 1, true},
		{"equal ints", 1, 1, false},
		{"different ints", 1, 2, true},
		{"different types", 1, int64(1), true},
		{"equal strings", "a", "a", false},
		{"equal slices", []int{1, 2}, []int{1, 2}, false},
		{"slice element differs", []int{1, 2}, []int{1, 3}, true},
		{"slice length differs", []int{1}, []int{1, 2}, true},
		{"nil vs empty slice", []int(nil), []int{}, true},
		{"equal maps", map[string]int{"a": 1}, map[string]int{"a": 1}, false},
		{"map value differs", map[string]int{"a": 1}, map[string]int{"a": 2}, true},
		{"map key differs", map[string]int{"a": 1}, map[string]int{"b": 1}, true},
		{"equal structs", point{1, 2}, point{1, 2}, false},
		{"struct field differs", point{1, 2}, point{1, 3}, true},
		{"nested map same reference", map[string]any{"n": shared}, map[string]any{"n": shared}, false},
		{"nested map new reference", map[string]any{"n": shared}, map[string]any{"n": map[string]any{"k": 1}}, true},
		{"nested slice same reference", []any{slice}, []any{slice}, false},
		{"struct with same slice", holder{"a", tags}, holder{"a", tags}, false},
		{"struct with copied slice", holder{"a", tags}, holder{"a", []string{"a"}}, true},
		{"interface values", []any{1, "x"}, []any{1, "x"}, false},
		{"interface nil element", []any{nil}, []any{1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, changed(tt.prev, tt.next))
		})
	}
}

func TestHasChanged(t *testing.T) {
	e, _ := newTestEngine(t)
	register(t, e, Action{ID: "ch"})

	assert.True(t, e.HasChanged("ch", 1), "no stored request yet")
	require.True(t, e.Call(bg, "ch", 1).OK)
	assert.False(t, e.HasChanged("ch", 1))
	assert.True(t, e.HasChanged("ch", 2))
}
