package actionflow

import (
	"reflect"
)

// changed reports whether next differs from prev in a shallow comparison:
// sequences element by element, maps key by key, structs field by field.
// Elements themselves are compared by identity, so a nested map that was
// mutated in place is not seen as a change.
func changed(prev, next any) bool {
	if prev == nil || next == nil {
		return prev != nil || next != nil
	}
	a, b := reflect.ValueOf(prev), reflect.ValueOf(next)
	if a.Type() != b.Type() {
		return true
	}

	switch a.Kind() {
	case reflect.Slice:
		if a.IsNil() != b.IsNil() {
			return true
		}
		fallthrough
	case reflect.Array:
		if a.Len() != b.Len() {
			return true
		}
		for i := 0; i < a.Len(); i++ {
			if !identical(a.Index(i), b.Index(i)) {
				return true
			}
		}
		return false

	case reflect.Map:
		if a.IsNil() != b.IsNil() || a.Len() != b.Len() {
			return true
		}
		iter := a.MapRange()
		for iter.Next() {
			other := b.MapIndex(iter.Key())
			if !other.IsValid() || !identical(iter.Value(), other) {
				return true
			}
		}
		return false

	case reflect.Struct:
		for i := 0; i < a.NumField(); i++ {
			if !identical(a.Field(i), b.Field(i)) {
				return true
			}
		}
		return false
	}
	return !identical(a, b)
}

// identical compares reference kinds by address and everything else by value.
func identical(a, b reflect.Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case reflect.Interface:
		if a.IsNil() || b.IsNil() {
			return a.IsNil() == b.IsNil()
		}
		a, b = a.Elem(), b.Elem()
		if a.Type() != b.Type() {
			return false
		}
		return identical(a, b)
	case reflect.Slice:
		return a.Pointer() == b.Pointer() && a.Len() == b.Len()
	case reflect.Map, reflect.Pointer, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return a.Pointer() == b.Pointer()
	case reflect.Struct:
		for i := 0; i < a.NumField(); i++ {
			if !identical(a.Field(i), b.Field(i)) {
				return false
			}
		}
		return true
	case reflect.Array:
		for i := 0; i < a.Len(); i++ {
			if !identical(a.Index(i), b.Index(i)) {
				return false
			}
		}
		return true
	}
	return a.Equal(b)
}
