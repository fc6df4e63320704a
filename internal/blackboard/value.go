package blackboard

import (
	"fmt"
	"math"
	"reflect"
)

// Kind is the tag carried by every stored value.
type Kind int

const (
	KindNumber Kind = iota
	KindBool
	KindString
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is a tagged blackboard entry. The raw value is retained so that
// reads return exactly what was written; num holds the normalized form of
// numeric values.
type Value struct {
	kind Kind
	num  float64
	raw  any
}

// NewValue tags v. Integers, unsigned integers and floats are numbers,
// everything that is not a bool or a string is an object reference.
func NewValue(v any) Value {
	if n, ok := ToNumber(v); ok {
		return Value{kind: KindNumber, num: n, raw: v}
	}
	switch v.(type) {
	case bool:
		return Value{kind: KindBool, raw: v}
	case string:
		return Value{kind: KindString, raw: v}
	default:
		return Value{kind: KindObject, raw: v}
	}
}

// Kind returns the tag of v.
func (v Value) Kind() Kind { return v.kind }

// Raw returns the value as it was written.
func (v Value) Raw() any { return v.raw }

// Number returns the normalized numeric value, false unless the value is a number.
func (v Value) Number() (float64, bool) { return v.num, v.kind == KindNumber }

// Equal reports whether v and o hold the same value: numbers, bools and
// strings compare by value, objects by reference.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num || (math.IsNaN(v.num) && math.IsNaN(o.num))
	case KindBool, KindString:
		return v.raw == o.raw
	default:
		return sameObject(v.raw, o.raw)
	}
}

// Equal reports whether a and b are equal under blackboard semantics.
func Equal(a, b any) bool { return NewValue(a).Equal(NewValue(b)) }

// ToNumber converts any Go numeric type to float64.
func ToNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func sameObject(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}
	if va.Comparable() {
		return va.Equal(vb)
	}
	return false
}
