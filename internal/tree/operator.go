package tree

import (
	"cmp"
	"fmt"

	"github.com/joeycumines/behave/internal/blackboard"
)

// Operator compares a blackboard key against a value.
type Operator int

const (
	IsSet Operator = iota
	IsNotSet
	IsEqual
	IsNotEqual
	IsGreaterOrEqual
	IsGreater
	IsSmallerOrEqual
	IsSmaller
	AlwaysTrue
)

var operatorNames = [...]string{
	IsSet:            "is-set",
	IsNotSet:         "is-not-set",
	IsEqual:          "==",
	IsNotEqual:       "!=",
	IsGreaterOrEqual: ">=",
	IsGreater:        ">",
	IsSmallerOrEqual: "<=",
	IsSmaller:        "<",
	AlwaysTrue:       "always-true",
}

func (o Operator) String() string {
	if o >= 0 && int(o) < len(operatorNames) {
		return operatorNames[o]
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// Evaluate applies the operator to the current value of key. Ordering
// operators are defined for numbers and for strings; they are false for
// unset keys and for mismatched kinds.
func (o Operator) Evaluate(bb *blackboard.Blackboard, key string, value any) bool {
	switch o {
	case AlwaysTrue:
		return true
	case IsSet:
		return bb.Has(key)
	case IsNotSet:
		return !bb.Has(key)
	}
	current, ok := bb.Value(key)
	if !ok {
		return false
	}
	want := blackboard.NewValue(value)
	switch o {
	case IsEqual:
		return current.Equal(want)
	case IsNotEqual:
		return !current.Equal(want)
	}
	c, ok := compare(current, want)
	if !ok {
		return false
	}
	switch o {
	case IsGreaterOrEqual:
		return c >= 0
	case IsGreater:
		return c > 0
	case IsSmallerOrEqual:
		return c <= 0
	case IsSmaller:
		return c < 0
	default:
		return false
	}
}

func compare(a, b blackboard.Value) (int, bool) {
	if x, ok := a.Number(); ok {
		y, ok := b.Number()
		return cmp.Compare(x, y), ok
	}
	x, ok1 := a.Raw().(string)
	y, ok2 := b.Raw().(string)
	return cmp.Compare(x, y), ok1 && ok2
}
