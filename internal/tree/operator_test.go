package tree

import (
	"testing"

	"github.com/joeycumines/behave/internal/blackboard"
	"github.com/stretchr/testify/require"
)

func TestOperator_Evaluate(t *testing.T) {
	t.Parallel()

	bb := blackboard.New()
	bb.Set("n", 5)
	bb.Set("s", "b")
	bb.Set("b", true)

	for _, tc := range []struct {
		op    Operator
		key   string
		value any
		want  bool
	}{
		{IsSet, "n", nil, true},
		{IsSet, "missing", nil, false},
		{IsNotSet, "missing", nil, true},
		{IsNotSet, "n", nil, false},
		{IsEqual, "n", 5, true},
		{IsEqual, "n", 5.0, true},
		{IsEqual, "n", "5", false},
		{IsEqual, "b", true, true},
		{IsNotEqual, "n", 4, true},
		{IsNotEqual, "missing", 4, false},
		{IsGreater, "n", 4, true},
		{IsGreater, "n", 5, false},
		{IsGreaterOrEqual, "n", 5, true},
		{IsSmaller, "n", 5, false},
		{IsSmallerOrEqual, "n", 5, true},
		{IsGreater, "s", "a", true},
		{IsSmaller, "s", "c", true},
		{IsGreater, "n", "a", false},
		{IsGreater, "s", 1, false},
		{IsGreater, "b", false, false},
		{IsSmaller, "missing", 1, false},
		{AlwaysTrue, "missing", nil, true},
	} {
		require.Equal(t, tc.want, tc.op.Evaluate(bb, tc.key, tc.value), "%s %s %v", tc.key, tc.op, tc.value)
	}
}

func TestOperator_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "==", IsEqual.String())
	require.Equal(t, "is-not-set", IsNotSet.String())
	require.Equal(t, "Operator(99)", Operator(99).String())
}
