package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruthiness(t *testing.T) {
	assert.True(t, NilVal().IsFalsey())
	assert.True(t, BoolVal(false).IsFalsey())

	assert.False(t, BoolVal(true).IsFalsey())
	assert.False(t, NumberVal(0).IsFalsey())
	assert.False(t, NumberVal(-1).IsFalsey())
}

func TestEquality(t *testing.T) {
	assert.True(t, NilVal().Equals(NilVal()))
	assert.True(t, BoolVal(true).Equals(BoolVal(true)))
	assert.True(t, NumberVal(3).Equals(NumberVal(3)))

	assert.False(t, NumberVal(3).Equals(NumberVal(4)))
	assert.False(t, NumberVal(0).Equals(NilVal()))
	assert.False(t, BoolVal(false).Equals(NilVal()))
}

func TestIsInteger(t *testing.T) {
	assert.True(t, NumberVal(3).IsInteger())
	assert.True(t, NumberVal(-2).IsInteger())
	assert.False(t, NumberVal(3.5).IsInteger())
	assert.False(t, NilVal().IsInteger())
}

func TestNumberFormatting(t *testing.T) {
	tests := []struct {
		number   float64
		expected string
	}{
		{6, "6"},
		{-4, "-4"},
		{2.5, "2.5"},
		{0, "0"},
		{1e21, "1e+21"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, NumberVal(tt.number).Str())
	}
}

func TestStrAndRepr(t *testing.T) {
	assert.Equal(t, "nil", NilVal().Str())
	assert.Equal(t, "true", BoolVal(true).Str())
	assert.Equal(t, "false", BoolVal(false).Repr())
}
