package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookup(t *testing.T) {
	reg, err := NewRegistry(BuiltinTools()...)
	require.NoError(t, err)

	calc, ok := reg.Get("calculator")
	require.True(t, ok)
	assert.Equal(t, "calculator", calc.Name())

	_, ok = reg.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"calculator", "current_time", "sleep"}, reg.Names())
}

func TestRegistryDuplicateName(t *testing.T) {
	_, err := NewRegistry(&CalculatorTool{}, &CalculatorTool{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate tool name")
}

func TestValidateParams(t *testing.T) {
	reg, err := NewRegistry(BuiltinTools()...)
	require.NoError(t, err)

	assert.NoError(t, reg.ValidateParams("calculator", map[string]any{
		"operation": "add", "a": 2.0, "b": 3.0,
	}))

	err = reg.ValidateParams("calculator", map[string]any{"operation": "add"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "calculator")

	err = reg.ValidateParams("calculator", map[string]any{
		"operation": "pow", "a": 1.0, "b": 2.0,
	})
	assert.Error(t, err)

	assert.ErrorIs(t, reg.ValidateParams("missing", nil), ErrToolNotFound)
}

func TestCalculator(t *testing.T) {
	calc := &CalculatorTool{}
	ctx := context.Background()

	cases := []struct {
		op   string
		a, b float64
		want string
	}{
		{"add", 2, 3, "5"},
		{"subtract", 10, 4, "6"},
		{"multiply", 3, 3, "9"},
		{"divide", 7, 2, "3.5"},
	}
	for _, tc := range cases {
		t.Run(tc.op, func(t *testing.T) {
			got, err := calc.Execute(ctx, map[string]any{"operation": tc.op, "a": tc.a, "b": tc.b})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := calc.Execute(ctx, map[string]any{"operation": "divide", "a": 1.0, "b": 0.0})
	assert.Error(t, err)

	_, err = calc.Execute(ctx, map[string]any{"operation": "add", "a": "x", "b": 1.0})
	assert.Error(t, err)
}

func TestSleepCancellation(t *testing.T) {
	sleep := &SleepTool{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sleep.Execute(ctx, map[string]any{"seconds": 30.0})
	assert.ErrorIs(t, err, context.Canceled)
}
