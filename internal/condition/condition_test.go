// SPDX-License-Identifier: Apache-2.0

package condition_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnilang/omnilang/internal/condition"
)

func eval(t *testing.T, cond string, ctx any) bool {
	t.Helper()
	v, err := condition.Evaluate(cond, ctx, nil)
	require.NoError(t, err)
	return v
}

func TestEvaluate_BasicComparisons(t *testing.T) {
	ctx := map[string]any{"Distance": 0.5}
	assert.True(t, eval(t, "Distance < 1m", ctx))
	assert.False(t, eval(t, "Distance > 1m", ctx))
}

func TestEvaluate_UnitNormalizationLaws(t *testing.T) {
	cases := []struct {
		cond string
		ctx  map[string]any
	}{
		{"x == 25%", map[string]any{"x": 0.25}},
		{"pct == x", map[string]any{"pct": 0.25, "x": 0.25}},
	}
	for _, tt := range cases {
		assert.True(t, eval(t, tt.cond, tt.ctx), tt.cond)
	}

	assert.True(t, eval(t, "a == b", map[string]any{"a": 25.0 / 100.0, "b": 0.25}))

	lhs, err := condition.Evaluate(`x == 1km`, map[string]any{"x": 1000.0}, nil)
	require.NoError(t, err)
	assert.True(t, lhs)
}

func TestEvaluate_OrAndNotDeMorgan(t *testing.T) {
	ctx := map[string]any{"a": true, "b": false}
	a := eval(t, `flagA == true`, map[string]any{"flagA": true})
	assert.True(t, a)

	for _, av := range []bool{true, false} {
		for _, bv := range []bool{true, false} {
			ctx := map[string]any{"a": av, "b": bv}
			or := eval(t, "a == true OR b == true", ctx)
			demorgan := eval(t, "NOT a == true AND NOT b == true", ctx)
			assert.Equal(t, or, !demorgan, "a=%v b=%v", av, bv)
		}
	}
	_ = ctx
}

func TestEvaluate_InOperatorArrayAndEquivalence(t *testing.T) {
	ctx := map[string]any{"x": 2.0}
	assert.True(t, eval(t, "x IN [1, 2, 3]", ctx))
	assert.False(t, eval(t, "x IN [4, 5, 6]", ctx))

	inResult := eval(t, "x IN [2, 9]", ctx)
	orEquivalent := eval(t, "x == 2 OR x == 9", ctx)
	assert.Equal(t, inResult, orEquivalent)
}

func TestEvaluate_MissingPathIsFalseNotError(t *testing.T) {
	warned := ""
	v, err := condition.Evaluate("Missing == 1", map[string]any{}, func(msg string) { warned = msg })
	require.NoError(t, err)
	assert.False(t, v)
	assert.Contains(t, warned, "Missing")
}

func TestEvaluate_CrossTypeComparisonIsFalse(t *testing.T) {
	ctx := map[string]any{"a": 1.0, "b": "1"}
	assert.False(t, eval(t, "a == b", ctx))
}

func TestEvaluate_DotPathAndArrayIndex(t *testing.T) {
	ctx := map[string]any{
		"items": []any{
			map[string]any{"id": 1.0},
			map[string]any{"id": 2.0},
		},
	}
	assert.True(t, eval(t, "items[1].id == 2", ctx))
}

func TestEvaluate_StandaloneBooleanLiteral(t *testing.T) {
	assert.True(t, eval(t, "true", map[string]any{}))
}
