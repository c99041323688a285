// SPDX-License-Identifier: Apache-2.0

package policyinterp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnilang/omnilang/internal/decision"
	"github.com/omnilang/omnilang/internal/policyinterp"
	"github.com/omnilang/omnilang/internal/policyir"
)

func TestExecute_StandardRuleMatches(t *testing.T) {
	ir := &policyir.IR{
		Rules: []policyir.Rule{
			{Kind: policyir.KindStandard, Condition: "role == \"admin\"", Action: "grant"},
		},
	}
	ctx := map[string]any{"role": "admin"}

	dec := policyinterp.Execute(ir, ctx, decision.Options{})

	require.Equal(t, []string{"grant"}, dec.Actions)
	assert.False(t, dec.GuardTriggered)
	assert.Equal(t, 1, dec.Metrics.RulesEvaluated)
	assert.Equal(t, 1, dec.Metrics.ActionsTriggered)
}

func TestExecute_StandardRuleNoMatch(t *testing.T) {
	ir := &policyir.IR{
		Rules: []policyir.Rule{
			{Kind: policyir.KindStandard, Condition: "role == \"admin\"", Action: "grant"},
		},
	}
	ctx := map[string]any{"role": "guest"}

	dec := policyinterp.Execute(ir, ctx, decision.Options{})

	assert.Empty(t, dec.Actions)
	assert.Equal(t, 0, dec.Metrics.ActionsTriggered)
}

func TestExecute_ForLoopIteratesCollection(t *testing.T) {
	ir := &policyir.IR{
		Rules: []policyir.Rule{
			{
				Kind:       policyir.KindFor,
				Iterator:   "item",
				Collection: "items",
				Guard:      &policyir.GuardMeta{MaxIterations: 50, MaxTimeMs: 1000},
				Body: []policyir.Rule{
					{Kind: policyir.KindStandard, Condition: "item == \"b\"", Action: "found-b"},
				},
			},
		},
	}
	ctx := map[string]any{"items": []any{"a", "b", "c"}}

	dec := policyinterp.Execute(ir, ctx, decision.Options{})

	require.Equal(t, []string{"found-b"}, dec.Actions)
	assert.Equal(t, 4, dec.Metrics.RulesEvaluated) // the for node + 3 iterations of its body
}

func TestExecute_ForLoopUnresolvedCollectionDefaultsToZeroIterations(t *testing.T) {
	ir := &policyir.IR{
		Rules: []policyir.Rule{
			{
				Kind:       policyir.KindFor,
				Iterator:   "item",
				Collection: "missing",
				Guard:      &policyir.GuardMeta{MaxIterations: 50, MaxTimeMs: 1000},
				Body: []policyir.Rule{
					{Kind: policyir.KindStandard, Condition: "item == \"x\"", Action: "never"},
				},
			},
		},
	}

	dec := policyinterp.Execute(ir, map[string]any{}, decision.Options{})

	assert.Empty(t, dec.Actions)
	assert.Equal(t, 1, dec.Metrics.RulesEvaluated) // only the for node itself, zero iterations
}

func TestExecute_ForLoopLegacyNullIterations(t *testing.T) {
	ir := &policyir.IR{
		Rules: []policyir.Rule{
			{
				Kind:       policyir.KindFor,
				Iterator:   "item",
				Collection: "missing",
				Guard:      &policyir.GuardMeta{MaxIterations: 50, MaxTimeMs: 1000},
				Body: []policyir.Rule{
					{Kind: policyir.KindStandard, Condition: "item == null", Action: "saw-null"},
				},
			},
		},
	}

	dec := policyinterp.Execute(ir, map[string]any{}, decision.Options{LegacyForNullIterations: true})

	assert.Equal(t, 4, dec.Metrics.RulesEvaluated) // the for node + 3 legacy null iterations
}

func TestExecute_ForLoopGuardTriggersOnIterationCap(t *testing.T) {
	big := make([]any, 10)
	for i := range big {
		big[i] = float64(i)
	}
	ir := &policyir.IR{
		Rules: []policyir.Rule{
			{
				Kind:       policyir.KindFor,
				Iterator:   "n",
				Collection: "items",
				Guard:      &policyir.GuardMeta{MaxIterations: 3, MaxTimeMs: 1000},
				Body: []policyir.Rule{
					{Kind: policyir.KindStandard, Condition: "n >= 0", Action: "tick"},
				},
			},
		},
	}

	dec := policyinterp.Execute(ir, map[string]any{"items": big}, decision.Options{})

	assert.True(t, dec.GuardTriggered)
	assert.Equal(t, 1, dec.Metrics.GuardHits)
	require.Len(t, dec.Actions, 3)
}

func TestExecute_WhileLoopGuardTriggersWithoutProgress(t *testing.T) {
	ir := &policyir.IR{
		Rules: []policyir.Rule{
			{
				Kind:      policyir.KindWhile,
				Condition: "flag == true",
				Guard:     &policyir.GuardMeta{MaxIterations: 2, MaxTimeMs: 1000},
				Body: []policyir.Rule{
					{Kind: policyir.KindStandard, Condition: "flag == true", Action: "spin"},
				},
			},
		},
	}

	dec := policyinterp.Execute(ir, map[string]any{"flag": true}, decision.Options{})

	assert.True(t, dec.GuardTriggered)
	assert.Equal(t, 1, dec.Metrics.GuardHits)
}

func TestExecute_MatchFirstArmWins(t *testing.T) {
	ir := &policyir.IR{
		Rules: []policyir.Rule{
			{
				Kind:      policyir.KindMatch,
				Scrutinee: "status",
				Arms: []policyir.MatchArm{
					{Pattern: "\"open\"", Action: "allow"},
					{Pattern: "\"closed\"", Action: "deny"},
				},
			},
		},
	}

	dec := policyinterp.Execute(ir, map[string]any{"status": "closed"}, decision.Options{})

	require.Equal(t, []string{"deny"}, dec.Actions)
	assert.Equal(t, 1, dec.Metrics.ActionsTriggered)
}

func TestExecute_MatchNoArmMatches(t *testing.T) {
	ir := &policyir.IR{
		Rules: []policyir.Rule{
			{
				Kind:      policyir.KindMatch,
				Scrutinee: "status",
				Arms: []policyir.MatchArm{
					{Pattern: "\"open\"", Action: "allow"},
				},
			},
		},
	}

	dec := policyinterp.Execute(ir, map[string]any{"status": "unknown"}, decision.Options{})

	assert.Empty(t, dec.Actions)
}

func TestExecute_SiblingRulesContinueAfterGuardHit(t *testing.T) {
	big := make([]any, 5)
	ir := &policyir.IR{
		Rules: []policyir.Rule{
			{
				Kind:       policyir.KindFor,
				Iterator:   "n",
				Collection: "items",
				Guard:      &policyir.GuardMeta{MaxIterations: 1, MaxTimeMs: 1000},
				Body: []policyir.Rule{
					{Kind: policyir.KindStandard, Condition: "n == n", Action: "tick"},
				},
			},
			{Kind: policyir.KindStandard, Condition: "done == true", Action: "final"},
		},
	}

	dec := policyinterp.Execute(ir, map[string]any{"items": big, "done": true}, decision.Options{})

	assert.True(t, dec.GuardTriggered)
	assert.Contains(t, dec.Actions, "final")
}
