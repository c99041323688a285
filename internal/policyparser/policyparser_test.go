// SPDX-License-Identifier: Apache-2.0

package policyparser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnilang/omnilang/internal/lexer"
	"github.com/omnilang/omnilang/internal/policyparser"
)

func TestParse_DemoSensorRule(t *testing.T) {
	toks, err := lexer.TokenizePolicy("RULE: - IF Distance < 1m THEN Stop")
	require.NoError(t, err)
	pol, err := policyparser.Parse(toks)
	require.NoError(t, err)
	require.Len(t, pol.Rules, 1)
	require.NotNil(t, pol.Rules[0].Standard)
	assert.Equal(t, "Distance < 1m", pol.Rules[0].Standard.Condition)
	assert.Equal(t, "Stop", pol.Rules[0].Standard.Action)
}

func TestParse_ForLoopBody(t *testing.T) {
	src := `RULE:
- FOR item IN items {
- IF item == 1 THEN ActOne
- IF item == 2 THEN ActTwo
}`
	toks, err := lexer.TokenizePolicy(src)
	require.NoError(t, err)
	pol, err := policyparser.Parse(toks)
	require.NoError(t, err)
	require.Len(t, pol.Rules, 1)
	forLoop := pol.Rules[0].For
	require.NotNil(t, forLoop)
	assert.Equal(t, "item", forLoop.Iterator)
	assert.Equal(t, "items", forLoop.Collection)
	require.Len(t, forLoop.Body, 2)
	assert.Equal(t, "ActOne", forLoop.Body[0].Standard.Action)
	assert.Equal(t, "ActTwo", forLoop.Body[1].Standard.Action)
}

func TestParse_WhileLoop(t *testing.T) {
	src := `RULE:
- WHILE count < 10 {
- IF true THEN Tick
}`
	toks, err := lexer.TokenizePolicy(src)
	require.NoError(t, err)
	pol, err := policyparser.Parse(toks)
	require.NoError(t, err)
	require.Len(t, pol.Rules, 1)
	require.NotNil(t, pol.Rules[0].While)
	assert.Equal(t, "count < 10", pol.Rules[0].While.Condition)
	require.Len(t, pol.Rules[0].While.Body, 1)
}

func TestParse_MatchRule(t *testing.T) {
	src := `RULE:
- MATCH status {
- "ok" => Continue
- "fail" => Abort
}`
	toks, err := lexer.TokenizePolicy(src)
	require.NoError(t, err)
	pol, err := policyparser.Parse(toks)
	require.NoError(t, err)
	require.Len(t, pol.Rules, 1)
	m := pol.Rules[0].Match
	require.NotNil(t, m)
	assert.Equal(t, "status", m.Scrutinee)
	require.Len(t, m.Arms, 2)
	assert.Equal(t, "Continue", m.Arms[0].Action)
	assert.Equal(t, "Abort", m.Arms[1].Action)
}

func TestParse_ActorsPrimaryAndSecondary(t *testing.T) {
	src := `ACTOR:
- Primary: Regulator
- Secondary: Auditor
- Observer`
	toks, err := lexer.TokenizePolicy(src)
	require.NoError(t, err)
	pol, err := policyparser.Parse(toks)
	require.NoError(t, err)
	require.Len(t, pol.Actors, 3)
	assert.Equal(t, "Regulator", pol.Actors[0].Role)
	assert.True(t, pol.Actors[0].Primary)
	assert.Equal(t, "Auditor", pol.Actors[1].Role)
	assert.False(t, pol.Actors[1].Primary)
	assert.Equal(t, "Observer", pol.Actors[2].Role)
	assert.True(t, pol.Actors[2].Primary)
}

func TestParse_ContextKnownAndUnknownFields(t *testing.T) {
	src := `CONTEXT:
- Domain: finance
- Location: EU
- Jurisdiction: strict`
	toks, err := lexer.TokenizePolicy(src)
	require.NoError(t, err)
	pol, err := policyparser.Parse(toks)
	require.NoError(t, err)
	require.NotNil(t, pol.Context)
	assert.Equal(t, "finance", pol.Context.Domain)
	assert.Equal(t, "EU", pol.Context.Location)
	assert.Equal(t, "strict", pol.Context.Unknown["Jurisdiction"])
}

func TestParse_ConstraintUnknownKindFallback(t *testing.T) {
	src := `CONSTRAINT:
- Legal: Must comply with GDPR
- Whimsical: Something unusual`
	toks, err := lexer.TokenizePolicy(src)
	require.NoError(t, err)
	pol, err := policyparser.Parse(toks)
	require.NoError(t, err)
	require.Len(t, pol.Constraints, 2)
	assert.EqualValues(t, "Legal", pol.Constraints[0].Kind)
	assert.EqualValues(t, "Unknown", pol.Constraints[1].Kind)
}

func TestParse_DuplicateSectionIsError(t *testing.T) {
	src := `INTENT: reduce risk
INTENT: reduce risk again`
	toks, err := lexer.TokenizePolicy(src)
	require.NoError(t, err)
	_, err = policyparser.Parse(toks)
	require.Error(t, err)
}

func TestParse_UnexpectedTokenNamesLineAndFound(t *testing.T) {
	toks, err := lexer.TokenizePolicy(`RULE: - WHEN x THEN y`)
	require.NoError(t, err)
	_, err = policyparser.Parse(toks)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line")
}

func TestParse_InBracketNormalization(t *testing.T) {
	toks, err := lexer.TokenizePolicy(`RULE: - IF x IN[1,2,3] THEN Flag`)
	require.NoError(t, err)
	pol, err := policyparser.Parse(toks)
	require.NoError(t, err)
	require.Len(t, pol.Rules, 1)
	assert.Contains(t, pol.Rules[0].Standard.Condition, "IN [")
}
