// SPDX-License-Identifier: Apache-2.0

package policyast_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/omnilang/omnilang/internal/policyast"
)

func TestRule_ExactlyOneVariant(t *testing.T) {
	rules := []policyast.Rule{
		{Standard: &policyast.StandardRule{Condition: "a > 1", Action: "notify"}},
		{For: &policyast.ForLoop{Iterator: "x", Collection: "items"}},
		{While: &policyast.WhileLoop{Condition: "a < 1"}},
		{Match: &policyast.MatchRule{Scrutinee: "a.kind"}},
	}
	for _, r := range rules {
		count := 0
		if r.Standard != nil {
			count++
		}
		if r.For != nil {
			count++
		}
		if r.While != nil {
			count++
		}
		if r.Match != nil {
			count++
		}
		assert.Equal(t, 1, count)
	}
}

func TestContext_UnknownSubKeywords(t *testing.T) {
	ctx := policyast.Context{
		Domain:  "finance",
		Unknown: map[string]string{"Jurisdiction": "EU"},
	}
	assert.Equal(t, "EU", ctx.Unknown["Jurisdiction"])
}
