// SPDX-License-Identifier: Apache-2.0

// Package policyir builds the serializable Policy IR from a Policy AST
// and renders it to the stable wire format documented in pkg/wire.
package policyir

import (
	"encoding/json"

	"github.com/samber/oops"

	"github.com/omnilang/omnilang/internal/policyast"
	"github.com/omnilang/omnilang/pkg/wire"
)

// RuleKind discriminates the four Rule shapes in the wire format. Values
// are snake_case.
type RuleKind string

const (
	KindStandard RuleKind = "standard"
	KindFor RuleKind = "for"
	KindWhile RuleKind = "while"
	KindMatch RuleKind = "match"
)

// GuardMeta bounds loop execution. Stamped onto every For/While node at
// build time with the current default bounds.
type GuardMeta struct {
	MaxIterations int `json:"max_iterations"`
	MaxTimeMs     int `json:"max_time_ms"`
}

// DefaultMaxIterations and DefaultMaxTimeMs are the guard bounds stamped
// onto every For/While node at build time. They may be overridden at
// process startup by internal/config, which loads them from a YAML
// configuration file.
var (
	DefaultMaxIterations = 50
	DefaultMaxTimeMs = 1000
)

// MatchArm is one arm of a Match rule in the wire format.
type MatchArm struct {
	Pattern string `json:"pattern"`
	Action string `json:"action"`
}

// Rule is the tagged Rule node used by both the tree and flat views. Only
// the fields relevant to Kind are populated; the rest are zero values
// omitted from JSON.
type Rule struct {
	Kind RuleKind `json:"kind"`
	Condition string `json:"condition,omitempty"`
	Action string `json:"action,omitempty"`
	Iterator string `json:"iterator,omitempty"`
	Collection string `json:"collection,omitempty"`
	Scrutinee string `json:"scrutinee,omitempty"`
	Arms []MatchArm `json:"arms,omitempty"`
	Body []Rule `json:"body,omitempty"`
	Guard *GuardMeta `json:"guard,omitempty"`
}

// Actor, Context, Constraint, Impact, Trace and Review mirror their AST
// counterparts with JSON tags for the wire format.
type Actor struct {
	Role string `json:"role"`
	Primary bool `json:"primary"`
}

type Context struct {
	Domain string `json:"domain,omitempty"`
	Location string `json:"location,omitempty"`
	Phase string `json:"phase,omitempty"`
	Unknown map[string]string `json:"unknown,omitempty"`
}

type Constraint struct {
	Kind string `json:"kind"`
	Description string `json:"description"`
}

type Impact struct {
	Kind string `json:"kind"`
	Description string `json:"description"`
}

type Trace struct {
	Kind string `json:"kind"`
	Link string `json:"link"`
}

type Review struct {
	Interval string `json:"interval"`
	Criteria string `json:"criteria"`
}

// IR is the root of a built Policy IR document — isomorphic to the
// Policy AST but serializable and stable across versions.
type IR struct {
	Intent *string `json:"intent"`
	Actors []Actor `json:"actors"`
	Context *Context `json:"context"`
	Assumptions []string `json:"assumptions"`
	Rules []Rule `json:"rules"`
	FlatRules []Rule `json:"flat_rules"`
	Constraints []Constraint `json:"constraints"`
	Impacts []Impact `json:"impacts"`
	Traces []Trace `json:"traces"`
	Reviews []Review `json:"reviews"`
}

// Build converts a Policy AST to a Policy IR by a straight structural
// mapping, stamping guard metadata on every loop node and deriving the
// flat view in the same pass.
func Build(pol *policyast.Policy) *IR {
	ir := &IR{
		Actors: make([]Actor, 0, len(pol.Actors)),
		Assumptions: append(make([]string, 0, len(pol.Assumptions)), pol.Assumptions...),
		Rules: buildRules(pol.Rules),
		Constraints: make([]Constraint, 0, len(pol.Constraints)),
		Impacts: make([]Impact, 0, len(pol.Impacts)),
		Traces: make([]Trace, 0, len(pol.Traces)),
		Reviews: make([]Review, 0, len(pol.Reviews)),
	}
	if pol.Intent != "" {
		intent := pol.Intent
		ir.Intent = &intent
	}
	for _, a := range pol.Actors {
		ir.Actors = append(ir.Actors, Actor{Role: a.Role, Primary: a.Primary})
	}
	if pol.Context != nil {
		ir.Context = &Context{
			Domain: pol.Context.Domain,
			Location: pol.Context.Location,
			Phase: pol.Context.Phase,
			Unknown: pol.Context.Unknown,
		}
	}
	for _, c := range pol.Constraints {
		ir.Constraints = append(ir.Constraints, Constraint{Kind: string(c.Kind), Description: c.Description})
	}
	for _, i := range pol.Impacts {
		ir.Impacts = append(ir.Impacts, Impact{Kind: string(i.Kind), Description: i.Description})
	}
	for _, tr := range pol.Traces {
		ir.Traces = append(ir.Traces, Trace{Kind: string(tr.Kind), Link: tr.Link})
	}
	for _, rv := range pol.Reviews {
		ir.Reviews = append(ir.Reviews, Review{Interval: rv.Interval, Criteria: rv.Criteria})
	}
	ir.FlatRules = flatten(ir.Rules)
	return ir
}

func buildRules(rules []policyast.Rule) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		out = append(out, buildRule(r))
	}
	return out
}

func buildRule(r policyast.Rule) Rule {
	switch {
	case r.Standard != nil:
		return Rule{Kind: KindStandard, Condition: r.Standard.Condition, Action: r.Standard.Action}
	case r.For != nil:
		return Rule{
			Kind: KindFor,
			Iterator: r.For.Iterator,
			Collection: r.For.Collection,
			Body: buildRules(r.For.Body),
			Guard: &GuardMeta{MaxIterations: DefaultMaxIterations, MaxTimeMs: DefaultMaxTimeMs},
		}
	case r.While != nil:
		return Rule{
			Kind: KindWhile,
			Condition: r.While.Condition,
			Body: buildRules(r.While.Body),
			Guard: &GuardMeta{MaxIterations: DefaultMaxIterations, MaxTimeMs: DefaultMaxTimeMs},
		}
	case r.Match != nil:
		arms := make([]MatchArm, len(r.Match.Arms))
		for i, a := range r.Match.Arms {
			arms[i] = MatchArm{Pattern: a.Pattern, Action: a.Action}
		}
		return Rule{Kind: KindMatch, Scrutinee: r.Match.Scrutinee, Arms: arms}
	}
	return Rule{}
}

// flatten produces the flat view: Standard and Match nodes are copied
// as-is; For/While nodes are copied with an empty Body, immediately
// followed by their recursively flattened children. The flat view
// preserves document order and contains every Standard rule exactly once.
func flatten(rules []Rule) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		switch r.Kind {
		case KindFor, KindWhile:
			shallow := r
			shallow.Body = nil
			out = append(out, shallow)
			out = append(out, flatten(r.Body)...)
		default:
			out = append(out, r)
		}
	}
	return out
}

// Validate checks ir's wire representation against the published Policy
// IR JSON Schema (pkg/wire), catching accidental drift between this
// package's struct shape and the documented wire contract.
func (ir *IR) Validate() error {
	data, err := json.Marshal(ir)
	if err != nil {
		return oops.In("policyir").Hint("failed to marshal IR for validation").Wrap(err)
	}
	return wire.ValidateIR(data)
}
