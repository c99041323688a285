// SPDX-License-Identifier: Apache-2.0

// Package wire generates and validates the JSON Schemas for OmniLang's two
// public wire documents: the Policy IR and the Decision. The Decision
// schema is reflected from internal/decision.Decision itself; the IR
// schema is reflected from irSample, a copy of internal/policyir.IR's
// shape kept in this package.
package wire

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/omnilang/omnilang/internal/decision"
)

// SchemaID is the canonical identifier embedded in generated schemas.
const SchemaID = "https://omnilang.dev/schema"

type schemaState struct {
	once sync.Once
	schema *jschema.Schema
	err error
}

var (
	irSchemaState = &schemaState{}
	decisionSchemaState = &schemaState{}
)

// GenerateIRSchema reflects the Policy IR JSON Schema from sample, a value
// shaped like internal/policyir.IR. It takes an any to avoid an import cycle between
// internal/policyir (which calls ValidateIR) and this package.
func GenerateIRSchema(sample any) ([]byte, error) {
	return generateSchema(sample, "OmniLang Policy IR", "Schema for the Policy IR wire document")
}

// GenerateDecisionSchema reflects the Decision JSON Schema from
// internal/decision.Decision.
func GenerateDecisionSchema() ([]byte, error) {
	return generateSchema(&decision.Decision{}, "OmniLang Decision", "Schema for the Decision wire document")
}

func generateSchema(sample any, title, description string) ([]byte, error) {
	r := jsonschema.Reflector{DoNotReference: true}
	schema := r.Reflect(sample)
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = title
	schema.Description = description

	data, err := json.MarshalIndent(schema, "", " ")
	if err != nil {
		return nil, oops.In("wire").Hint("failed to marshal schema").Wrap(err)
	}
	return append(data, '\n'), nil
}

// ValidateIR validates a marshaled Policy IR document against its schema.
func ValidateIR(data []byte) error {
	return validate(data, irSchemaState, func() ([]byte, error) {
		return GenerateIRSchema(&irSample{})
	})
}

// ValidateDecision validates a marshaled Decision document against its
// schema.
func ValidateDecision(data []byte) error {
	return validate(data, decisionSchemaState, func() ([]byte, error) {
		return GenerateDecisionSchema()
	})
}

// irSample is a zero-valued stand-in shaped exactly like
// internal/policyir.IR, used only for schema reflection so this package
// does not need to import policyir (which imports this package to call
// ValidateIR).
type irSample struct {
	Intent *string `json:"intent"`
	Actors []irActor `json:"actors"`
	Context *irContext `json:"context"`
	Assumptions []string `json:"assumptions"`
	Rules []irRule `json:"rules"`
	FlatRules []irRule `json:"flat_rules"`
	Constraints []irConstraint `json:"constraints"`
	Impacts []irImpact `json:"impacts"`
	Traces []irTrace `json:"traces"`
	Reviews []irReview `json:"reviews"`
}

type irActor struct {
	Role string `json:"role"`
	Primary bool `json:"primary"`
}

type irContext struct {
	Domain string `json:"domain,omitempty"`
	Location string `json:"location,omitempty"`
	Phase string `json:"phase,omitempty"`
	Unknown map[string]string `json:"unknown,omitempty"`
}

type irGuard struct {
	MaxIterations int `json:"max_iterations"`
	MaxTimeMs int `json:"max_time_ms"`
}

type irMatchArm struct {
	Pattern string `json:"pattern"`
	Action string `json:"action"`
}

type irRule struct {
	Kind string `json:"kind"`
	Condition string `json:"condition,omitempty"`
	Action string `json:"action,omitempty"`
	Iterator string `json:"iterator,omitempty"`
	Collection string `json:"collection,omitempty"`
	Scrutinee string `json:"scrutinee,omitempty"`
	Arms []irMatchArm `json:"arms,omitempty"`
	Body []irRule `json:"body,omitempty"`
	Guard *irGuard `json:"guard,omitempty"`
}

type irConstraint struct {
	Kind string `json:"kind"`
	Description string `json:"description"`
}

type irImpact struct {
	Kind string `json:"kind"`
	Description string `json:"description"`
}

type irTrace struct {
	Kind string `json:"kind"`
	Link string `json:"link"`
}

type irReview struct {
	Interval string `json:"interval"`
	Criteria string `json:"criteria"`
}

func validate(data []byte, state *schemaState, generate func() ([]byte, error)) error {
	sch, err := compiled(state, generate)
	if err != nil {
		return oops.In("wire").Hint("failed to compile schema").Wrap(err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return oops.In("wire").Hint("invalid JSON document").Wrap(err)
	}
	if err := sch.Validate(doc); err != nil {
		return oops.In("wire").Hint("schema validation failed").Wrap(err)
	}
	return nil
}

func compiled(state *schemaState, generate func() ([]byte, error)) (*jschema.Schema, error) {
	state.once.Do(func() {
		state.schema, state.err = compile(generate)
	})
	return state.schema, state.err
}

func compile(generate func() ([]byte, error)) (*jschema.Schema, error) {
	schemaBytes, err := generate()
	if err != nil {
		return nil, err
	}
	var schemaData any
	if err := json.Unmarshal(schemaBytes, &schemaData); err != nil {
		return nil, oops.In("wire").Hint("failed to parse generated schema JSON").Wrap(err)
	}
	c := jschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaData); err != nil {
		return nil, oops.In("wire").Hint("failed to add schema resource").Wrap(err)
	}
	return c.Compile("schema.json")
}
