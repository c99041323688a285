// SPDX-License-Identifier: Apache-2.0

// Package policyinterp walks a Policy IR's tree view against a JSON
// context, producing a Decision. It mirrors original_source/src/ir_interpreter.rs: guard
// checks run iteration-count before elapsed-time, both before each loop
// iteration's body; a Match rule evaluates its arms as synthesized
// equality conditions and stops at the first match without aborting
// sibling rules.
package policyinterp

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/omnilang/omnilang/internal/condition"
	"github.com/omnilang/omnilang/internal/decision"
	"github.com/omnilang/omnilang/internal/obs"
	"github.com/omnilang/omnilang/internal/policyir"
)

// run carries the mutable state threaded through one Execute call. Each
// run is assigned its own TraceId which is stamped onto
// every log line it produces via obs.Logger, and its rules_evaluated /
// actions_triggered / guard_hits / duration_ms are folded into the
// process-wide obs.Default counters once evaluation completes.
type run struct {
	dec *decision.Decision
	opts decision.Options
	started time.Time
	step int
	warned map[string]bool
	log *obs.Logger
}

// Execute interprets ir's rule tree against ctx (typically a JSON value
// decoded to map[string]any/[]any/etc.) and returns a fully-populated
// Decision. It never returns an error: unresolved paths and guard hits
// are recorded in the Decision itself rather than aborting evaluation.
func Execute(ir *policyir.IR, ctx any, opts decision.Options) *decision.Decision {
	traceID := obs.NextTraceID()
	r := &run{
		dec: &decision.Decision{Actions: []string{}, Logs: []string{}, Traces: []decision.TraceEvent{}},
		opts: opts,
		started: time.Now(),
		warned: map[string]bool{},
		log: obs.NewLogger(nil).WithTrace(traceID),
	}
	r.logLine("INFO", "execution started")
	r.trace("start", "execution started")
	for _, rule := range ir.Rules {
		r.evalRule(rule, ctx)
	}
	r.dec.Metrics.DurationMs = time.Since(r.started).Milliseconds()
	r.logLine("INFO", "execution finished")
	r.trace("end", "execution finished")
	obs.Default.Record(r.dec.Metrics.RulesEvaluated, r.dec.Metrics.ActionsTriggered, r.dec.Metrics.GuardHits, r.dec.Metrics.DurationMs)
	return r.dec
}

// logLine formats message through r.log and appends it to the
// Decision's log list (the Decision is the canonical sink; obs.Logger's
// own sink is left nil here to avoid double-writing to an external
// destination the caller hasn't configured).
func (r *run) logLine(level, message string) {
	r.dec.Logs = append(r.dec.Logs, r.log.Log(level, message))
}

func (r *run) warn(message string) {
	if r.warned[message] {
		return
	}
	r.warned[message] = true
	r.logLine("WARN", message)
	slog.Warn("condition evaluation warning", "message", message)
}

func (r *run) trace(phase, message string) {
	r.step++
	r.dec.Traces = append(r.dec.Traces, decision.TraceEvent{
		Step: r.step,
		Phase: phase,
		Message: message,
		ElapsedMs: time.Since(r.started).Milliseconds(),
	})
}

// evalRule dispatches on rule.Kind, exactly mirroring eval_rule in
// original_source/src/ir_interpreter.rs.
func (r *run) evalRule(rule policyir.Rule, ctx any) {
	r.dec.Metrics.RulesEvaluated++
	switch rule.Kind {
	case policyir.KindStandard:
		r.evalStandard(rule, ctx)
	case policyir.KindFor:
		r.evalFor(rule, ctx)
	case policyir.KindWhile:
		r.evalWhile(rule, ctx)
	case policyir.KindMatch:
		r.evalMatch(rule, ctx)
	}
}

func (r *run) evalStandard(rule policyir.Rule, ctx any) {
	matched, err := condition.Evaluate(rule.Condition, ctx, r.warn)
	if err != nil {
		r.logLine("ERROR", fmt.Sprintf("condition error: %s", err))
		r.trace("standard", fmt.Sprintf("condition %q errored: %s", rule.Condition, err))
		return
	}
	if !matched {
		r.trace("standard", fmt.Sprintf("condition %q did not match", rule.Condition))
		return
	}
	r.dec.Actions = append(r.dec.Actions, rule.Action)
	r.dec.Metrics.ActionsTriggered++
	r.logLine("INFO", fmt.Sprintf("rule matched: %s -> %s", rule.Condition, rule.Action))
	r.trace("standard", fmt.Sprintf("condition %q matched, action %q triggered", rule.Condition, rule.Action))
}

// evalFor resolves rule.Collection to a slice of elements and evaluates
// rule.Body once per element with rule.Iterator bound to the element's
// value in ctx. Guard checks (iteration count, then elapsed time) run
// before every iteration's body, matching the Rust original's ordering.
func (r *run) evalFor(rule policyir.Rule, ctx any) {
	elems, ok := resolvePath(ctx, rule.Collection)
	if !ok {
		if r.opts.LegacyForNullIterations {
			elems = []any{nil, nil, nil}
		} else {
			r.trace("for", fmt.Sprintf("collection %q did not resolve to an array, 0 iterations", rule.Collection))
			return
		}
	}

	guard := rule.Guard
	for i, elem := range elems {
		if guard != nil && i >= guard.MaxIterations {
			r.guardHit(fmt.Sprintf("for loop over %q exceeded max iterations (%d)", rule.Collection, guard.MaxIterations))
			break
		}
		if guard != nil && guard.MaxTimeMs > 0 && time.Since(r.started).Milliseconds() >= int64(guard.MaxTimeMs) {
			r.guardHit(fmt.Sprintf("for loop over %q exceeded max time (%dms)", rule.Collection, guard.MaxTimeMs))
			break
		}

		iterCtx := bindIterator(ctx, rule.Iterator, elem)
		r.trace("for", fmt.Sprintf("iteration %d of %q bound to %q", i, rule.Collection, rule.Iterator))
		for _, body := range rule.Body {
			r.evalRule(body, iterCtx)
		}
	}
}

// evalWhile re-evaluates rule.Condition before each iteration, checking
// guards (iteration count then elapsed time) before the body runs.
func (r *run) evalWhile(rule policyir.Rule, ctx any) {
	guard := rule.Guard
	for i := 0; ; i++ {
		matched, err := condition.Evaluate(rule.Condition, ctx, r.warn)
		if err != nil {
			r.logLine("ERROR", fmt.Sprintf("condition error: %s", err))
			return
		}
		if !matched {
			return
		}

		if guard != nil && i >= guard.MaxIterations {
			r.guardHit(fmt.Sprintf("while loop on %q exceeded max iterations (%d)", rule.Condition, guard.MaxIterations))
			return
		}
		if guard != nil && guard.MaxTimeMs > 0 && time.Since(r.started).Milliseconds() >= int64(guard.MaxTimeMs) {
			r.guardHit(fmt.Sprintf("while loop on %q exceeded max time (%dms)", rule.Condition, guard.MaxTimeMs))
			return
		}

		r.trace("while", fmt.Sprintf("iteration %d of %q", i, rule.Condition))
		for _, body := range rule.Body {
			r.evalRule(body, ctx)
		}
	}
}

func (r *run) guardHit(message string) {
	r.dec.GuardTriggered = true
	r.dec.Metrics.GuardHits++
	r.logLine("WARN", "guard triggered: "+message)
	r.trace("guard", message)
}

// evalMatch synthesizes "<scrutinee> == <pattern>" as a condition string
// for each arm in order, pushing the first arm's action whose synthesized
// condition evaluates true and stopping consideration of further arms
// for this node (sibling rules still run).
func (r *run) evalMatch(rule policyir.Rule, ctx any) {
	for _, arm := range rule.Arms {
		probe := rule.Scrutinee + " == " + arm.Pattern
		matched, err := condition.Evaluate(probe, ctx, r.warn)
		if err != nil {
			r.logLine("ERROR", fmt.Sprintf("condition error: %s", err))
			continue
		}
		if !matched {
			continue
		}
		r.dec.Actions = append(r.dec.Actions, arm.Action)
		r.dec.Metrics.ActionsTriggered++
		r.logLine("INFO", fmt.Sprintf("match arm matched: %s -> %s", probe, arm.Action))
		r.trace("match", fmt.Sprintf("scrutinee %q matched pattern %q, action %q triggered", rule.Scrutinee, arm.Pattern, arm.Action))
		return
	}
	r.trace("match", fmt.Sprintf("scrutinee %q matched no arm", rule.Scrutinee))
}

// resolvePath walks a dotted/bracket-indexed path (e.g. "a.b[0].c")
// through ctx, mirroring the segment parsing in internal/condition's
// scanPath. It reports ok=false whenever any segment fails to resolve,
// or the final value is not a []any.
func resolvePath(ctx any, path string) ([]any, bool) {
	if path == "" {
		return nil, false
	}
	cur := ctx
	for _, seg := range splitPath(path) {
		if idx, isIndex := seg.index(); isIndex {
			list, ok := cur.([]any)
			if !ok || idx < 0 || idx >= len(list) {
				return nil, false
			}
			cur = list[idx]
			continue
		}
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		val, ok := obj[seg.name]
		if !ok {
			return nil, false
		}
		cur = val
	}
	list, ok := cur.([]any)
	if !ok {
		return nil, false
	}
	return list, true
}

// pathSegment is either a field name or a bracket index.
type pathSegment struct {
	name string
	idx int
	isI bool
}

func (s pathSegment) index() (int, bool) { return s.idx, s.isI }

// splitPath breaks "a.b[0].c" into [{name:a} {name:b} {idx:0} {name:c}].
func splitPath(path string) []pathSegment {
	var segs []pathSegment
	for _, dotPart := range strings.Split(path, ".") {
		name, rest := dotPart, ""
		if i := strings.IndexByte(dotPart, '['); i >= 0 {
			name, rest = dotPart[:i], dotPart[i:]
		}
		if name != "" {
			segs = append(segs, pathSegment{name: name})
		}
		for len(rest) > 0 {
			if rest[0] != '[' {
				break
			}
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				break
			}
			n, err := strconv.Atoi(rest[1:end])
			if err != nil {
				break
			}
			segs = append(segs, pathSegment{idx: n, isI: true})
			rest = rest[end+1:]
		}
	}
	return segs
}

// bindIterator returns a shallow copy of ctx (when ctx is an object) with
// name bound to value, so nested rule bodies can reference the loop
// variable by name via the ordinary condition-path resolver. If ctx is
// not an object, a fresh single-key object is returned.
func bindIterator(ctx any, name string, value any) any {
	out := map[string]any{name: value}
	if obj, ok := ctx.(map[string]any); ok {
		for k, v := range obj {
			if k == name {
				continue
			}
			out[k] = v
		}
	}
	return out
}
