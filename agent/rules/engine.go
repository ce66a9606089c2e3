// Package rules evaluates business rules against classified requests
// before and after handler execution. Rules run in ascending priority;
// the first Reject stops the stage.
package rules

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/contract"
)

// Decision is a rule's verdict for one request. Zero value means Allow.
type Decision struct {
	Kind            contractx.RuleDecisionKind
	CustomerMessage string
	InternalReason  string
	Patch           contractx.FieldPatch
}

func Allow() Decision {
	return Decision{Kind: contractx.DecisionAllow}
}

// Reject carries two audiences: customerMessage is safe to show
// outward, internalReason stays in the audit trail.
func Reject(customerMessage, internalReason string) Decision {
	return Decision{
		Kind:            contractx.DecisionReject,
		CustomerMessage: customerMessage,
		InternalReason:  internalReason,
	}
}

func Modify(internalReason string, patch contractx.FieldPatch) Decision {
	return Decision{
		Kind:           contractx.DecisionModify,
		InternalReason: internalReason,
		Patch:          patch,
	}
}

// Rule is one declarative business constraint. Evaluate must be pure:
// same request, same decision.
type Rule struct {
	ID       string
	Stage    contractx.RuleStage
	Priority int
	Intents  []contractx.Intent
	Evaluate func(ctx context.Context, req contractx.ClassifiedRequest) Decision
}

func (r Rule) appliesTo(intent contractx.Intent) bool {
	if len(r.Intents) == 0 {
		return true
	}
	for _, i := range r.Intents {
		if i == intent {
			return true
		}
	}
	return false
}

// Outcome is the result of one stage run: the audit trail of every
// evaluated rule plus the possibly-patched request.
type Outcome struct {
	Decisions []contractx.RuleDecision
	Request   contractx.ClassifiedRequest
}

type ruleSet struct {
	pre  []Rule
	post []Rule
}

// Engine holds the active rule set behind an atomic pointer so Reload
// swaps the whole set at once. A request in flight keeps the snapshot
// it started with.
type Engine struct {
	active atomic.Pointer[ruleSet]
}

func NewEngine(rules ...Rule) (*Engine, error) {
	e := &Engine{}
	if err := e.Reload(rules...); err != nil {
		return nil, err
	}
	return e, nil
}

// Reload validates and atomically installs a new rule set. On error
// the previous set stays active.
func (e *Engine) Reload(rules ...Rule) error {
	seen := make(map[string]bool, len(rules))
	set := &ruleSet{}
	for _, r := range rules {
		if r.ID == "" {
			return errors.New("rule id is required")
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true
		if r.Evaluate == nil {
			return fmt.Errorf("rule %s has no evaluate function", r.ID)
		}
		switch r.Stage {
		case contractx.StagePre:
			set.pre = append(set.pre, r)
		case contractx.StagePost:
			set.post = append(set.post, r)
		default:
			return fmt.Errorf("rule %s has unknown stage %q", r.ID, r.Stage)
		}
	}
	sort.SliceStable(set.pre, func(i, j int) bool { return set.pre[i].Priority < set.pre[j].Priority })
	sort.SliceStable(set.post, func(i, j int) bool { return set.post[i].Priority < set.post[j].Priority })

	e.active.Store(set)
	log.Info().Int("pre", len(set.pre)).Int("post", len(set.post)).Msg("rule set loaded")
	return nil
}

// Snapshot pins the current rule set for the duration of one request.
type Snapshot struct {
	set *ruleSet
}

func (e *Engine) Snapshot() Snapshot {
	return Snapshot{set: e.active.Load()}
}

// Run evaluates one stage. Rules fire in ascending priority; the first
// Reject short-circuits the stage and surfaces as RuleViolationError.
// Modify patches compose additively across rules in priority order.
func (s Snapshot) Run(ctx context.Context, stage contractx.RuleStage, req contractx.ClassifiedRequest) (Outcome, error) {
	rules := s.set.pre
	if stage == contractx.StagePost {
		rules = s.set.post
	}

	out := Outcome{Request: req}
	for _, r := range rules {
		if !r.appliesTo(req.Intent) {
			continue
		}

		d := r.Evaluate(ctx, out.Request)
		if d.Kind == "" {
			d.Kind = contractx.DecisionAllow
		}
		out.Decisions = append(out.Decisions, contractx.RuleDecision{
			RuleID:          r.ID,
			Stage:           stage,
			Kind:            d.Kind,
			CustomerMessage: d.CustomerMessage,
			InternalReason:  d.InternalReason,
		})

		switch d.Kind {
		case contractx.DecisionReject:
			log.Info().
				Str("rule_id", r.ID).
				Str("request_id", req.ID).
				Str("stage", string(stage)).
				Str("reason", d.InternalReason).
				Msg("rule rejected request")
			return out, &contractx.RuleViolationError{
				RuleID:          r.ID,
				CustomerMessage: d.CustomerMessage,
				InternalReason:  d.InternalReason,
			}
		case contractx.DecisionModify:
			out.Request = applyPatch(out.Request, d.Patch)
		}
	}
	return out, nil
}

func applyPatch(req contractx.ClassifiedRequest, p contractx.FieldPatch) contractx.ClassifiedRequest {
	req.Fields.Quantity += p.QuantityDelta
	req.Fields.DiscountBps += p.DiscountBps
	if p.FlagWedding {
		req.Fields.WeddingOrder = true
	}
	return req
}
