// Package workflownode holds the node functions of the workflow
// execution graph. Each node consumes and returns the shared graph
// state; a node that observes a terminal status passes the state
// through untouched so the pipeline always reaches the finalize step.
package workflownode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/contract"
	handlersx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/handlers"
	rulesx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/rules"
)

const (
	msgClassificationFailed = "We could not understand your request. Please rephrase and try again."
	msgInternalFailure      = "Something went wrong while processing your request. Please try again later."
	msgInsufficientStock    = "We do not have enough stock to fulfil this order right now."
	msgCancelled            = "Your request was cancelled before any changes were made."
)

type GraphInput struct {
	Request contractx.Request
}

type GraphOutput struct {
	Result contractx.CustomerResult
}

// GraphState is the single mutable value threaded through the graph.
type GraphState struct {
	Request    contractx.Request
	Classified contractx.ClassifiedRequest

	Chain      []contractx.Handler
	ChainNames []contractx.HandlerName
	Rules      rulesx.Snapshot

	PreDecisions  []contractx.RuleDecision
	Steps         []contractx.StepRecord
	Results       []contractx.HandlerResult
	PostDecisions []contractx.RuleDecision

	// Final is set exactly once; any node seeing it non-empty skips.
	Final   contractx.FinalStatus
	Message string

	StartedAt time.Time
}

func (st *GraphState) done() bool {
	return st.Final != ""
}

// finish marks the terminal status with the customer-safe message.
func (st *GraphState) finish(status contractx.FinalStatus, message string) {
	if st.done() {
		return
	}
	st.Final = status
	st.Message = message
}

func ValidateRequest(in GraphInput, now func() time.Time) (*GraphState, error) {
	req := in.Request
	if strings.TrimSpace(req.RawText) == "" {
		return nil, fmt.Errorf("%w: request text is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(req.ID) == "" {
		req.ID = uuid.NewString()
	}
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = now().UTC()
	}
	req.State = contractx.RequestReceived

	return &GraphState{Request: req, StartedAt: now().UTC()}, nil
}

// Classify runs the classifier. Classification failures are terminal:
// the request fails without reaching any handler.
func Classify(ctx context.Context, st *GraphState, classifier contractx.Classifier) (*GraphState, error) {
	if st.done() {
		return st, nil
	}

	classified, err := classifier.Classify(ctx, st.Request)
	if err != nil {
		log.Warn().Err(err).Str("request_id", st.Request.ID).Msg("classification failed")
		st.finish(contractx.StatusFailed, msgClassificationFailed)
		return st, nil
	}

	st.Classified = classified
	st.Request.State = contractx.RequestClassified
	return st, nil
}

// Router is the routing surface the graph needs.
type Router interface {
	Route(intent contractx.Intent) ([]contractx.Handler, error)
	ChainNames(intent contractx.Intent) ([]contractx.HandlerName, error)
}

func Route(st *GraphState, router Router) (*GraphState, error) {
	if st.done() {
		return st, nil
	}

	chain, err := router.Route(st.Classified.Intent)
	if err != nil {
		log.Error().Err(err).Str("request_id", st.Request.ID).Msg("routing failed")
		st.finish(contractx.StatusFailed, msgInternalFailure)
		return st, nil
	}
	names, err := router.ChainNames(st.Classified.Intent)
	if err != nil {
		st.finish(contractx.StatusFailed, msgInternalFailure)
		return st, nil
	}

	st.Chain = chain
	st.ChainNames = names
	return st, nil
}

// RunPreRules evaluates the pre stage against the classified request.
// Modify patches land on the request the chain will see.
func RunPreRules(ctx context.Context, st *GraphState) (*GraphState, error) {
	if st.done() {
		return st, nil
	}

	out, err := st.Rules.Run(ctx, contractx.StagePre, st.Classified)
	st.PreDecisions = out.Decisions
	if err != nil {
		st.rejectOnRuleViolation(err)
		return st, nil
	}
	st.Classified = out.Request
	return st, nil
}

// RunChain executes the handler chain in order. A concurrent conflict
// gets exactly one step re-attempt; every other failure maps onto the
// error taxonomy. After the first committed transaction the chain
// keeps running even if the caller goes away, so a sale is never left
// half-finished.
func RunChain(ctx context.Context, st *GraphState, now func() time.Time) (*GraphState, error) {
	if st.done() {
		return st, nil
	}

	st.Request.State = contractx.RequestProcessing
	committed := false

	for _, handler := range st.Chain {
		if !committed && ctx.Err() != nil {
			st.finish(contractx.StatusCancelled, msgCancelled)
			return st, nil
		}
		stepCtx := ctx
		if committed {
			stepCtx = context.WithoutCancel(ctx)
		}

		step := contractx.StepRecord{Handler: handler.Name(), StartedAt: now().UTC()}

		result, err := handler.Handle(stepCtx, st.Classified, st.Results)
		if err != nil && errors.Is(err, contractx.ErrConcurrentConflict) {
			log.Warn().
				Str("request_id", st.Request.ID).
				Str("handler", string(handler.Name())).
				Msg("concurrent conflict, re-attempting step once")
			result, err = handler.Handle(stepCtx, st.Classified, st.Results)
		}

		step.ToolCalls = result.ToolCalls
		if result.Transaction != nil {
			step.TransactionID = result.Transaction.ID
			step.TransactionStatus = result.Transaction.Status
			if result.Transaction.Status == contractx.TxCommitted {
				committed = true
			}
		}
		step.FinishedAt = now().UTC()

		if err != nil {
			step.Error = err.Error()
			st.Steps = append(st.Steps, step)
			st.failStep(stepCtx, err)
			return st, nil
		}

		st.Steps = append(st.Steps, step)
		st.Results = append(st.Results, result)
	}
	return st, nil
}

// failStep maps a handler error onto a terminal status with a
// customer-safe message. Internal error text never leaks here.
func (st *GraphState) failStep(ctx context.Context, err error) {
	switch {
	case errors.Is(err, contractx.ErrRuleViolation):
		st.rejectOnRuleViolation(err)
	case errors.Is(err, contractx.ErrInsufficientStock):
		st.finish(contractx.StatusRejected, msgInsufficientStock)
	case errors.Is(err, contractx.ErrConcurrentConflict):
		// Re-attempt already spent.
		st.finish(contractx.StatusRejected, msgInternalFailure)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		st.finish(contractx.StatusCancelled, msgCancelled)
	default:
		st.finish(contractx.StatusFailed, msgInternalFailure)
	}
}

func (st *GraphState) rejectOnRuleViolation(err error) {
	var violation *contractx.RuleViolationError
	if errors.As(err, &violation) && violation.CustomerMessage != "" {
		st.finish(contractx.StatusRejected, violation.CustomerMessage)
		return
	}
	st.finish(contractx.StatusRejected, msgInternalFailure)
}

// RunPostRules evaluates the post stage over the executed request.
func RunPostRules(ctx context.Context, st *GraphState) (*GraphState, error) {
	if st.done() {
		return st, nil
	}

	out, err := st.Rules.Run(ctx, contractx.StagePost, st.Classified)
	st.PostDecisions = out.Decisions
	if err != nil {
		st.rejectOnRuleViolation(err)
	}
	return st, nil
}

// AppendHistory writes the append-only workflow record and hands a
// copy to the audit publisher. Publication is best-effort; the record
// in the store is the source of truth.
func AppendHistory(ctx context.Context, st *GraphState, store contractx.HistoryStore, publisher contractx.Publisher, now func() time.Time) (*GraphState, error) {
	if !st.done() {
		st.finish(contractx.StatusCompleted, "")
	}

	rec := contractx.WorkflowRecord{
		RequestID:         st.Request.ID,
		Intent:            st.Classified.Intent,
		Chain:             st.ChainNames,
		PreRuleDecisions:  st.PreDecisions,
		Steps:             st.Steps,
		PostRuleDecisions: st.PostDecisions,
		FinalStatus:       st.Final,
		CustomerMessage:   st.Message,
		ReceivedAt:        st.Request.ReceivedAt,
		FinishedAt:        now().UTC(),
	}

	// History must not be lost to a cancelled caller.
	storeCtx := context.WithoutCancel(ctx)
	if err := store.Append(storeCtx, rec); err != nil {
		return nil, fmt.Errorf("append workflow record: %w", err)
	}
	if publisher != nil {
		if err := publisher.Publish(storeCtx, rec); err != nil {
			log.Warn().Err(err).Str("request_id", rec.RequestID).Msg("audit publication failed")
		}
	}
	return st, nil
}

// Finalize builds the sanitized outward result.
func Finalize(st *GraphState) (GraphOutput, error) {
	result := contractx.CustomerResult{
		RequestID: st.Request.ID,
		Status:    st.Final,
		Message:   st.Message,
	}

	switch st.Final {
	case contractx.StatusCompleted:
		st.Request.State = contractx.RequestCompleted
		result.Quote = quoteFromResults(st.Results)
		result.Sale = saleFromResults(st.Results)
		if result.Message == "" {
			result.Message = completedMessage(result)
		}
	case contractx.StatusRejected:
		st.Request.State = contractx.RequestRejected
	case contractx.StatusCancelled:
		st.Request.State = contractx.RequestCancelled
	default:
		st.Request.State = contractx.RequestFailed
	}

	return GraphOutput{Result: result}, nil
}

func quoteFromResults(results []contractx.HandlerResult) *contractx.QuoteDetail {
	var quote *contractx.QuoteDetail
	var delivery string
	for _, r := range results {
		if v, ok := r.Values[handlersx.ValueQuote].(*contractx.QuoteDetail); ok {
			quote = v
		}
		if v, ok := r.Values[handlersx.ValueEstimatedDelivery].(string); ok {
			delivery = v
		}
	}
	if quote == nil {
		return nil
	}
	out := *quote
	out.EstimatedDelivery = delivery
	return &out
}

func saleFromResults(results []contractx.HandlerResult) *contractx.SaleDetail {
	for _, r := range results {
		if v, ok := r.Values[handlersx.ValueSale].(*contractx.SaleDetail); ok {
			return v
		}
	}
	return nil
}

func completedMessage(result contractx.CustomerResult) string {
	switch {
	case result.Sale != nil:
		return fmt.Sprintf("Your order of %d x %s is confirmed. Total: $%.2f.",
			result.Sale.Quantity, result.Sale.SKU, float64(result.Sale.TotalCents)/100)
	case result.Quote != nil:
		msg := fmt.Sprintf("Quote for %d x %s: $%.2f.",
			result.Quote.Quantity, result.Quote.SKU, float64(result.Quote.TotalCents)/100)
		if result.Quote.StockStatus == "backorder" && result.Quote.EstimatedDelivery != "" {
			msg += fmt.Sprintf(" Items are on backorder, estimated delivery %s.", result.Quote.EstimatedDelivery)
		}
		return msg
	default:
		return "Your request has been processed."
	}
}
