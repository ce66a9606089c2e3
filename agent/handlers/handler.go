// Package handlers implements the five business domain handlers. Each
// handler consumes a classified request, works exclusively through its
// declared tool set, and never mutates shared state except by proposing
// transactions through create_transaction.
package handlers

import (
	"context"

	contractx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/contract"
	toolx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/tool"
)

// Values keys shared between chain steps and the result builder.
const (
	ValueQuote             = "quote"
	ValueSale              = "sale"
	ValueEstimatedDelivery = "estimated_delivery"
	ValueCashBalance       = "cash_balance_cents"
	ValueQuantityOnHand    = "quantity_on_hand"
	ValueBelowThreshold    = "below_threshold"
	ValueInventoryItems    = "inventory_items"
	ValueFinancialReport   = "financial_report"
	ValueQuoteHistory      = "quote_history"
)

type base struct {
	name    contractx.HandlerName
	gateway contractx.ToolGateway
}

func (b base) Name() contractx.HandlerName {
	return b.name
}

func (b base) Tools() []string {
	return toolx.AllowedFor(b.name)
}

// call invokes a tool and records the attempt on the result whether it
// succeeded or not, so the audit trail keeps failed calls too.
func (b base) call(ctx context.Context, result *contractx.HandlerResult, tool string, args map[string]any) (contractx.ToolCall, error) {
	call, err := b.gateway.Invoke(ctx, b.name, tool, args)
	result.ToolCalls = append(result.ToolCalls, call)
	return call, err
}

func newResult(name contractx.HandlerName) contractx.HandlerResult {
	return contractx.HandlerResult{Handler: name, Values: map[string]any{}}
}

func resultMap(call contractx.ToolCall) map[string]any {
	m, _ := call.Result.(map[string]any)
	return m
}

func mapInt64(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func mapString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func mapBool(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

// priorValue walks earlier chain steps newest-first for a named value.
func priorValue(prior []contractx.HandlerResult, key string) (any, bool) {
	for i := len(prior) - 1; i >= 0; i-- {
		if v, ok := prior[i].Values[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// quoteTotals computes the money breakdown for quantity units at
// unitPriceCents with a discount in basis points. Division truncates
// toward zero, which always favors the customer by a fraction of a
// cent at most.
func quoteTotals(quantity, unitPriceCents, discountBps int64) (subtotal, discount, total int64) {
	subtotal = quantity * unitPriceCents
	discount = subtotal * discountBps / 10_000
	total = subtotal - discount
	return subtotal, discount, total
}
