package handlers

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/contract"
	toolx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/tool"
)

// Finance reports on the cash position. Standing alone it answers
// finance inquiries; at the tail of a sale chain it verifies the cash
// balance reflects the committed transaction.
type Finance struct {
	base
}

func NewFinance(gateway contractx.ToolGateway) *Finance {
	return &Finance{base{name: contractx.HandlerFinance, gateway: gateway}}
}

func (h *Finance) Handle(ctx context.Context, req contractx.ClassifiedRequest, prior []contractx.HandlerResult) (contractx.HandlerResult, error) {
	result := newResult(h.name)

	balanceCall, err := h.call(ctx, &result, toolx.ToolGetCashBalance, map[string]any{})
	if err != nil {
		return result, err
	}
	balance := mapInt64(resultMap(balanceCall), "balance_cents")
	result.Values[ValueCashBalance] = balance

	if req.Intent == contractx.IntentFinanceInquiry {
		period := req.Fields.Period
		if period == "" {
			period = "current"
		}
		reportCall, err := h.call(ctx, &result, toolx.ToolGenerateFinancialReport, map[string]any{"period": period})
		if err != nil {
			return result, err
		}
		result.Values[ValueFinancialReport] = resultMap(reportCall)
		result.Summary = fmt.Sprintf("financial report for %s: cash %d cents", period, balance)
		return result, nil
	}

	result.Summary = fmt.Sprintf("cash balance verified: %d cents", balance)
	return result, nil
}
