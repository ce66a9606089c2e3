package handlers

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/contract"
	toolx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/tool"
)

// CustomerService answers general inquiries from read-only lookups:
// quote history, availability, and pricing for whatever the classifier
// could pin down.
type CustomerService struct {
	base
}

func NewCustomerService(gateway contractx.ToolGateway) *CustomerService {
	return &CustomerService{base{name: contractx.HandlerCustomerService, gateway: gateway}}
}

func (h *CustomerService) Handle(ctx context.Context, req contractx.ClassifiedRequest, prior []contractx.HandlerResult) (contractx.HandlerResult, error) {
	result := newResult(h.name)

	terms := req.Fields.SearchTerms
	if len(terms) == 0 && req.CustomerID != "" {
		terms = []string{req.CustomerID}
	}

	var parts []string

	if len(terms) > 0 {
		historyCall, err := h.call(ctx, &result, toolx.ToolSearchQuoteHistory, map[string]any{"terms": terms})
		if err != nil {
			return result, err
		}
		history := resultMap(historyCall)
		result.Values[ValueQuoteHistory] = history["entries"]
		parts = append(parts, fmt.Sprintf("%d matching quotes", mapInt64(history, "count")))
	}

	if req.Fields.SKU != "" {
		stockCall, err := h.call(ctx, &result, toolx.ToolCheckStock, map[string]any{"sku": req.Fields.SKU})
		if err != nil {
			return result, err
		}
		onHand := mapInt64(resultMap(stockCall), "quantity_on_hand")
		result.Values[ValueQuantityOnHand] = onHand

		priceCall, err := h.call(ctx, &result, toolx.ToolGetItemPrice, map[string]any{"sku": req.Fields.SKU})
		if err != nil {
			return result, err
		}
		price := mapInt64(resultMap(priceCall), "unit_price_cents")
		parts = append(parts, fmt.Sprintf("%s: %d on hand at %d cents", req.Fields.SKU, onHand, price))
	}

	if len(parts) == 0 {
		parts = append(parts, "no records matched the inquiry")
	}
	result.Summary = strings.Join(parts, "; ")
	return result, nil
}
