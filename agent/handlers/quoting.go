package handlers

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/contract"
	toolx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/tool"
)

// Quoting prices an order without touching any state: unit price
// lookup, stock availability, and the composed money breakdown.
type Quoting struct {
	base
}

func NewQuoting(gateway contractx.ToolGateway) *Quoting {
	return &Quoting{base{name: contractx.HandlerQuoting, gateway: gateway}}
}

func (h *Quoting) Handle(ctx context.Context, req contractx.ClassifiedRequest, prior []contractx.HandlerResult) (contractx.HandlerResult, error) {
	result := newResult(h.name)

	if req.Fields.SKU == "" {
		return result, fmt.Errorf("%w: quote request has no sku", contractx.ErrValidation)
	}

	priceCall, err := h.call(ctx, &result, toolx.ToolGetItemPrice, map[string]any{"sku": req.Fields.SKU})
	if err != nil {
		return result, err
	}
	unitPrice := mapInt64(resultMap(priceCall), "unit_price_cents")

	stockCall, err := h.call(ctx, &result, toolx.ToolCheckStock, map[string]any{"sku": req.Fields.SKU})
	if err != nil {
		return result, err
	}
	onHand := mapInt64(resultMap(stockCall), "quantity_on_hand")

	subtotal, discount, total := quoteTotals(req.Fields.Quantity, unitPrice, req.Fields.DiscountBps)

	stockStatus := "available"
	if onHand < req.Fields.Quantity {
		stockStatus = "backorder"
	}

	quote := &contractx.QuoteDetail{
		SKU:            req.Fields.SKU,
		Quantity:       req.Fields.Quantity,
		UnitPriceCents: unitPrice,
		SubtotalCents:  subtotal,
		DiscountCents:  discount,
		TotalCents:     total,
		StockStatus:    stockStatus,
	}
	result.Values[ValueQuote] = quote
	result.Values[ValueQuantityOnHand] = onHand

	// Past quotes for the same customer give context for the audit
	// trail. A failure here is not worth failing the quote over.
	if historyCall, err := h.call(ctx, &result, toolx.ToolSearchQuoteHistory, map[string]any{
		"terms": []string{req.CustomerID, req.Fields.SKU},
	}); err == nil {
		result.Values[ValueQuoteHistory] = resultMap(historyCall)["entries"]
	}

	result.Summary = fmt.Sprintf("quoted %d x %s at %d cents: total %d cents (%s)",
		quote.Quantity, quote.SKU, quote.UnitPriceCents, quote.TotalCents, quote.StockStatus)
	return result, nil
}
