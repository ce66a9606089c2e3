package handlers

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/contract"
	toolx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/tool"
)

// Sales turns an order into a committed transaction: price the order,
// verify stock, then move inventory and cash in one atomic commit.
type Sales struct {
	base
}

func NewSales(gateway contractx.ToolGateway) *Sales {
	return &Sales{base{name: contractx.HandlerSales, gateway: gateway}}
}

func (h *Sales) Handle(ctx context.Context, req contractx.ClassifiedRequest, prior []contractx.HandlerResult) (contractx.HandlerResult, error) {
	result := newResult(h.name)

	if req.Fields.SKU == "" {
		return result, fmt.Errorf("%w: sale request has no sku", contractx.ErrValidation)
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
	if onHand < req.Fields.Quantity {
		return result, fmt.Errorf("%w: %s has %d on hand, order needs %d",
			contractx.ErrInsufficientStock, req.Fields.SKU, onHand, req.Fields.Quantity)
	}

	_, _, total := quoteTotals(req.Fields.Quantity, unitPrice, req.Fields.DiscountBps)

	// The stock check above is advisory; the commit re-validates under
	// lock and is the only decision that counts.
	txCall, err := h.call(ctx, &result, toolx.ToolCreateTransaction, map[string]any{
		"request_id":       req.ID,
		"sku":              req.Fields.SKU,
		"quantity_delta":   -req.Fields.Quantity,
		"cash_delta_cents": total,
		"memo":             fmt.Sprintf("sale of %d x %s to %s", req.Fields.Quantity, req.Fields.SKU, req.CustomerID),
	})
	if err != nil {
		return result, err
	}

	tx, ok := txCall.Result.(contractx.Transaction)
	if !ok {
		return result, fmt.Errorf("%w: create_transaction returned no transaction", contractx.ErrPermanentFailure)
	}
	result.Transaction = &tx
	result.Values[ValueSale] = &contractx.SaleDetail{
		TransactionID: tx.ID,
		SKU:           req.Fields.SKU,
		Quantity:      req.Fields.Quantity,
		TotalCents:    total,
	}

	result.Summary = fmt.Sprintf("sold %d x %s for %d cents, transaction %s",
		req.Fields.Quantity, req.Fields.SKU, total, tx.ID)
	return result, nil
}
