package handlers

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/contract"
	toolx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/tool"
)

// Inventory answers stock questions and watches reorder thresholds.
// When it runs after a quoting or sales step it enriches the chain
// with availability and restock lead times for the SKU in play.
type Inventory struct {
	base
}

func NewInventory(gateway contractx.ToolGateway) *Inventory {
	return &Inventory{base{name: contractx.HandlerInventory, gateway: gateway}}
}

func (h *Inventory) Handle(ctx context.Context, req contractx.ClassifiedRequest, prior []contractx.HandlerResult) (contractx.HandlerResult, error) {
	result := newResult(h.name)

	if req.Fields.SKU == "" {
		return h.fullSnapshot(ctx, result)
	}

	stockCall, err := h.call(ctx, &result, toolx.ToolCheckStock, map[string]any{"sku": req.Fields.SKU})
	if err != nil {
		return result, err
	}
	stock := resultMap(stockCall)
	onHand := mapInt64(stock, "quantity_on_hand")
	belowThreshold := mapBool(stock, "below_threshold")

	result.Values[ValueQuantityOnHand] = onHand
	result.Values[ValueBelowThreshold] = belowThreshold

	// Restock lead time matters when the shelf cannot cover demand:
	// either a prior quote went to backorder, or stock fell under the
	// reorder threshold.
	needed := req.Fields.Quantity
	if quote, ok := priorQuote(prior); ok && quote.StockStatus == "backorder" {
		needed = quote.Quantity
	}
	if belowThreshold || onHand < needed {
		restock := needed - onHand
		if restock <= 0 {
			restock = mapInt64(stock, "reorder_threshold")
		}
		deliveryCall, err := h.call(ctx, &result, toolx.ToolGetSupplierDeliveryDate, map[string]any{
			"sku":      req.Fields.SKU,
			"quantity": restock,
		})
		if err == nil {
			result.Values[ValueEstimatedDelivery] = mapString(resultMap(deliveryCall), "estimated_date")
		}
	}

	result.Summary = fmt.Sprintf("%s: %d on hand", req.Fields.SKU, onHand)
	if belowThreshold {
		result.Summary += " (below reorder threshold)"
	}
	return result, nil
}

func (h *Inventory) fullSnapshot(ctx context.Context, result contractx.HandlerResult) (contractx.HandlerResult, error) {
	call, err := h.call(ctx, &result, toolx.ToolGetAllInventory, map[string]any{})
	if err != nil {
		return result, err
	}
	snapshot := resultMap(call)
	result.Values[ValueInventoryItems] = snapshot["items"]
	result.Summary = fmt.Sprintf("inventory snapshot: %d items", mapInt64(snapshot, "count"))
	return result, nil
}

func priorQuote(prior []contractx.HandlerResult) (*contractx.QuoteDetail, bool) {
	v, ok := priorValue(prior, ValueQuote)
	if !ok {
		return nil, false
	}
	quote, ok := v.(*contractx.QuoteDetail)
	return quote, ok
}
