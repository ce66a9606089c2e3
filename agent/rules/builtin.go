package rules

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/contract"
)

const (
	// BulkDiscountMinQuantity is the order size at which the standing
	// volume discount kicks in.
	BulkDiscountMinQuantity = 100
	// BulkDiscountBps is the volume discount in basis points.
	BulkDiscountBps = 1000

	// MaxOrderQuantity caps a single quote or sale.
	MaxOrderQuantity = 1000
)

// BuiltinRules is the standing policy set loaded at startup. Callers
// may append their own rules before handing the set to NewEngine.
func BuiltinRules() []Rule {
	return []Rule{
		WeddingOrderRule(),
		OrderLimitRule(),
		BulkDiscountRule(),
		NonPositiveQuantityRule(),
	}
}

// WeddingOrderRule declines event catering orders, which the business
// does not serve. The outward message never mentions the policy's
// internal rationale.
func WeddingOrderRule() Rule {
	return Rule{
		ID:       "no-wedding-orders",
		Stage:    contractx.StagePre,
		Priority: 10,
		Intents:  []contractx.Intent{contractx.IntentQuote, contractx.IntentSale},
		Evaluate: func(ctx context.Context, req contractx.ClassifiedRequest) Decision {
			if !req.Fields.WeddingOrder {
				return Allow()
			}
			return Reject(
				"We are unable to take orders for wedding or event supplies at this time.",
				fmt.Sprintf("wedding_order flag set on request %s; event orders excluded by standing policy", req.ID),
			)
		},
	}
}

// OrderLimitRule caps a single order at MaxOrderQuantity units.
func OrderLimitRule() Rule {
	return Rule{
		ID:       "order-quantity-limit",
		Stage:    contractx.StagePre,
		Priority: 20,
		Intents:  []contractx.Intent{contractx.IntentQuote, contractx.IntentSale},
		Evaluate: func(ctx context.Context, req contractx.ClassifiedRequest) Decision {
			if req.Fields.Quantity <= MaxOrderQuantity {
				return Allow()
			}
			return Reject(
				fmt.Sprintf("Orders are limited to %d units. Please split larger orders.", MaxOrderQuantity),
				fmt.Sprintf("quantity %d exceeds per-order cap %d", req.Fields.Quantity, MaxOrderQuantity),
			)
		},
	}
}

// BulkDiscountRule grants the standing volume discount to qualifying
// orders by patching the discount field.
func BulkDiscountRule() Rule {
	return Rule{
		ID:       "bulk-discount",
		Stage:    contractx.StagePre,
		Priority: 30,
		Intents:  []contractx.Intent{contractx.IntentQuote, contractx.IntentSale},
		Evaluate: func(ctx context.Context, req contractx.ClassifiedRequest) Decision {
			if req.Fields.Quantity < BulkDiscountMinQuantity || req.Fields.DiscountBps >= BulkDiscountBps {
				return Allow()
			}
			return Modify(
				fmt.Sprintf("order of %d units qualifies for volume discount", req.Fields.Quantity),
				contractx.FieldPatch{DiscountBps: BulkDiscountBps - req.Fields.DiscountBps},
			)
		},
	}
}

// NonPositiveQuantityRule rejects quotes and sales without a usable
// quantity before any handler spends tool calls on them.
func NonPositiveQuantityRule() Rule {
	return Rule{
		ID:       "positive-quantity",
		Stage:    contractx.StagePre,
		Priority: 5,
		Intents:  []contractx.Intent{contractx.IntentQuote, contractx.IntentSale},
		Evaluate: func(ctx context.Context, req contractx.ClassifiedRequest) Decision {
			if req.Fields.Quantity > 0 {
				return Allow()
			}
			return Reject(
				"Please tell us how many units you need so we can help.",
				fmt.Sprintf("quantity %d is not positive", req.Fields.Quantity),
			)
		},
	}
}
