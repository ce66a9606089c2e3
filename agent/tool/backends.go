package tool

import (
	"context"
	"fmt"
	"time"

	contractx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/contract"
	ledgerx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/ledger"
)

// InventoryReader is the read side of the resource store the tool
// backends consume.
type InventoryReader interface {
	Item(ctx context.Context, sku string) (contractx.InventoryItem, error)
	Items(ctx context.Context) ([]contractx.InventoryItem, error)
	Balance(ctx context.Context, account string) (int64, error)
}

type QuoteSearcher interface {
	SearchQuotes(ctx context.Context, terms []string, limit int) ([]contractx.QuoteHistoryEntry, error)
}

// Backends binds every catalog tool to the ledger stores and the
// transaction coordinator. The returned map is ready for NewGateway.
func Backends(reader InventoryReader, quotes QuoteSearcher, coordinator contractx.Coordinator) map[string]Backend {
	return map[string]Backend{
		ToolCheckStock:              checkStockBackend(reader),
		ToolGetItemPrice:            getItemPriceBackend(reader),
		ToolGetAllInventory:         getAllInventoryBackend(reader),
		ToolGetSupplierDeliveryDate: supplierDeliveryBackend(),
		ToolSearchQuoteHistory:      searchQuoteHistoryBackend(quotes),
		ToolGetCashBalance:          getCashBalanceBackend(reader),
		ToolGenerateFinancialReport: financialReportBackend(reader),
		ToolCreateTransaction:       createTransactionBackend(coordinator),
	}
}

func checkStockBackend(reader InventoryReader) Backend {
	return func(ctx context.Context, args map[string]any) (any, error) {
		sku, _ := StringArg(args, "sku")
		item, err := reader.Item(ctx, sku)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"sku":               item.SKU,
			"quantity_on_hand":  item.QuantityOnHand,
			"reorder_threshold": item.ReorderThreshold,
			"below_threshold":   item.QuantityOnHand < item.ReorderThreshold,
		}, nil
	}
}

func getItemPriceBackend(reader InventoryReader) Backend {
	return func(ctx context.Context, args map[string]any) (any, error) {
		sku, _ := StringArg(args, "sku")
		item, err := reader.Item(ctx, sku)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"sku":              item.SKU,
			"unit_price_cents": item.UnitPriceCents,
		}, nil
	}
}

func getAllInventoryBackend(reader InventoryReader) Backend {
	return func(ctx context.Context, args map[string]any) (any, error) {
		items, err := reader.Items(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"items": items, "count": len(items)}, nil
	}
}

// supplierDeliveryBackend estimates restock lead time from order size.
// Tiers follow the supplier's published schedule: small orders ship
// next day, pallet-sized orders take up to two weeks.
func supplierDeliveryBackend() Backend {
	return func(ctx context.Context, args map[string]any) (any, error) {
		quantity, ok := IntArg(args, "quantity")
		if !ok || quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive", contractx.ErrValidation)
		}

		var leadDays int64
		switch {
		case quantity <= 10:
			leadDays = 1
		case quantity <= 100:
			leadDays = 4
		case quantity <= 1000:
			leadDays = 7
		default:
			leadDays = 14
		}

		sku, _ := StringArg(args, "sku")
		eta := time.Now().UTC().AddDate(0, 0, int(leadDays))
		return map[string]any{
			"sku":            sku,
			"lead_days":      leadDays,
			"estimated_date": eta.Format("2006-01-02"),
		}, nil
	}
}

func searchQuoteHistoryBackend(quotes QuoteSearcher) Backend {
	return func(ctx context.Context, args map[string]any) (any, error) {
		terms, _ := StringsArg(args, "terms")
		limit, _ := IntArg(args, "limit")

		entries, err := quotes.SearchQuotes(ctx, terms, int(limit))
		if err != nil {
			return nil, err
		}
		return map[string]any{"entries": entries, "count": len(entries)}, nil
	}
}

func getCashBalanceBackend(reader InventoryReader) Backend {
	return func(ctx context.Context, args map[string]any) (any, error) {
		account, ok := StringArg(args, "account")
		if !ok || account == "" {
			account = ledgerx.DefaultCashAccount
		}
		balance, err := reader.Balance(ctx, account)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"account":       account,
			"balance_cents": balance,
		}, nil
	}
}

// financialReportBackend summarizes cash on hand and the value of
// inventory at current unit prices.
func financialReportBackend(reader InventoryReader) Backend {
	return func(ctx context.Context, args map[string]any) (any, error) {
		period, _ := StringArg(args, "period")

		balance, err := reader.Balance(ctx, ledgerx.DefaultCashAccount)
		if err != nil {
			return nil, err
		}
		items, err := reader.Items(ctx)
		if err != nil {
			return nil, err
		}

		var inventoryValue int64
		lowStock := make([]string, 0)
		for _, item := range items {
			inventoryValue += item.QuantityOnHand * item.UnitPriceCents
			if item.QuantityOnHand < item.ReorderThreshold {
				lowStock = append(lowStock, item.SKU)
			}
		}

		return map[string]any{
			"period":                period,
			"cash_balance_cents":    balance,
			"inventory_value_cents": inventoryValue,
			"total_assets_cents":    balance + inventoryValue,
			"item_count":            len(items),
			"low_stock_skus":        lowStock,
		}, nil
	}
}

// createTransactionBackend turns the tool's flat arguments into a
// proposal for the coordinator. Commit errors pass through untouched
// so callers can distinguish stock shortage from conflict.
func createTransactionBackend(coordinator contractx.Coordinator) Backend {
	return func(ctx context.Context, args map[string]any) (any, error) {
		requestID, _ := StringArg(args, "request_id")
		sku, _ := StringArg(args, "sku")
		quantityDelta, _ := IntArg(args, "quantity_delta")
		cashDelta, _ := IntArg(args, "cash_delta_cents")
		memo, _ := StringArg(args, "memo")

		deltas := make([]contractx.ResourceDelta, 0, 2)
		if quantityDelta != 0 {
			deltas = append(deltas, contractx.ResourceDelta{Key: ledgerx.InventoryKey(sku), Amount: quantityDelta})
		}
		if cashDelta != 0 {
			deltas = append(deltas, contractx.ResourceDelta{Key: ledgerx.CashKey(ledgerx.DefaultCashAccount), Amount: cashDelta})
		}

		tx, err := coordinator.Commit(ctx, contractx.Proposal{
			RequestID: requestID,
			Deltas:    deltas,
			Memo:      memo,
		})
		if err != nil {
			return nil, err
		}
		return tx, nil
	}
}
