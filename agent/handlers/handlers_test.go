package handlers

import (
	"context"
	"errors"
	"testing"

	contractx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/contract"
	ledgerx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/ledger"
	toolx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/tool"
)

func newTestStack(t *testing.T) (*ledgerx.MemoryStore, contractx.ToolGateway) {
	t.Helper()

	store := ledgerx.NewMemoryStore()
	store.SeedInventory(contractx.InventoryItem{
		SKU: "A4-PAPER", QuantityOnHand: 100, ReorderThreshold: 20, UnitPriceCents: 500,
	})
	store.SeedCash(ledgerx.DefaultCashAccount, 1_000_000)

	coordinator, err := ledgerx.NewCoordinator(store)
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}
	gateway, err := toolx.NewGateway(toolx.NewCatalog(), toolx.Backends(store, store, coordinator))
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	return store, gateway
}

func classified(intent contractx.Intent, fields contractx.Fields) contractx.ClassifiedRequest {
	return contractx.ClassifiedRequest{
		Request: contractx.Request{ID: "req-1", CustomerID: "acme"},
		Intent:  intent,
		Fields:  fields,
	}
}

func TestQuotingHandlerPricesStandardOrder(t *testing.T) {
	t.Parallel()

	_, gateway := newTestStack(t)
	h := NewQuoting(gateway)

	result, err := h.Handle(context.Background(),
		classified(contractx.IntentQuote, contractx.Fields{SKU: "A4-PAPER", Quantity: 50}), nil)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	quote, ok := result.Values[ValueQuote].(*contractx.QuoteDetail)
	if !ok {
		t.Fatal("result carries no quote detail")
	}
	if quote.SubtotalCents != 25_000 {
		t.Fatalf("subtotal = %d, want 25000", quote.SubtotalCents)
	}
	if quote.DiscountCents != 0 {
		t.Fatalf("discount = %d, want 0", quote.DiscountCents)
	}
	if quote.TotalCents != 25_000 {
		t.Fatalf("total = %d, want 25000", quote.TotalCents)
	}
	if quote.StockStatus != "available" {
		t.Fatalf("stock status = %s, want available", quote.StockStatus)
	}
}

func TestQuotingHandlerAppliesDiscount(t *testing.T) {
	t.Parallel()

	_, gateway := newTestStack(t)
	h := NewQuoting(gateway)

	// 100 units with a 10% discount already granted by the rule stage.
	result, err := h.Handle(context.Background(),
		classified(contractx.IntentQuote, contractx.Fields{SKU: "A4-PAPER", Quantity: 100, DiscountBps: 1000}), nil)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	quote := result.Values[ValueQuote].(*contractx.QuoteDetail)
	if quote.SubtotalCents != 50_000 || quote.DiscountCents != 5_000 || quote.TotalCents != 45_000 {
		t.Fatalf("breakdown = %d/%d/%d, want 50000/5000/45000",
			quote.SubtotalCents, quote.DiscountCents, quote.TotalCents)
	}
	if quote.StockStatus != "available" {
		t.Fatalf("stock status = %s, want available", quote.StockStatus)
	}
}

func TestQuotingHandlerFlagsBackorder(t *testing.T) {
	t.Parallel()

	_, gateway := newTestStack(t)
	h := NewQuoting(gateway)

	result, err := h.Handle(context.Background(),
		classified(contractx.IntentQuote, contractx.Fields{SKU: "A4-PAPER", Quantity: 150}), nil)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	quote := result.Values[ValueQuote].(*contractx.QuoteDetail)
	if quote.StockStatus != "backorder" {
		t.Fatalf("stock status = %s, want backorder", quote.StockStatus)
	}
}

func TestSalesHandlerCommitsSale(t *testing.T) {
	t.Parallel()

	store, gateway := newTestStack(t)
	h := NewSales(gateway)

	result, err := h.Handle(context.Background(),
		classified(contractx.IntentSale, contractx.Fields{SKU: "A4-PAPER", Quantity: 40}), nil)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if result.Transaction == nil || result.Transaction.Status != contractx.TxCommitted {
		t.Fatalf("transaction = %+v, want committed", result.Transaction)
	}

	sale, ok := result.Values[ValueSale].(*contractx.SaleDetail)
	if !ok {
		t.Fatal("result carries no sale detail")
	}
	if sale.TotalCents != 20_000 {
		t.Fatalf("total = %d, want 20000", sale.TotalCents)
	}

	item, _ := store.Item(context.Background(), "A4-PAPER")
	if item.QuantityOnHand != 60 {
		t.Fatalf("quantity = %d, want 60", item.QuantityOnHand)
	}
	balance, _ := store.Balance(context.Background(), ledgerx.DefaultCashAccount)
	if balance != 1_020_000 {
		t.Fatalf("balance = %d, want 1020000", balance)
	}
	if err := store.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
}

func TestSalesHandlerRejectsOversell(t *testing.T) {
	t.Parallel()

	store, gateway := newTestStack(t)
	h := NewSales(gateway)

	_, err := h.Handle(context.Background(),
		classified(contractx.IntentSale, contractx.Fields{SKU: "A4-PAPER", Quantity: 150}), nil)
	if !errors.Is(err, contractx.ErrInsufficientStock) {
		t.Fatalf("Handle() error = %v, want ErrInsufficientStock", err)
	}

	// Nothing committed.
	item, _ := store.Item(context.Background(), "A4-PAPER")
	if item.QuantityOnHand != 100 {
		t.Fatalf("quantity = %d, want untouched 100", item.QuantityOnHand)
	}
	ledger, _ := store.Ledger(context.Background())
	if len(ledger) != 1 { // seed entry only
		t.Fatalf("ledger entries = %d, want 1", len(ledger))
	}
}

func TestInventoryHandlerAddsDeliveryEstimateForBackorder(t *testing.T) {
	t.Parallel()

	_, gateway := newTestStack(t)
	quote := &contractx.QuoteDetail{SKU: "A4-PAPER", Quantity: 150, StockStatus: "backorder"}
	prior := []contractx.HandlerResult{{
		Handler: contractx.HandlerQuoting,
		Values:  map[string]any{ValueQuote: quote},
	}}

	h := NewInventory(gateway)
	result, err := h.Handle(context.Background(),
		classified(contractx.IntentQuote, contractx.Fields{SKU: "A4-PAPER", Quantity: 150}), prior)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if _, ok := result.Values[ValueEstimatedDelivery]; !ok {
		t.Fatal("backorder quote should carry a delivery estimate")
	}
}

func TestInventoryHandlerSnapshotWithoutSKU(t *testing.T) {
	t.Parallel()

	_, gateway := newTestStack(t)
	h := NewInventory(gateway)

	result, err := h.Handle(context.Background(),
		classified(contractx.IntentInventoryCheck, contractx.Fields{}), nil)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if _, ok := result.Values[ValueInventoryItems]; !ok {
		t.Fatal("snapshot should list inventory items")
	}
}

func TestFinanceHandlerBuildsReport(t *testing.T) {
	t.Parallel()

	_, gateway := newTestStack(t)
	h := NewFinance(gateway)

	result, err := h.Handle(context.Background(),
		classified(contractx.IntentFinanceInquiry, contractx.Fields{Period: "2026-Q3"}), nil)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if result.Values[ValueCashBalance].(int64) != 1_000_000 {
		t.Fatalf("cash balance = %v, want 1000000", result.Values[ValueCashBalance])
	}
	report, ok := result.Values[ValueFinancialReport].(map[string]any)
	if !ok {
		t.Fatal("result carries no financial report")
	}
	// 100 units at 500 cents.
	if got := report["inventory_value_cents"].(int64); got != 50_000 {
		t.Fatalf("inventory value = %d, want 50000", got)
	}
}

func TestCustomerServiceHandlerAnswersInquiry(t *testing.T) {
	t.Parallel()

	store, gateway := newTestStack(t)
	store.SeedQuoteHistory(contractx.QuoteHistoryEntry{
		CustomerID: "acme", SKU: "A4-PAPER", Quantity: 20, TotalCents: 10_000,
	})

	h := NewCustomerService(gateway)
	result, err := h.Handle(context.Background(),
		classified(contractx.IntentCustomerInquiry, contractx.Fields{
			SKU:         "A4-PAPER",
			SearchTerms: []string{"acme"},
		}), nil)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if result.Values[ValueQuoteHistory] == nil {
		t.Fatal("result carries no quote history")
	}
	if result.Summary == "" {
		t.Fatal("result carries no summary")
	}
}

func TestHandlersDeclareOnlyCatalogTools(t *testing.T) {
	t.Parallel()

	_, gateway := newTestStack(t)
	catalog := toolx.NewCatalog()

	hs := []contractx.Handler{
		NewInventory(gateway),
		NewQuoting(gateway),
		NewSales(gateway),
		NewFinance(gateway),
		NewCustomerService(gateway),
	}
	for _, h := range hs {
		for _, name := range h.Tools() {
			if _, ok := catalog.Info(name); !ok {
				t.Fatalf("handler %s declares unknown tool %s", h.Name(), name)
			}
		}
	}
}
