package orchestrator

import (
	"context"
	"fmt"
	"testing"

	classifyx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/classify"
	contractx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/contract"
	handlersx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/handlers"
	historyx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/history"
	ledgerx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/ledger"
	routerx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/router"
	rulesx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/rules"
	toolx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/tool"
)

type capturingPublisher struct {
	payloads []any
}

func (p *capturingPublisher) Publish(ctx context.Context, payload any) error {
	p.payloads = append(p.payloads, payload)
	return nil
}

type testStack struct {
	engine    *Engine
	store     *ledgerx.MemoryStore
	history   *historyx.MemoryStore
	publisher *capturingPublisher
}

func newTestEngine(t *testing.T, classifier contractx.Classifier) testStack {
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

	router, err := routerx.New(toolx.NewCatalog(),
		handlersx.NewInventory(gateway),
		handlersx.NewQuoting(gateway),
		handlersx.NewSales(gateway),
		handlersx.NewFinance(gateway),
		handlersx.NewCustomerService(gateway),
	)
	if err != nil {
		t.Fatalf("router.New() error = %v", err)
	}

	rules, err := rulesx.NewEngine(rulesx.BuiltinRules()...)
	if err != nil {
		t.Fatalf("rules.NewEngine() error = %v", err)
	}

	history := historyx.NewMemoryStore()
	publisher := &capturingPublisher{}

	engine, err := New(classifier, router, rules, history, publisher)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return testStack{engine: engine, store: store, history: history, publisher: publisher}
}

func request(text string) contractx.Request {
	return contractx.Request{ID: "req-1", CustomerID: "acme", RawText: text}
}

func TestProcessQuoteScenario(t *testing.T) {
	t.Parallel()

	stack := newTestEngine(t, classifyx.NewStub())

	result, err := stack.engine.Process(context.Background(),
		request("how much for 50 units of A4-PAPER?"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if result.Status != contractx.StatusCompleted {
		t.Fatalf("status = %s (%s), want completed", result.Status, result.Message)
	}
	if result.Quote == nil {
		t.Fatal("completed quote carries no quote detail")
	}
	if result.Quote.SubtotalCents != 25_000 || result.Quote.DiscountCents != 0 || result.Quote.TotalCents != 25_000 {
		t.Fatalf("quote = %+v, want 25000/0/25000", result.Quote)
	}
	if result.Quote.StockStatus != "available" {
		t.Fatalf("stock status = %s, want available", result.Quote.StockStatus)
	}

	// Quoting must not move state.
	item, _ := stack.store.Item(context.Background(), "A4-PAPER")
	if item.QuantityOnHand != 100 {
		t.Fatalf("quantity = %d, want untouched 100", item.QuantityOnHand)
	}
}

func TestProcessQuoteWithBulkDiscountAndBackorder(t *testing.T) {
	t.Parallel()

	stack := newTestEngine(t, classifyx.NewStub())

	result, err := stack.engine.Process(context.Background(),
		request("how much for 200 units of A4-PAPER?"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Status != contractx.StatusCompleted {
		t.Fatalf("status = %s (%s), want completed", result.Status, result.Message)
	}
	if result.Quote.SubtotalCents != 100_000 || result.Quote.DiscountCents != 10_000 || result.Quote.TotalCents != 90_000 {
		t.Fatalf("quote = %+v, want 100000/10000/90000", result.Quote)
	}
	if result.Quote.StockStatus != "backorder" {
		t.Fatalf("stock status = %s, want backorder", result.Quote.StockStatus)
	}
	if result.Quote.EstimatedDelivery == "" {
		t.Fatal("backorder quote carries no delivery estimate")
	}
}

func TestProcessSaleCommitsAtomically(t *testing.T) {
	t.Parallel()

	stack := newTestEngine(t, classifyx.NewStub())

	result, err := stack.engine.Process(context.Background(),
		request("I want to buy 40 units of A4-PAPER"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Status != contractx.StatusCompleted {
		t.Fatalf("status = %s (%s), want completed", result.Status, result.Message)
	}
	if result.Sale == nil || result.Sale.TotalCents != 20_000 {
		t.Fatalf("sale = %+v, want total 20000", result.Sale)
	}

	item, _ := stack.store.Item(context.Background(), "A4-PAPER")
	if item.QuantityOnHand != 60 {
		t.Fatalf("quantity = %d, want 60", item.QuantityOnHand)
	}
	balance, _ := stack.store.Balance(context.Background(), ledgerx.DefaultCashAccount)
	if balance != 1_020_000 {
		t.Fatalf("balance = %d, want 1020000", balance)
	}
	if err := stack.store.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
}

func TestProcessOversellIsRejectedWithoutSideEffects(t *testing.T) {
	t.Parallel()

	stack := newTestEngine(t, classifyx.NewStub())

	result, err := stack.engine.Process(context.Background(),
		request("I want to buy 500 units of A4-PAPER"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Status != contractx.StatusRejected {
		t.Fatalf("status = %s, want rejected", result.Status)
	}
	if result.Message == "" {
		t.Fatal("rejection carries no customer message")
	}

	item, _ := stack.store.Item(context.Background(), "A4-PAPER")
	balance, _ := stack.store.Balance(context.Background(), ledgerx.DefaultCashAccount)
	if item.QuantityOnHand != 100 || balance != 1_000_000 {
		t.Fatalf("state moved: qty=%d balance=%d", item.QuantityOnHand, balance)
	}
}

func TestProcessWeddingOrderRejectedWithDistinctMessages(t *testing.T) {
	t.Parallel()

	stack := newTestEngine(t, classifyx.NewStub())

	result, err := stack.engine.Process(context.Background(),
		request("I want to buy 200 units of A4-PAPER for a wedding"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Status != contractx.StatusRejected {
		t.Fatalf("status = %s, want rejected", result.Status)
	}

	rec, err := stack.history.ByRequest(context.Background(), result.RequestID)
	if err != nil {
		t.Fatalf("ByRequest() error = %v", err)
	}

	var rejectDecision *contractx.RuleDecision
	for i := range rec.PreRuleDecisions {
		if rec.PreRuleDecisions[i].Kind == contractx.DecisionReject {
			rejectDecision = &rec.PreRuleDecisions[i]
		}
	}
	if rejectDecision == nil {
		t.Fatal("history carries no reject decision")
	}
	if rejectDecision.InternalReason == "" {
		t.Fatal("audit record lost the internal reason")
	}
	if result.Message == rejectDecision.InternalReason {
		t.Fatal("internal reason leaked to the customer")
	}
	if result.Message != rejectDecision.CustomerMessage {
		t.Fatalf("customer message = %q, want rule message %q", result.Message, rejectDecision.CustomerMessage)
	}

	// The reject happened pre-execution, so no chain steps ran.
	if len(rec.Steps) != 0 {
		t.Fatalf("steps = %d, want 0", len(rec.Steps))
	}
}

type failingClassifier struct{}

func (failingClassifier) Classify(ctx context.Context, req contractx.Request) (contractx.ClassifiedRequest, error) {
	return contractx.ClassifiedRequest{}, fmt.Errorf("%w: model unavailable", contractx.ErrClassification)
}

func TestProcessClassificationFailureFailsRequest(t *testing.T) {
	t.Parallel()

	stack := newTestEngine(t, failingClassifier{})

	result, err := stack.engine.Process(context.Background(), request("anything at all"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Status != contractx.StatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}

	rec, err := stack.history.ByRequest(context.Background(), result.RequestID)
	if err != nil {
		t.Fatalf("ByRequest() error = %v", err)
	}
	if rec.FinalStatus != contractx.StatusFailed {
		t.Fatalf("history status = %s, want failed", rec.FinalStatus)
	}
}

func TestProcessRecordsOrderedHistoryAndPublishes(t *testing.T) {
	t.Parallel()

	stack := newTestEngine(t, classifyx.NewStub())

	result, err := stack.engine.Process(context.Background(),
		request("I want to buy 40 units of A4-PAPER"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	rec, err := stack.history.ByRequest(context.Background(), result.RequestID)
	if err != nil {
		t.Fatalf("ByRequest() error = %v", err)
	}
	if rec.Intent != contractx.IntentSale {
		t.Fatalf("intent = %s, want sale", rec.Intent)
	}

	wantChain := []contractx.HandlerName{
		contractx.HandlerSales,
		contractx.HandlerInventory,
		contractx.HandlerFinance,
	}
	if len(rec.Steps) != len(wantChain) {
		t.Fatalf("steps = %d, want %d", len(rec.Steps), len(wantChain))
	}
	for i, step := range rec.Steps {
		if step.Handler != wantChain[i] {
			t.Fatalf("step[%d] = %s, want %s", i, step.Handler, wantChain[i])
		}
		if step.FinishedAt.Before(step.StartedAt) {
			t.Fatalf("step[%d] finished before it started", i)
		}
	}
	if rec.Steps[0].TransactionStatus != contractx.TxCommitted {
		t.Fatalf("sales step transaction status = %s, want committed", rec.Steps[0].TransactionStatus)
	}

	if len(stack.publisher.payloads) != 1 {
		t.Fatalf("published payloads = %d, want 1", len(stack.publisher.payloads))
	}
}

func TestProcessFinanceAndInventoryInquiries(t *testing.T) {
	t.Parallel()

	stack := newTestEngine(t, classifyx.NewStub())

	result, err := stack.engine.Process(context.Background(),
		request("send me the financial report for 2026-Q3"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Status != contractx.StatusCompleted {
		t.Fatalf("finance status = %s (%s), want completed", result.Status, result.Message)
	}

	result, err = stack.engine.Process(context.Background(),
		request("is A4-PAPER in stock?"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Status != contractx.StatusCompleted {
		t.Fatalf("inventory status = %s (%s), want completed", result.Status, result.Message)
	}
}

func TestReloadRulesDoesNotAffectNewRequestsRetroactively(t *testing.T) {
	t.Parallel()

	stack := newTestEngine(t, classifyx.NewStub())

	// Drop every rule: the wedding order now goes through to the sale.
	if err := stack.engine.ReloadRules(); err != nil {
		t.Fatalf("ReloadRules() error = %v", err)
	}

	result, err := stack.engine.Process(context.Background(),
		request("I want to buy 20 units of A4-PAPER for a wedding"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Status != contractx.StatusCompleted {
		t.Fatalf("status = %s (%s), want completed after reload", result.Status, result.Message)
	}
}

func TestProcessRejectsEmptyRequest(t *testing.T) {
	t.Parallel()

	stack := newTestEngine(t, classifyx.NewStub())
	if _, err := stack.engine.Process(context.Background(), request("  ")); err == nil {
		t.Fatal("Process() expected error for empty request text")
	}
}
