package classify

import (
	"context"
	"errors"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/contract"
)

type fakeToolCallingModel struct {
	responses []*schema.Message
	err       error
	idx       int
}

func (f *fakeToolCallingModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.idx >= len(f.responses) {
		return nil, errors.New("no fake response left")
	}
	msg := f.responses[f.idx]
	f.idx++
	return msg, nil
}

func (f *fakeToolCallingModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not implemented in fake model")
}

func (f *fakeToolCallingModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	return f, nil
}

func request(text string) contractx.Request {
	return contractx.Request{
		ID:         "req-1",
		CustomerID: "acme",
		RawText:    text,
		ReceivedAt: time.Now().UTC(),
		State:      contractx.RequestReceived,
	}
}

func TestLLMClassifierSuccess(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Content: `{"intent":"quote","sku":"a4-paper","quantity":50}`},
		},
	}
	c, err := NewLLMClassifier(context.Background(), fake, "classifier prompt")
	if err != nil {
		t.Fatalf("NewLLMClassifier() error = %v", err)
	}

	out, err := c.Classify(context.Background(), request("price for 50 reams of A4 paper"))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if out.Intent != contractx.IntentQuote {
		t.Fatalf("intent = %s, want quote", out.Intent)
	}
	if out.Fields.SKU != "A4-PAPER" {
		t.Fatalf("sku = %s, want normalized A4-PAPER", out.Fields.SKU)
	}
	if out.Fields.Quantity != 50 {
		t.Fatalf("quantity = %d, want 50", out.Fields.Quantity)
	}
	if out.State != contractx.RequestClassified {
		t.Fatalf("state = %s, want classified", out.State)
	}
}

func TestLLMClassifierRejectsUnknownIntent(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Content: `{"intent":"world_domination"}`},
		},
	}
	c, err := NewLLMClassifier(context.Background(), fake, "classifier prompt")
	if err != nil {
		t.Fatalf("NewLLMClassifier() error = %v", err)
	}

	_, err = c.Classify(context.Background(), request("do something"))
	if !errors.Is(err, contractx.ErrSchemaViolation) {
		t.Fatalf("Classify() error = %v, want ErrSchemaViolation", err)
	}
}

func TestLLMClassifierRejectsNegativeQuantity(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Content: `{"intent":"sale","sku":"A4-PAPER","quantity":-5}`},
		},
	}
	c, _ := NewLLMClassifier(context.Background(), fake, "classifier prompt")

	_, err := c.Classify(context.Background(), request("sell me -5 reams"))
	if !errors.Is(err, contractx.ErrSchemaViolation) {
		t.Fatalf("Classify() error = %v, want ErrSchemaViolation", err)
	}
}

func TestLLMClassifierWrapsModelFailure(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{err: errors.New("upstream 503")}
	c, _ := NewLLMClassifier(context.Background(), fake, "classifier prompt")

	_, err := c.Classify(context.Background(), request("quote please"))
	if !errors.Is(err, contractx.ErrClassification) {
		t.Fatalf("Classify() error = %v, want ErrClassification", err)
	}
}

func TestLLMClassifierRejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{{Content: `certainly! here is your classification:`}},
	}
	c, _ := NewLLMClassifier(context.Background(), fake, "classifier prompt")

	_, err := c.Classify(context.Background(), request("quote please"))
	if !errors.Is(err, contractx.ErrClassification) {
		t.Fatalf("Classify() error = %v, want ErrClassification", err)
	}
}

func TestStubIsDeterministic(t *testing.T) {
	t.Parallel()

	s := NewStub()
	req := request("I need a quote for 50 units of A4-PAPER")

	first, err := s.Classify(context.Background(), req)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := s.Classify(context.Background(), req)
		if err != nil {
			t.Fatalf("Classify() error = %v", err)
		}
		if again.Intent != first.Intent ||
			again.Fields.SKU != first.Fields.SKU ||
			again.Fields.Quantity != first.Fields.Quantity {
			t.Fatalf("classification drifted: %+v vs %+v", first, again)
		}
	}
	if first.Intent != contractx.IntentQuote {
		t.Fatalf("intent = %s, want quote", first.Intent)
	}
	if first.Fields.SKU != "A4-PAPER" || first.Fields.Quantity != 50 {
		t.Fatalf("fields = %+v, want A4-PAPER x50", first.Fields)
	}
}

func TestStubIntents(t *testing.T) {
	t.Parallel()

	s := NewStub()
	tests := []struct {
		text string
		want contractx.Intent
	}{
		{"I want to buy 20 STAPLER units now", contractx.IntentSale},
		{"how much for 100 reams of A4-PAPER", contractx.IntentQuote},
		{"is A4-PAPER in stock?", contractx.IntentInventoryCheck},
		{"send me the financial report for 2026-Q3", contractx.IntentFinanceInquiry},
		{"what did we quote acme last month?", contractx.IntentCustomerInquiry},
	}
	for _, tt := range tests {
		out, err := s.Classify(context.Background(), request(tt.text))
		if err != nil {
			t.Fatalf("Classify(%q) error = %v", tt.text, err)
		}
		if out.Intent != tt.want {
			t.Fatalf("Classify(%q) intent = %s, want %s", tt.text, out.Intent, tt.want)
		}
	}
}

func TestStubFlagsWeddingOrders(t *testing.T) {
	t.Parallel()

	s := NewStub()
	out, err := s.Classify(context.Background(), request("buy 200 NAPKIN-SET for a wedding reception"))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if !out.Fields.WeddingOrder {
		t.Fatal("wedding order not flagged")
	}
	if out.Intent != contractx.IntentSale {
		t.Fatalf("intent = %s, want sale", out.Intent)
	}
}

func TestStubRejectsEmptyText(t *testing.T) {
	t.Parallel()

	s := NewStub()
	if _, err := s.Classify(context.Background(), request("   ")); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Classify() error = %v, want ErrValidation", err)
	}
}
