package classify

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	contractx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/contract"
)

var (
	skuPattern      = regexp.MustCompile(`\b[A-Z][A-Z0-9]+(?:-[A-Z0-9]+)+\b`)
	quantityPattern = regexp.MustCompile(`\b(\d+)\b`)
)

// Stub is a deterministic keyword classifier with the same contract as
// the LLM path. Same text in, same classification out, no network.
type Stub struct{}

func NewStub() *Stub {
	return &Stub{}
}

func (s *Stub) Classify(ctx context.Context, req contractx.Request) (contractx.ClassifiedRequest, error) {
	text := strings.TrimSpace(req.RawText)
	if text == "" {
		return contractx.ClassifiedRequest{}, fmt.Errorf("%w: request text is empty", contractx.ErrValidation)
	}
	lower := strings.ToLower(text)

	fields := contractx.Fields{
		SKU:          skuPattern.FindString(strings.ToUpper(text)),
		WeddingOrder: containsAny(lower, "wedding", "banquet", "reception"),
	}
	if m := quantityPattern.FindStringSubmatch(text); m != nil {
		if q, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			fields.Quantity = q
		}
	}

	var intent contractx.Intent
	switch {
	case containsAny(lower, "buy", "purchase", "order now", "place an order", "place the order"):
		intent = contractx.IntentSale
	case containsAny(lower, "quote", "price for", "how much", "pricing", "cost of"):
		intent = contractx.IntentQuote
	case containsAny(lower, "in stock", "stock level", "how many", "inventory", "available"):
		intent = contractx.IntentInventoryCheck
	case containsAny(lower, "cash balance", "financial report", "revenue", "finances", "balance"):
		intent = contractx.IntentFinanceInquiry
		fields.Period = extractPeriod(text)
	default:
		intent = contractx.IntentCustomerInquiry
		fields.Question = text
		if req.CustomerID != "" {
			fields.SearchTerms = []string{req.CustomerID}
		}
		if fields.SKU != "" {
			fields.SearchTerms = append(fields.SearchTerms, fields.SKU)
		}
	}

	req.State = contractx.RequestClassified
	return contractx.ClassifiedRequest{Request: req, Intent: intent, Fields: fields}, nil
}

func containsAny(text string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

var periodPattern = regexp.MustCompile(`\b(\d{4}(?:-Q[1-4]|-\d{2})?)\b`)

func extractPeriod(text string) string {
	return periodPattern.FindString(text)
}
