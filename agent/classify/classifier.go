// Package classify turns raw request text into a classified request:
// a closed intent plus typed extracted fields. The LLM classifier is
// the production path; Stub is the deterministic fallback used in
// tests and offline runs.
package classify

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/contract"
)

//go:embed template/classifier.txt
var classifierPromptRaw string

// ClassifierPrompt is the system prompt shipped with the binary.
func ClassifierPrompt() string {
	return strings.TrimSpace(classifierPromptRaw)
}

type classifierLLMOutput struct {
	Intent       string   `json:"intent"`
	SKU          string   `json:"sku,omitempty"`
	Quantity     int64    `json:"quantity,omitempty"`
	Period       string   `json:"period,omitempty"`
	SearchTerms  []string `json:"search_terms,omitempty"`
	Question     string   `json:"question,omitempty"`
	WeddingOrder bool     `json:"wedding_order,omitempty"`
}

// LLMClassifier classifies through a chat model behind a structured
// output graph. The model's answer is untrusted until it survives the
// closed-set validation below.
type LLMClassifier struct {
	runner compose.Runnable[map[string]any, classifierLLMOutput]
}

func NewLLMClassifier(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*LLMClassifier, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = ClassifierPrompt()
	}
	runner, err := compileClassifierGraph(ctx, chatModel, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrClassification, err)
	}
	return &LLMClassifier{runner: runner}, nil
}

func (c *LLMClassifier) Classify(ctx context.Context, req contractx.Request) (contractx.ClassifiedRequest, error) {
	if strings.TrimSpace(req.RawText) == "" {
		return contractx.ClassifiedRequest{}, fmt.Errorf("%w: request text is empty", contractx.ErrValidation)
	}

	payload, err := json.Marshal(map[string]any{
		"request_id":  req.ID,
		"customer_id": req.CustomerID,
		"text":        req.RawText,
	})
	if err != nil {
		return contractx.ClassifiedRequest{}, fmt.Errorf("%w: marshal classifier payload: %v", contractx.ErrValidation, err)
	}

	out, err := c.runner.Invoke(ctx, map[string]any{"input": string(payload)})
	if err != nil {
		return contractx.ClassifiedRequest{}, fmt.Errorf("%w: model invoke: %v", contractx.ErrClassification, err)
	}

	classified, err := validateOutput(req, out)
	if err != nil {
		return contractx.ClassifiedRequest{}, err
	}

	log.Debug().
		Str("request_id", req.ID).
		Str("intent", string(classified.Intent)).
		Msg("request classified")
	return classified, nil
}

// validateOutput enforces the capability contract: the intent must be
// one of the closed set and extracted fields must be usable. Anything
// off-contract is a schema violation, which is a classification
// failure as far as the workflow is concerned.
func validateOutput(req contractx.Request, out classifierLLMOutput) (contractx.ClassifiedRequest, error) {
	intent := contractx.Intent(strings.TrimSpace(strings.ToLower(out.Intent)))
	if !intent.Valid() {
		return contractx.ClassifiedRequest{}, fmt.Errorf(
			"%w: unsupported intent %q", contractx.ErrSchemaViolation, out.Intent)
	}
	if out.Quantity < 0 {
		return contractx.ClassifiedRequest{}, fmt.Errorf(
			"%w: negative quantity %d", contractx.ErrSchemaViolation, out.Quantity)
	}

	terms := make([]string, 0, len(out.SearchTerms))
	for _, term := range out.SearchTerms {
		if t := strings.TrimSpace(term); t != "" {
			terms = append(terms, t)
		}
	}

	req.State = contractx.RequestClassified
	return contractx.ClassifiedRequest{
		Request: req,
		Intent:  intent,
		Fields: contractx.Fields{
			SKU:          strings.ToUpper(strings.TrimSpace(out.SKU)),
			Quantity:     out.Quantity,
			Period:       strings.TrimSpace(out.Period),
			SearchTerms:  terms,
			Question:     strings.TrimSpace(out.Question),
			WeddingOrder: out.WeddingOrder,
		},
	}, nil
}
