package contract

import "time"

type Intent string

const (
	IntentQuote           Intent = "quote"
	IntentSale            Intent = "sale"
	IntentInventoryCheck  Intent = "inventory_check"
	IntentFinanceInquiry  Intent = "finance_inquiry"
	IntentCustomerInquiry Intent = "customer_inquiry"
)

func (i Intent) Valid() bool {
	switch i {
	case IntentQuote, IntentSale, IntentInventoryCheck, IntentFinanceInquiry, IntentCustomerInquiry:
		return true
	}
	return false
}

type HandlerName string

const (
	HandlerInventory       HandlerName = "inventory"
	HandlerQuoting         HandlerName = "quoting"
	HandlerSales           HandlerName = "sales"
	HandlerFinance         HandlerName = "finance"
	HandlerCustomerService HandlerName = "customer_service"
)

type RequestState string

const (
	RequestReceived   RequestState = "received"
	RequestClassified RequestState = "classified"
	RequestProcessing RequestState = "processing"
	RequestCompleted  RequestState = "completed"
	RequestRejected   RequestState = "rejected"
	RequestFailed     RequestState = "failed"
	RequestCancelled  RequestState = "cancelled"
)

// Request is the raw inbound business request. Immutable after
// classification except for State transitions.
type Request struct {
	ID         string       `json:"id"`
	CustomerID string       `json:"customer_id"`
	RawText    string       `json:"raw_text"`
	ReceivedAt time.Time    `json:"received_at"`
	State      RequestState `json:"state"`
}

// Fields is the closed set of named fields a classifier may extract.
// Every field type is known in advance; handlers never parse raw text.
type Fields struct {
	SKU          string   `json:"sku,omitempty"`
	Quantity     int64    `json:"quantity,omitempty"`
	Period       string   `json:"period,omitempty"`
	SearchTerms  []string `json:"search_terms,omitempty"`
	Question     string   `json:"question,omitempty"`
	WeddingOrder bool     `json:"wedding_order,omitempty"`
	DiscountBps  int64    `json:"discount_bps,omitempty"`
}

type ClassifiedRequest struct {
	Request
	Intent Intent `json:"intent"`
	Fields Fields `json:"fields"`
}

type ToolOutcome string

const (
	ToolSuccess          ToolOutcome = "success"
	ToolTransientFailure ToolOutcome = "transient_failure"
	ToolPermanentFailure ToolOutcome = "permanent_failure"
)

// ToolCall records one logical tool invocation, including every retry
// attempt made by the gateway before the final outcome.
type ToolCall struct {
	Tool     string         `json:"tool"`
	Args     map[string]any `json:"args,omitempty"`
	Attempts int            `json:"attempts"`
	Outcome  ToolOutcome    `json:"outcome"`
	Error    string         `json:"error,omitempty"`
	Result   any            `json:"result,omitempty"`
}

// ResourceDelta is one proposed change against a shared resource.
// Key is "inventory:<sku>" (Amount in units) or "cash:<account>"
// (Amount in cents).
type ResourceDelta struct {
	Key    string `json:"key"`
	Amount int64  `json:"amount"`
}

// Proposal is a not-yet-committed set of resource deltas emitted by a
// handler. Only the Transaction Coordinator may turn it into state.
type Proposal struct {
	RequestID         string          `json:"request_id"`
	Deltas            []ResourceDelta `json:"deltas"`
	Memo              string          `json:"memo,omitempty"`
	AllowNegativeCash bool            `json:"allow_negative_cash,omitempty"`
}

type TxStatus string

const (
	TxPending    TxStatus = "pending"
	TxCommitted  TxStatus = "committed"
	TxRolledBack TxStatus = "rolled_back"
)

type Transaction struct {
	ID          string          `json:"id"`
	RequestID   string          `json:"request_id"`
	Deltas      []ResourceDelta `json:"deltas"`
	Status      TxStatus        `json:"status"`
	Memo        string          `json:"memo,omitempty"`
	CommittedAt time.Time       `json:"committed_at"`
}

type InventoryItem struct {
	SKU              string `json:"sku"`
	QuantityOnHand   int64  `json:"quantity_on_hand"`
	ReorderThreshold int64  `json:"reorder_threshold"`
	UnitPriceCents   int64  `json:"unit_price_cents"`
}

type QuoteHistoryEntry struct {
	CustomerID    string    `json:"customer_id"`
	SKU           string    `json:"sku"`
	Quantity      int64     `json:"quantity"`
	TotalCents    int64     `json:"total_cents"`
	DiscountCents int64     `json:"discount_cents"`
	QuotedAt      time.Time `json:"quoted_at"`
}

type RuleStage string

const (
	StagePre  RuleStage = "pre"
	StagePost RuleStage = "post"
)

type RuleDecisionKind string

const (
	DecisionAllow  RuleDecisionKind = "allow"
	DecisionReject RuleDecisionKind = "reject"
	DecisionModify RuleDecisionKind = "modify"
)

// RuleDecision is the audit record of a single rule evaluation.
// CustomerMessage and InternalReason are deliberately separate fields;
// only CustomerMessage may ever reach an outward result.
type RuleDecision struct {
	RuleID          string           `json:"rule_id"`
	Stage           RuleStage        `json:"stage"`
	Kind            RuleDecisionKind `json:"kind"`
	CustomerMessage string           `json:"customer_message,omitempty"`
	InternalReason  string           `json:"internal_reason,omitempty"`
}

// FieldPatch is the delta a Modify rule applies to a request. Patches
// compose in ascending rule priority; numeric deltas are additive.
type FieldPatch struct {
	QuantityDelta int64 `json:"quantity_delta,omitempty"`
	DiscountBps   int64 `json:"discount_bps,omitempty"`
	FlagWedding   bool  `json:"flag_wedding,omitempty"`
}

// HandlerResult is the output of one handler step. Values feed the
// next handler in the chain.
type HandlerResult struct {
	Handler     HandlerName    `json:"handler"`
	Summary     string         `json:"summary,omitempty"`
	Values      map[string]any `json:"values,omitempty"`
	ToolCalls   []ToolCall     `json:"tool_calls,omitempty"`
	Transaction *Transaction   `json:"transaction,omitempty"`
}

type FinalStatus string

const (
	StatusCompleted FinalStatus = "completed"
	StatusRejected  FinalStatus = "rejected"
	StatusFailed    FinalStatus = "failed"
	StatusCancelled FinalStatus = "cancelled"
)

type StepRecord struct {
	Handler           HandlerName    `json:"handler"`
	RuleDecisions     []RuleDecision `json:"rule_decisions,omitempty"`
	ToolCalls         []ToolCall     `json:"tool_calls,omitempty"`
	TransactionID     string         `json:"transaction_id,omitempty"`
	TransactionStatus TxStatus       `json:"transaction_status,omitempty"`
	Error             string         `json:"error,omitempty"`
	StartedAt         time.Time      `json:"started_at"`
	FinishedAt        time.Time      `json:"finished_at"`
}

// WorkflowRecord is the append-only audit record of one request.
// Never mutated after Append.
type WorkflowRecord struct {
	RequestID         string         `json:"request_id"`
	Intent            Intent         `json:"intent"`
	Chain             []HandlerName  `json:"chain"`
	PreRuleDecisions  []RuleDecision `json:"pre_rule_decisions,omitempty"`
	Steps             []StepRecord   `json:"steps"`
	PostRuleDecisions []RuleDecision `json:"post_rule_decisions,omitempty"`
	FinalStatus       FinalStatus    `json:"final_status"`
	CustomerMessage   string         `json:"customer_message,omitempty"`
	ReceivedAt        time.Time      `json:"received_at"`
	FinishedAt        time.Time      `json:"finished_at"`
}

// CustomerResult is the sanitized outward-facing result. Internal
// reasons, thresholds, and raw tool errors never appear here.
type CustomerResult struct {
	RequestID string       `json:"request_id"`
	Status    FinalStatus  `json:"status"`
	Message   string       `json:"message"`
	Quote     *QuoteDetail `json:"quote,omitempty"`
	Sale      *SaleDetail  `json:"sale,omitempty"`
}

type QuoteDetail struct {
	SKU               string `json:"sku"`
	Quantity          int64  `json:"quantity"`
	UnitPriceCents    int64  `json:"unit_price_cents"`
	SubtotalCents     int64  `json:"subtotal_cents"`
	DiscountCents     int64  `json:"discount_cents"`
	TotalCents        int64  `json:"total_cents"`
	StockStatus       string `json:"stock_status"`
	EstimatedDelivery string `json:"estimated_delivery,omitempty"`
}

type SaleDetail struct {
	TransactionID string `json:"transaction_id"`
	SKU           string `json:"sku"`
	Quantity      int64  `json:"quantity"`
	TotalCents    int64  `json:"total_cents"`
}
