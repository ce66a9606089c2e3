package contract

import "context"

type Classifier interface {
	Classify(ctx context.Context, req Request) (ClassifiedRequest, error)
}

type Handler interface {
	Name() HandlerName
	// Tools is the closed allowlist of tool names this handler may
	// invoke. Validated against the catalog at router construction.
	Tools() []string
	Handle(ctx context.Context, req ClassifiedRequest, prior []HandlerResult) (HandlerResult, error)
}

type ToolGateway interface {
	// Invoke validates args against the tool schema, calls the backend
	// under the retry policy, and returns the full call record. The
	// returned error is classified via the contract sentinels.
	Invoke(ctx context.Context, caller HandlerName, tool string, args map[string]any) (ToolCall, error)
}

type Coordinator interface {
	Commit(ctx context.Context, p Proposal) (Transaction, error)
}

type HistoryStore interface {
	Append(ctx context.Context, rec WorkflowRecord) error
	ByRequest(ctx context.Context, requestID string) (WorkflowRecord, error)
}

type Publisher interface {
	Publish(ctx context.Context, payload any) error
}
