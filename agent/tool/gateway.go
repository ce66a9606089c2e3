package tool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/contract"
	metricsx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/metrics"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 100 * time.Millisecond
)

// Backend executes one tool call against its external capability.
// Backends classify their own failures by wrapping ErrTransientFailure
// or ErrPermanentFailure; anything unclassified is treated as
// permanent.
type Backend func(ctx context.Context, args map[string]any) (any, error)

// GatewayOption customizes a Gateway.
type GatewayOption func(*Gateway)

func WithMaxAttempts(n int) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

func WithBaseDelay(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.baseDelay = d
		}
	}
}

// Gateway is the validated, retryable entry point for every tool call.
type Gateway struct {
	catalog     *Catalog
	backends    map[string]Backend
	maxAttempts int
	baseDelay   time.Duration

	// sleep is swappable so tests do not wait on real backoff.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewGateway(catalog *Catalog, backends map[string]Backend, opts ...GatewayOption) (*Gateway, error) {
	if catalog == nil {
		return nil, errors.New("tool catalog is required")
	}
	for name := range backends {
		if _, ok := catalog.Info(name); !ok {
			return nil, fmt.Errorf("%w: backend registered for %s", contractx.ErrUnknownTool, name)
		}
	}

	g := &Gateway{
		catalog:     catalog,
		backends:    backends,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g, nil
}

func (g *Gateway) Invoke(ctx context.Context, caller contractx.HandlerName, toolName string, args map[string]any) (contractx.ToolCall, error) {
	call := contractx.ToolCall{Tool: toolName, Args: args}

	if !callerAllowed(caller, toolName) {
		call.Outcome = contractx.ToolPermanentFailure
		call.Error = "tool not in caller allowlist"
		return call, fmt.Errorf("%w: %s for handler %s", contractx.ErrToolNotAllowed, toolName, caller)
	}

	if err := g.catalog.ValidateArgs(toolName, args); err != nil {
		call.Outcome = contractx.ToolPermanentFailure
		call.Error = err.Error()
		return call, err
	}

	backend, ok := g.backends[toolName]
	if !ok {
		call.Outcome = contractx.ToolPermanentFailure
		call.Error = "no backend registered"
		return call, fmt.Errorf("%w: no backend for %s", contractx.ErrUnknownTool, toolName)
	}

	attempts := 1
	if g.catalog.Idempotent(toolName) {
		attempts = g.maxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		call.Attempts = attempt

		result, err := backend(ctx, args)
		if err == nil {
			call.Outcome = contractx.ToolSuccess
			call.Result = result
			return call, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		if !errors.Is(err, contractx.ErrTransientFailure) {
			break
		}
		if attempt == attempts {
			break
		}

		delay := g.baseDelay << (attempt - 1)
		metricsx.ToolRetries.WithLabelValues(toolName).Inc()
		log.Debug().
			Str("tool", toolName).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Err(err).
			Msg("retrying transient tool failure")
		if err := g.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	if errors.Is(lastErr, contractx.ErrTransientFailure) {
		// Retries exhausted: escalate so callers see a terminal outcome.
		call.Outcome = contractx.ToolPermanentFailure
		call.Error = lastErr.Error()
		return call, fmt.Errorf("%w: %s retries exhausted: %v", contractx.ErrPermanentFailure, toolName, lastErr)
	}

	call.Outcome = contractx.ToolPermanentFailure
	call.Error = lastErr.Error()
	if errors.Is(lastErr, contractx.ErrPermanentFailure) ||
		errors.Is(lastErr, contractx.ErrInsufficientStock) ||
		errors.Is(lastErr, contractx.ErrConcurrentConflict) ||
		errors.Is(lastErr, context.Canceled) ||
		errors.Is(lastErr, context.DeadlineExceeded) {
		return call, lastErr
	}
	return call, fmt.Errorf("%w: %s: %v", contractx.ErrPermanentFailure, toolName, lastErr)
}

func callerAllowed(caller contractx.HandlerName, toolName string) bool {
	for _, allowed := range allowedTools[caller] {
		if allowed == toolName {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
