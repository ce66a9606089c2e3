package tool

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	contractx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/contract"
)

func newTestGateway(t *testing.T, backends map[string]Backend, opts ...GatewayOption) *Gateway {
	t.Helper()

	g, err := NewGateway(NewCatalog(), backends, opts...)
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	g.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return g
}

func TestGatewayRejectsToolOutsideAllowlist(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, map[string]Backend{
		ToolGetCashBalance: func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"balance_cents": int64(1)}, nil
		},
	})

	// customer_service does not declare get_cash_balance.
	call, err := g.Invoke(context.Background(), contractx.HandlerCustomerService, ToolGetCashBalance, map[string]any{})
	if !errors.Is(err, contractx.ErrToolNotAllowed) {
		t.Fatalf("Invoke() error = %v, want ErrToolNotAllowed", err)
	}
	if call.Outcome != contractx.ToolPermanentFailure {
		t.Fatalf("call outcome = %s, want permanent_failure", call.Outcome)
	}
}

func TestGatewayRejectsInvalidArgs(t *testing.T) {
	t.Parallel()

	invoked := false
	g := newTestGateway(t, map[string]Backend{
		ToolCheckStock: func(ctx context.Context, args map[string]any) (any, error) {
			invoked = true
			return nil, nil
		},
	})

	_, err := g.Invoke(context.Background(), contractx.HandlerInventory, ToolCheckStock, map[string]any{"sku": 42})
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Invoke() error = %v, want ErrValidation", err)
	}
	if invoked {
		t.Fatal("backend must not run when args fail validation")
	}
}

func TestGatewayRetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	calls := 0
	g := newTestGateway(t, map[string]Backend{
		ToolCheckStock: func(ctx context.Context, args map[string]any) (any, error) {
			calls++
			if calls < 3 {
				return nil, fmt.Errorf("%w: upstream timeout", contractx.ErrTransientFailure)
			}
			return map[string]any{"quantity_on_hand": int64(7)}, nil
		},
	})

	call, err := g.Invoke(context.Background(), contractx.HandlerInventory, ToolCheckStock, map[string]any{"sku": "A4-PAPER"})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if call.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", call.Attempts)
	}
	if call.Outcome != contractx.ToolSuccess {
		t.Fatalf("outcome = %s, want success", call.Outcome)
	}
}

func TestGatewayEscalatesExhaustedRetries(t *testing.T) {
	t.Parallel()

	calls := 0
	g := newTestGateway(t, map[string]Backend{
		ToolCheckStock: func(ctx context.Context, args map[string]any) (any, error) {
			calls++
			return nil, fmt.Errorf("%w: upstream timeout", contractx.ErrTransientFailure)
		},
	})

	_, err := g.Invoke(context.Background(), contractx.HandlerInventory, ToolCheckStock, map[string]any{"sku": "A4-PAPER"})
	if !errors.Is(err, contractx.ErrPermanentFailure) {
		t.Fatalf("Invoke() error = %v, want ErrPermanentFailure", err)
	}
	if calls != defaultMaxAttempts {
		t.Fatalf("backend calls = %d, want %d", calls, defaultMaxAttempts)
	}
}

func TestGatewayNeverRetriesNonIdempotentTool(t *testing.T) {
	t.Parallel()

	calls := 0
	g := newTestGateway(t, map[string]Backend{
		ToolCreateTransaction: func(ctx context.Context, args map[string]any) (any, error) {
			calls++
			return nil, fmt.Errorf("%w: connection reset", contractx.ErrTransientFailure)
		},
	})

	args := map[string]any{
		"request_id":       "req-1",
		"sku":              "A4-PAPER",
		"quantity_delta":   int64(-5),
		"cash_delta_cents": int64(2500),
	}
	call, err := g.Invoke(context.Background(), contractx.HandlerSales, ToolCreateTransaction, args)
	if !errors.Is(err, contractx.ErrPermanentFailure) {
		t.Fatalf("Invoke() error = %v, want ErrPermanentFailure", err)
	}
	if calls != 1 {
		t.Fatalf("backend calls = %d, want exactly 1", calls)
	}
	if call.Attempts != 1 {
		t.Fatalf("recorded attempts = %d, want 1", call.Attempts)
	}
}

func TestGatewayPassesThroughDomainErrors(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, map[string]Backend{
		ToolCreateTransaction: func(ctx context.Context, args map[string]any) (any, error) {
			return nil, fmt.Errorf("%w: inventory:A4-PAPER has 10, delta -50", contractx.ErrInsufficientStock)
		},
	})

	args := map[string]any{
		"request_id":       "req-1",
		"sku":              "A4-PAPER",
		"quantity_delta":   int64(-50),
		"cash_delta_cents": int64(25000),
	}
	_, err := g.Invoke(context.Background(), contractx.HandlerSales, ToolCreateTransaction, args)
	if !errors.Is(err, contractx.ErrInsufficientStock) {
		t.Fatalf("Invoke() error = %v, want ErrInsufficientStock", err)
	}
	if errors.Is(err, contractx.ErrPermanentFailure) {
		t.Fatal("domain errors must not be rewrapped as permanent failures")
	}
}

func TestGatewayStopsRetryingOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	g := newTestGateway(t, map[string]Backend{
		ToolCheckStock: func(ctx context.Context, args map[string]any) (any, error) {
			calls++
			cancel()
			return nil, fmt.Errorf("%w: upstream timeout", contractx.ErrTransientFailure)
		},
	})

	_, err := g.Invoke(ctx, contractx.HandlerInventory, ToolCheckStock, map[string]any{"sku": "A4-PAPER"})
	if err == nil {
		t.Fatal("Invoke() expected error after context cancellation")
	}
	if calls != 1 {
		t.Fatalf("backend calls = %d, want 1 after cancellation", calls)
	}
}
