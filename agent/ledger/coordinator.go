// Package ledger owns all shared mutable business state: inventory
// quantities, cash balances, and the append-only transaction ledger.
// Nothing outside this package mutates them; handlers only propose.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/contract"
	metricsx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/metrics"
)

const (
	keyPrefixInventory = "inventory:"
	keyPrefixCash      = "cash:"

	DefaultCashAccount = "main"
)

func InventoryKey(sku string) string {
	return keyPrefixInventory + sku
}

func CashKey(account string) string {
	return keyPrefixCash + account
}

func IsCashKey(key string) bool {
	return strings.HasPrefix(key, keyPrefixCash)
}

// Store is the durable state behind the coordinator. ApplyCommitted
// must apply every delta and the ledger append atomically: all or
// nothing, durable before it returns.
type Store interface {
	ReadAmounts(ctx context.Context, keys []string) (map[string]int64, error)
	ApplyCommitted(ctx context.Context, tx contractx.Transaction) error
}

// Coordinator serializes conflicting commits via per-resource locks
// acquired in sorted key order, so two proposals touching disjoint
// resources commit concurrently while overlapping ones queue without
// deadlock.
type Coordinator struct {
	store Store

	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex

	now func() time.Time
}

func NewCoordinator(store Store) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("ledger store is required")
	}
	return &Coordinator{
		store:    store,
		keyLocks: make(map[string]*sync.Mutex),
		now:      time.Now,
	}, nil
}

func (c *Coordinator) Commit(ctx context.Context, p contractx.Proposal) (contractx.Transaction, error) {
	deltas, err := mergeDeltas(p.Deltas)
	if err != nil {
		return contractx.Transaction{}, err
	}
	if strings.TrimSpace(p.RequestID) == "" {
		return contractx.Transaction{}, fmt.Errorf("%w: proposal request id is empty", contractx.ErrValidation)
	}

	keys := make([]string, 0, len(deltas))
	for _, d := range deltas {
		keys = append(keys, d.Key)
	}

	locks := c.locksFor(keys)
	for _, l := range locks {
		l.Lock()
	}
	defer func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}()

	if err := ctx.Err(); err != nil {
		return contractx.Transaction{}, err
	}

	amounts, err := c.store.ReadAmounts(ctx, keys)
	if err != nil {
		return contractx.Transaction{}, err
	}

	for _, d := range deltas {
		current, ok := amounts[d.Key]
		if !ok {
			return contractx.Transaction{}, fmt.Errorf("%w: unknown resource %s", contractx.ErrInsufficientStock, d.Key)
		}
		next := current + d.Amount
		if next < 0 {
			if IsCashKey(d.Key) && p.AllowNegativeCash {
				continue
			}
			return contractx.Transaction{}, fmt.Errorf(
				"%w: %s has %d, delta %d", contractx.ErrInsufficientStock, d.Key, current, d.Amount)
		}
	}

	tx := contractx.Transaction{
		ID:          uuid.NewString(),
		RequestID:   p.RequestID,
		Deltas:      deltas,
		Status:      contractx.TxCommitted,
		Memo:        p.Memo,
		CommittedAt: c.now().UTC(),
	}

	if err := c.store.ApplyCommitted(ctx, tx); err != nil {
		if errors.Is(err, contractx.ErrConcurrentConflict) {
			metricsx.CommitConflicts.Inc()
		}
		tx.Status = contractx.TxRolledBack
		return tx, err
	}

	metricsx.CommittedTransactions.Inc()
	log.Debug().
		Str("transaction_id", tx.ID).
		Str("request_id", tx.RequestID).
		Int("deltas", len(tx.Deltas)).
		Msg("transaction committed")
	return tx, nil
}

// locksFor returns the per-key mutexes for keys, in sorted key order.
func (c *Coordinator) locksFor(keys []string) []*sync.Mutex {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	c.mu.Lock()
	defer c.mu.Unlock()

	locks := make([]*sync.Mutex, 0, len(sorted))
	for _, key := range sorted {
		l, ok := c.keyLocks[key]
		if !ok {
			l = &sync.Mutex{}
			c.keyLocks[key] = l
		}
		locks = append(locks, l)
	}
	return locks
}

// mergeDeltas collapses duplicate keys additively and returns deltas
// in sorted key order, the same global ordering the locks use.
func mergeDeltas(in []contractx.ResourceDelta) ([]contractx.ResourceDelta, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: proposal has no deltas", contractx.ErrValidation)
	}

	merged := make(map[string]int64, len(in))
	for _, d := range in {
		key := strings.TrimSpace(d.Key)
		if key == "" {
			return nil, fmt.Errorf("%w: delta key is empty", contractx.ErrValidation)
		}
		if !strings.HasPrefix(key, keyPrefixInventory) && !strings.HasPrefix(key, keyPrefixCash) {
			return nil, fmt.Errorf("%w: delta key %q has unknown resource prefix", contractx.ErrValidation, key)
		}
		merged[key] += d.Amount
	}

	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]contractx.ResourceDelta, 0, len(keys))
	for _, key := range keys {
		out = append(out, contractx.ResourceDelta{Key: key, Amount: merged[key]})
	}
	return out, nil
}
