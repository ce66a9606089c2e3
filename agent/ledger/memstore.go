package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	contractx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/contract"
)

// MemoryStore is the in-process Store used by tests and single-node
// deployments. Cash balances are never set directly: they are running
// sums over the committed ledger, seeded through a seed transaction.
type MemoryStore struct {
	mu       sync.RWMutex
	items    map[string]contractx.InventoryItem
	balances map[string]int64
	ledger   []contractx.Transaction
	quotes   []contractx.QuoteHistoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:    make(map[string]contractx.InventoryItem),
		balances: make(map[string]int64),
	}
}

// SeedInventory registers items with their opening quantities.
func (s *MemoryStore) SeedInventory(items ...contractx.InventoryItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.items[item.SKU] = item
	}
}

// SeedCash opens an account by appending a seed transaction to the
// ledger, keeping the balance ledger-derived from the start.
func (s *MemoryStore) SeedCash(account string, cents int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := CashKey(account)
	s.ledger = append(s.ledger, contractx.Transaction{
		ID:          uuid.NewString(),
		RequestID:   "seed",
		Deltas:      []contractx.ResourceDelta{{Key: key, Amount: cents}},
		Status:      contractx.TxCommitted,
		Memo:        "opening balance",
		CommittedAt: time.Now().UTC(),
	})
	s.balances[key] += cents
}

func (s *MemoryStore) SeedQuoteHistory(entries ...contractx.QuoteHistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes = append(s.quotes, entries...)
}

func (s *MemoryStore) ReadAmounts(ctx context.Context, keys []string) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int64, len(keys))
	for _, key := range keys {
		switch {
		case strings.HasPrefix(key, keyPrefixInventory):
			item, ok := s.items[strings.TrimPrefix(key, keyPrefixInventory)]
			if !ok {
				continue
			}
			out[key] = item.QuantityOnHand
		case strings.HasPrefix(key, keyPrefixCash):
			balance, ok := s.balances[key]
			if !ok {
				continue
			}
			out[key] = balance
		}
	}
	return out, nil
}

func (s *MemoryStore) ApplyCommitted(ctx context.Context, tx contractx.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate everything before touching anything so a late failure
	// cannot leave a partial apply.
	for _, d := range tx.Deltas {
		if strings.HasPrefix(d.Key, keyPrefixInventory) {
			sku := strings.TrimPrefix(d.Key, keyPrefixInventory)
			if _, ok := s.items[sku]; !ok {
				return fmt.Errorf("%w: unknown sku %s", contractx.ErrInsufficientStock, sku)
			}
		}
	}

	for _, d := range tx.Deltas {
		switch {
		case strings.HasPrefix(d.Key, keyPrefixInventory):
			sku := strings.TrimPrefix(d.Key, keyPrefixInventory)
			item := s.items[sku]
			item.QuantityOnHand += d.Amount
			s.items[sku] = item
		case strings.HasPrefix(d.Key, keyPrefixCash):
			s.balances[d.Key] += d.Amount
		}
	}

	s.ledger = append(s.ledger, tx)
	return nil
}

// Item returns a single inventory item by SKU.
func (s *MemoryStore) Item(ctx context.Context, sku string) (contractx.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[sku]
	if !ok {
		return contractx.InventoryItem{}, fmt.Errorf("%w: unknown sku %s", contractx.ErrPermanentFailure, sku)
	}
	return item, nil
}

// Items returns a snapshot of all inventory items, sorted by SKU.
func (s *MemoryStore) Items(ctx context.Context) ([]contractx.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]contractx.InventoryItem, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

// Balance returns the ledger-derived balance for an account.
func (s *MemoryStore) Balance(ctx context.Context, account string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	balance, ok := s.balances[CashKey(account)]
	if !ok {
		return 0, fmt.Errorf("%w: unknown cash account %s", contractx.ErrPermanentFailure, account)
	}
	return balance, nil
}

// Ledger returns a copy of the committed transaction ledger.
func (s *MemoryStore) Ledger(ctx context.Context) ([]contractx.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]contractx.Transaction(nil), s.ledger...), nil
}

// SearchQuotes returns quote history entries matching any term against
// customer id or SKU, newest first, capped at limit.
func (s *MemoryStore) SearchQuotes(ctx context.Context, terms []string, limit int) ([]contractx.QuoteHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 5
	}

	matched := make([]contractx.QuoteHistoryEntry, 0, limit)
	for i := len(s.quotes) - 1; i >= 0 && len(matched) < limit; i-- {
		entry := s.quotes[i]
		if quoteMatches(entry, terms) {
			matched = append(matched, entry)
		}
	}
	return matched, nil
}

func quoteMatches(entry contractx.QuoteHistoryEntry, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	for _, term := range terms {
		t := strings.ToLower(strings.TrimSpace(term))
		if t == "" {
			continue
		}
		if strings.Contains(strings.ToLower(entry.CustomerID), t) ||
			strings.Contains(strings.ToLower(entry.SKU), t) {
			return true
		}
	}
	return false
}

// Reconcile recomputes every cash balance from the committed ledger
// and compares it with the running sums. Any mismatch is a ledger
// inconsistency, fatal for the affected account.
func (s *MemoryStore) Reconcile(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	derived := make(map[string]int64, len(s.balances))
	for _, tx := range s.ledger {
		if tx.Status != contractx.TxCommitted {
			continue
		}
		for _, d := range tx.Deltas {
			if strings.HasPrefix(d.Key, keyPrefixCash) {
				derived[d.Key] += d.Amount
			}
		}
	}

	for key, want := range derived {
		if got := s.balances[key]; got != want {
			return fmt.Errorf("%w: %s running=%d ledger=%d", contractx.ErrLedgerInconsistent, key, got, want)
		}
	}
	for key, got := range s.balances {
		if _, ok := derived[key]; !ok && got != 0 {
			return fmt.Errorf("%w: %s has balance %d with no ledger entries", contractx.ErrLedgerInconsistent, key, got)
		}
	}
	return nil
}
