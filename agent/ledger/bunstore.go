package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	contractx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/contract"
)

type PostgresConfig struct {
	DSN          string        `envconfig:"DSN" split_words:"true" required:"true"`
	DialTimeout  time.Duration `envconfig:"DIAL_TIMEOUT" split_words:"true" default:"5s"`
	MaxOpenConns int           `envconfig:"MAX_OPEN_CONNS" split_words:"true" default:"8"`
}

func NewDB(cfg PostgresConfig) (*bun.DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithDialTimeout(cfg.DialTimeout),
	))
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

type inventoryRow struct {
	bun.BaseModel `bun:"table:inventory_items,alias:ii"`

	SKU              string `bun:"sku,pk"`
	QuantityOnHand   int64  `bun:"quantity_on_hand,notnull"`
	ReorderThreshold int64  `bun:"reorder_threshold,notnull"`
	UnitPriceCents   int64  `bun:"unit_price_cents,notnull"`
}

type cashAccountRow struct {
	bun.BaseModel `bun:"table:cash_accounts,alias:ca"`

	Account      string `bun:"account,pk"`
	BalanceCents int64  `bun:"balance_cents,notnull"`
}

type ledgerRow struct {
	bun.BaseModel `bun:"table:ledger_entries,alias:le"`

	ID            int64     `bun:"id,pk,autoincrement"`
	TransactionID string    `bun:"transaction_id,notnull"`
	RequestID     string    `bun:"request_id,notnull"`
	ResourceKey   string    `bun:"resource_key,notnull"`
	Amount        int64     `bun:"amount,notnull"`
	Memo          string    `bun:"memo"`
	CommittedAt   time.Time `bun:"committed_at,notnull"`
}

type quoteHistoryRow struct {
	bun.BaseModel `bun:"table:quote_history,alias:qh"`

	ID            int64     `bun:"id,pk,autoincrement"`
	CustomerID    string    `bun:"customer_id,notnull"`
	SKU           string    `bun:"sku,notnull"`
	Quantity      int64     `bun:"quantity,notnull"`
	TotalCents    int64     `bun:"total_cents,notnull"`
	DiscountCents int64     `bun:"discount_cents,notnull"`
	QuotedAt      time.Time `bun:"quoted_at,notnull"`
}

// BunStore persists resources and the ledger in Postgres. The database
// transaction in ApplyCommitted is the durability boundary: commit
// returns only after every delta and ledger row is written.
type BunStore struct {
	db *bun.DB
}

func NewBunStore(db *bun.DB) (*BunStore, error) {
	if db == nil {
		return nil, errors.New("bun db is required")
	}
	return &BunStore{db: db}, nil
}

// CreateSchema creates the backing tables if missing.
func (s *BunStore) CreateSchema(ctx context.Context) error {
	models := []any{
		(*inventoryRow)(nil),
		(*cashAccountRow)(nil),
		(*ledgerRow)(nil),
		(*quoteHistoryRow)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	return nil
}

func (s *BunStore) ReadAmounts(ctx context.Context, keys []string) (map[string]int64, error) {
	out := make(map[string]int64, len(keys))

	for _, key := range keys {
		switch {
		case strings.HasPrefix(key, keyPrefixInventory):
			var row inventoryRow
			err := s.db.NewSelect().Model(&row).
				Where("sku = ?", strings.TrimPrefix(key, keyPrefixInventory)).
				Scan(ctx)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("%w: read %s: %v", contractx.ErrTransientFailure, key, err)
			}
			out[key] = row.QuantityOnHand
		case strings.HasPrefix(key, keyPrefixCash):
			var row cashAccountRow
			err := s.db.NewSelect().Model(&row).
				Where("account = ?", strings.TrimPrefix(key, keyPrefixCash)).
				Scan(ctx)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("%w: read %s: %v", contractx.ErrTransientFailure, key, err)
			}
			out[key] = row.BalanceCents
		}
	}
	return out, nil
}

// ApplyCommitted applies every delta and the ledger rows inside one
// database transaction. Guarded updates re-check non-negativity so a
// commit racing another process fails as a conflict instead of tearing
// state; deltas arrive pre-sorted by key, which keeps row lock order
// consistent across concurrent commits.
func (s *BunStore) ApplyCommitted(ctx context.Context, tx contractx.Transaction) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, dbTx bun.Tx) error {
		for _, d := range tx.Deltas {
			switch {
			case strings.HasPrefix(d.Key, keyPrefixInventory):
				res, err := dbTx.NewUpdate().Model((*inventoryRow)(nil)).
					Set("quantity_on_hand = quantity_on_hand + ?", d.Amount).
					Where("sku = ?", strings.TrimPrefix(d.Key, keyPrefixInventory)).
					Where("quantity_on_hand + ? >= 0", d.Amount).
					Exec(ctx)
				if err != nil {
					return fmt.Errorf("%w: update %s: %v", contractx.ErrTransientFailure, d.Key, err)
				}
				if n, _ := res.RowsAffected(); n != 1 {
					return fmt.Errorf("%w: %s changed under commit", contractx.ErrConcurrentConflict, d.Key)
				}
			case strings.HasPrefix(d.Key, keyPrefixCash):
				res, err := dbTx.NewUpdate().Model((*cashAccountRow)(nil)).
					Set("balance_cents = balance_cents + ?", d.Amount).
					Where("account = ?", strings.TrimPrefix(d.Key, keyPrefixCash)).
					Exec(ctx)
				if err != nil {
					return fmt.Errorf("%w: update %s: %v", contractx.ErrTransientFailure, d.Key, err)
				}
				if n, _ := res.RowsAffected(); n != 1 {
					return fmt.Errorf("%w: %s changed under commit", contractx.ErrConcurrentConflict, d.Key)
				}
			}
		}

		rows := make([]ledgerRow, 0, len(tx.Deltas))
		for _, d := range tx.Deltas {
			rows = append(rows, ledgerRow{
				TransactionID: tx.ID,
				RequestID:     tx.RequestID,
				ResourceKey:   d.Key,
				Amount:        d.Amount,
				Memo:          tx.Memo,
				CommittedAt:   tx.CommittedAt,
			})
		}
		if _, err := dbTx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("%w: append ledger: %v", contractx.ErrTransientFailure, err)
		}
		return nil
	})
}

func (s *BunStore) Item(ctx context.Context, sku string) (contractx.InventoryItem, error) {
	var row inventoryRow
	err := s.db.NewSelect().Model(&row).Where("sku = ?", sku).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.InventoryItem{}, fmt.Errorf("%w: unknown sku %s", contractx.ErrPermanentFailure, sku)
	}
	if err != nil {
		return contractx.InventoryItem{}, fmt.Errorf("%w: %v", contractx.ErrTransientFailure, err)
	}
	return contractx.InventoryItem{
		SKU:              row.SKU,
		QuantityOnHand:   row.QuantityOnHand,
		ReorderThreshold: row.ReorderThreshold,
		UnitPriceCents:   row.UnitPriceCents,
	}, nil
}

func (s *BunStore) Items(ctx context.Context) ([]contractx.InventoryItem, error) {
	var rows []inventoryRow
	if err := s.db.NewSelect().Model(&rows).Order("sku ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrTransientFailure, err)
	}
	out := make([]contractx.InventoryItem, 0, len(rows))
	for _, row := range rows {
		out = append(out, contractx.InventoryItem{
			SKU:              row.SKU,
			QuantityOnHand:   row.QuantityOnHand,
			ReorderThreshold: row.ReorderThreshold,
			UnitPriceCents:   row.UnitPriceCents,
		})
	}
	return out, nil
}

func (s *BunStore) Balance(ctx context.Context, account string) (int64, error) {
	var row cashAccountRow
	err := s.db.NewSelect().Model(&row).Where("account = ?", account).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: unknown cash account %s", contractx.ErrPermanentFailure, account)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", contractx.ErrTransientFailure, err)
	}
	return row.BalanceCents, nil
}

func (s *BunStore) SearchQuotes(ctx context.Context, terms []string, limit int) ([]contractx.QuoteHistoryEntry, error) {
	if limit <= 0 {
		limit = 5
	}

	q := s.db.NewSelect().Model((*quoteHistoryRow)(nil)).Order("quoted_at DESC").Limit(limit)
	if len(terms) > 0 {
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			for _, term := range terms {
				pattern := "%" + strings.TrimSpace(term) + "%"
				q = q.WhereOr("customer_id ILIKE ?", pattern).WhereOr("sku ILIKE ?", pattern)
			}
			return q
		})
	}

	var rows []quoteHistoryRow
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrTransientFailure, err)
	}

	out := make([]contractx.QuoteHistoryEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, contractx.QuoteHistoryEntry{
			CustomerID:    row.CustomerID,
			SKU:           row.SKU,
			Quantity:      row.Quantity,
			TotalCents:    row.TotalCents,
			DiscountCents: row.DiscountCents,
			QuotedAt:      row.QuotedAt,
		})
	}
	return out, nil
}

// Reconcile verifies that every cash account balance equals the sum of
// its committed ledger deltas.
func (s *BunStore) Reconcile(ctx context.Context) error {
	var accounts []cashAccountRow
	if err := s.db.NewSelect().Model(&accounts).Scan(ctx); err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrTransientFailure, err)
	}

	for _, account := range accounts {
		var sum int64
		err := s.db.NewSelect().Model((*ledgerRow)(nil)).
			ColumnExpr("COALESCE(SUM(amount), 0)").
			Where("resource_key = ?", CashKey(account.Account)).
			Scan(ctx, &sum)
		if err != nil {
			return fmt.Errorf("%w: %v", contractx.ErrTransientFailure, err)
		}
		if sum != account.BalanceCents {
			return fmt.Errorf("%w: account %s running=%d ledger=%d",
				contractx.ErrLedgerInconsistent, account.Account, account.BalanceCents, sum)
		}
	}
	return nil
}
