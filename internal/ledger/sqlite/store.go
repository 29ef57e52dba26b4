// Package sqlite implements the ledger store on a local SQLite database.
// Events live in a row-per-event table; each mutation bumps the record
// revision inside the same transaction, and committed states are fanned
// out to in-process watchers.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
)

type Store struct {
	db  *sql.DB
	hub *ledger.Hub

	// wmu serializes commit and broadcast so watchers see snapshots in
	// revision order. Without it a writer that commits first can lose
	// the race to broadcast and deliver its stale state last.
	wmu sync.Mutex
}

func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, hub: ledger.NewHub()}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Get(ctx context.Context, ownerID string) (ledger.Record, uint64, error) {
	var revision uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT revision FROM budgets WHERE owner_id = ?`, ownerID).Scan(&revision)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Record{}, 0, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Record{}, 0, ledger.Transport("get", err)
	}

	rec, err := s.loadEvents(ctx, ownerID)
	if err != nil {
		return ledger.Record{}, 0, err
	}
	return rec, revision, nil
}

func (s *Store) Create(ctx context.Context, ownerID string, rec ledger.Record) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM budgets WHERE owner_id = ?`, ownerID).Scan(&exists)
		if err == nil {
			return ledger.ErrAlreadyExists
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO budgets (owner_id, revision) VALUES (?, 1)`, ownerID); err != nil {
			return err
		}
		for _, ev := range rec.Expenses {
			if err := insertExpense(ctx, tx, ownerID, ev); err != nil {
				return err
			}
		}
		for _, ev := range rec.Incomes {
			if err := insertIncome(ctx, tx, ownerID, ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ledger.Transport("create", err)
	}
	s.broadcast(ctx, ownerID)
	return nil
}

func (s *Store) AppendExpense(ctx context.Context, ownerID string, ev core.ExpenseEvent) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := bumpRevision(ctx, tx, ownerID, 0); err != nil {
			return err
		}
		return insertExpense(ctx, tx, ownerID, ev)
	})
	if err != nil {
		return ledger.Transport("append expense", err)
	}
	s.broadcast(ctx, ownerID)
	return nil
}

func (s *Store) AppendIncome(ctx context.Context, ownerID string, ev core.IncomeEvent) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := bumpRevision(ctx, tx, ownerID, 0); err != nil {
			return err
		}
		return insertIncome(ctx, tx, ownerID, ev)
	})
	if err != nil {
		return ledger.Transport("append income", err)
	}
	s.broadcast(ctx, ownerID)
	return nil
}

func (s *Store) ReplaceExpenses(ctx context.Context, ownerID string, evs []core.ExpenseEvent, revision uint64) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := bumpRevision(ctx, tx, ownerID, revision); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM budget_events WHERE owner_id = ? AND field = ?`,
			ownerID, string(ledger.FieldExpenses)); err != nil {
			return err
		}
		for _, ev := range evs {
			if err := insertExpense(ctx, tx, ownerID, ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ledger.Transport("replace expenses", err)
	}
	s.broadcast(ctx, ownerID)
	return nil
}

func (s *Store) ReplaceIncomes(ctx context.Context, ownerID string, evs []core.IncomeEvent, revision uint64) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := bumpRevision(ctx, tx, ownerID, revision); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM budget_events WHERE owner_id = ? AND field = ?`,
			ownerID, string(ledger.FieldIncomes)); err != nil {
			return err
		}
		for _, ev := range evs {
			if err := insertIncome(ctx, tx, ownerID, ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ledger.Transport("replace incomes", err)
	}
	s.broadcast(ctx, ownerID)
	return nil
}

// Watch registers under wmu so the initial snapshot cannot interleave
// with a concurrent writer's broadcast.
func (s *Store) Watch(ctx context.Context, ownerID string) (ledger.Watcher, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	initial := ledger.Snapshot{}
	rec, rev, err := s.Get(ctx, ownerID)
	switch {
	case err == nil:
		initial = ledger.Snapshot{Record: rec, Exists: true, Revision: rev}
	case errors.Is(err, ledger.ErrNotFound):
	default:
		return nil, err
	}
	return s.hub.Watch(ctx, ownerID, initial), nil
}

// bumpRevision increments the record revision, enforcing the expected
// revision when one is supplied (conditional writes).
func bumpRevision(ctx context.Context, tx *sql.Tx, ownerID string, expected uint64) error {
	var current uint64
	err := tx.QueryRowContext(ctx,
		`SELECT revision FROM budgets WHERE owner_id = ?`, ownerID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ErrNotFound
	}
	if err != nil {
		return err
	}
	if expected != 0 && current != expected {
		return ledger.ErrConflict
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE budgets SET revision = revision + 1 WHERE owner_id = ?`, ownerID)
	return err
}

func insertExpense(ctx context.Context, tx *sql.Tx, ownerID string, ev core.ExpenseEvent) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO budget_events (owner_id, field, event_id, category, amount_cents, event_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ownerID, string(ledger.FieldExpenses), ev.ID, ev.Category,
		ev.Amount.Cents, ev.Date.UTC().Format(time.RFC3339Nano), ev.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func insertIncome(ctx context.Context, tx *sql.Tx, ownerID string, ev core.IncomeEvent) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO budget_events (owner_id, field, event_id, category, amount_cents, event_date, created_at)
		 VALUES (?, ?, ?, '', ?, ?, '')`,
		ownerID, string(ledger.FieldIncomes), ev.ID,
		ev.Amount.Cents, ev.Date.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *Store) loadEvents(ctx context.Context, ownerID string) (ledger.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT field, event_id, category, amount_cents, event_date, created_at
		 FROM budget_events WHERE owner_id = ? ORDER BY id`, ownerID)
	if err != nil {
		return ledger.Record{}, ledger.Transport("load events", err)
	}
	defer rows.Close()

	var rec ledger.Record
	for rows.Next() {
		var (
			field, eventID, category, eventDate, createdAt string
			amountCents                                    int64
		)
		if err := rows.Scan(&field, &eventID, &category, &amountCents, &eventDate, &createdAt); err != nil {
			return ledger.Record{}, ledger.Transport("scan event", err)
		}
		date, err := parseEventTime(eventDate)
		if err != nil {
			return ledger.Record{}, err
		}
		switch ledger.Field(field) {
		case ledger.FieldExpenses:
			created, err := parseEventTime(createdAt)
			if err != nil {
				return ledger.Record{}, err
			}
			rec.Expenses = append(rec.Expenses, core.ExpenseEvent{
				ID:        eventID,
				Category:  category,
				Amount:    core.Money{Cents: amountCents},
				Date:      date,
				CreatedAt: created,
			})
		case ledger.FieldIncomes:
			rec.Incomes = append(rec.Incomes, core.IncomeEvent{
				ID:     eventID,
				Amount: core.Money{Cents: amountCents},
				Date:   date,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return ledger.Record{}, ledger.Transport("iterate events", err)
	}
	return rec, nil
}

func parseEventTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Transaction rollback failed", "error", rbErr)
		}
		return err
	}
	return tx.Commit()
}

// broadcast pushes the committed state to watchers. A read failure here
// only costs a notification, never the write.
func (s *Store) broadcast(ctx context.Context, ownerID string) {
	rec, rev, err := s.Get(ctx, ownerID)
	if err != nil {
		slog.WarnContext(ctx, "Failed to load record for watch broadcast",
			"owner_id", ownerID, "error", err)
		s.hub.Fail(ownerID, err)
		return
	}
	s.hub.Broadcast(ownerID, ledger.Snapshot{Record: rec, Exists: true, Revision: rev})
}
