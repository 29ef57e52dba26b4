// Package gateway is the single write path to the budget ledger. It
// validates mutations, assigns event identity, and resolves deletions
// against a point-in-time read of the record.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/ledger"
	applog "bilancio/internal/log"
)

// removeRetries bounds re-reads when a conditional replace loses a race.
const removeRetries = 3

// Publisher fans committed mutations out to downstream consumers.
type Publisher interface {
	PublishMutation(ctx context.Context, msg amqp.MutationMessage) error
}

type Gateway struct {
	store  ledger.Store
	pub    Publisher
	logger *applog.Logger
	now    func() time.Time
}

func New(store ledger.Store, pub Publisher, logger *applog.Logger) *Gateway {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Gateway{
		store:  store,
		pub:    pub,
		logger: logger.WithComponent(applog.ComponentGateway),
		now:    time.Now,
	}
}

// RecordExpense appends one expense event to the owner's record, creating
// the record when it does not exist yet. The returned event carries the
// assigned ID and creation timestamp.
func (g *Gateway) RecordExpense(ctx context.Context, ownerID string, ev core.ExpenseEvent) (core.ExpenseEvent, error) {
	ev.ID = uuid.NewString()
	ev.CreatedAt = g.now().UTC()
	if err := ev.Validate(); err != nil {
		return core.ExpenseEvent{}, err
	}

	err := g.store.AppendExpense(ctx, ownerID, ev)
	if errors.Is(err, ledger.ErrNotFound) {
		err = g.store.Create(ctx, ownerID, ledger.Record{Expenses: []core.ExpenseEvent{ev}})
	}
	if err != nil {
		return core.ExpenseEvent{}, fmt.Errorf("record expense: %w", err)
	}

	g.logger.InfoContext(ctx, "Recorded expense",
		applog.FieldOwnerID, ownerID,
		applog.FieldEventID, ev.ID,
		applog.FieldCategory, ev.Category,
		applog.FieldAmountCents, ev.Amount.Cents)

	g.publish(ctx, amqp.MutationMessage{
		OwnerID:     ownerID,
		Op:          amqp.OpRecord,
		Kind:        string(core.KindExpense),
		EventID:     ev.ID,
		Category:    ev.Category,
		AmountCents: ev.Amount.Cents,
		Date:        ev.Date,
	})
	return ev, nil
}

// RecordIncome appends one income event, creating the record when absent.
func (g *Gateway) RecordIncome(ctx context.Context, ownerID string, ev core.IncomeEvent) (core.IncomeEvent, error) {
	ev.ID = uuid.NewString()
	if err := ev.Validate(); err != nil {
		return core.IncomeEvent{}, err
	}

	err := g.store.AppendIncome(ctx, ownerID, ev)
	if errors.Is(err, ledger.ErrNotFound) {
		err = g.store.Create(ctx, ownerID, ledger.Record{Incomes: []core.IncomeEvent{ev}})
	}
	if err != nil {
		return core.IncomeEvent{}, fmt.Errorf("record income: %w", err)
	}

	g.logger.InfoContext(ctx, "Recorded income",
		applog.FieldOwnerID, ownerID,
		applog.FieldEventID, ev.ID,
		applog.FieldAmountCents, ev.Amount.Cents)

	g.publish(ctx, amqp.MutationMessage{
		OwnerID:     ownerID,
		Op:          amqp.OpRecord,
		Kind:        string(core.KindIncome),
		EventID:     ev.ID,
		AmountCents: ev.Amount.Cents,
		Date:        ev.Date,
	})
	return ev, nil
}

// RemoveTransaction deletes the events the transaction identifies from a
// point-in-time read of the record. When another writer lands between the
// read and the conditional replace, the read is repeated a bounded number
// of times. An absent record is a no-op.
func (g *Gateway) RemoveTransaction(ctx context.Context, ownerID string, target core.Transaction) error {
	if err := target.Validate(); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= removeRetries; attempt++ {
		rec, revision, err := g.store.Get(ctx, ownerID)
		if errors.Is(err, ledger.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("remove transaction: %w", err)
		}

		removed, err := g.removeOnce(ctx, ownerID, rec, revision, target)
		if err == nil {
			if removed > 0 {
				g.logger.InfoContext(ctx, "Removed transaction",
					applog.FieldOwnerID, ownerID,
					applog.FieldKind, string(target.Kind),
					applog.FieldEventID, target.EventID,
					"removed_events", removed)
				g.publish(ctx, amqp.MutationMessage{
					OwnerID:     ownerID,
					Op:          amqp.OpRemove,
					Kind:        string(target.Kind),
					EventID:     target.EventID,
					Category:    target.Category,
					AmountCents: target.Amount.Cents,
					Date:        target.Date,
				})
			}
			return nil
		}
		if !errors.Is(err, ledger.ErrConflict) {
			return fmt.Errorf("remove transaction: %w", err)
		}
		lastErr = err
	}
	return fmt.Errorf("remove transaction: retries exhausted: %w", lastErr)
}

// removeOnce filters one read of the record and writes it back
// conditionally. Returns how many events were removed; zero means no
// write was needed.
func (g *Gateway) removeOnce(ctx context.Context, ownerID string, rec ledger.Record, revision uint64, target core.Transaction) (int, error) {
	switch target.Kind {
	case core.KindExpense:
		kept := make([]core.ExpenseEvent, 0, len(rec.Expenses))
		for _, ev := range rec.Expenses {
			if !target.MatchesExpense(ev) {
				kept = append(kept, ev)
			}
		}
		removed := len(rec.Expenses) - len(kept)
		if removed == 0 {
			return 0, nil
		}
		return removed, g.store.ReplaceExpenses(ctx, ownerID, kept, revision)
	case core.KindIncome:
		kept := make([]core.IncomeEvent, 0, len(rec.Incomes))
		for _, ev := range rec.Incomes {
			if !target.MatchesIncome(ev) {
				kept = append(kept, ev)
			}
		}
		removed := len(rec.Incomes) - len(kept)
		if removed == 0 {
			return 0, nil
		}
		return removed, g.store.ReplaceIncomes(ctx, ownerID, kept, revision)
	default:
		return 0, core.ErrInvalidKind
	}
}

func (g *Gateway) publish(ctx context.Context, msg amqp.MutationMessage) {
	if g.pub == nil {
		return
	}
	msg.Timestamp = g.now().UTC()
	if err := g.pub.PublishMutation(ctx, msg); err != nil {
		g.logger.ErrorContext(ctx, "Failed to publish mutation message",
			applog.FieldOwnerID, msg.OwnerID,
			"op", msg.Op,
			applog.FieldError, err)
	}
}
