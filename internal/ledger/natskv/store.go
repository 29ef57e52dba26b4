// Package natskv implements the ledger store on a NATS JetStream
// key-value bucket: one key per owner, revisions for conditional writes,
// Watch for the live snapshot stream.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
)

// DefaultBucket is the KV bucket holding budget records.
const DefaultBucket = "BILANCIO_BUDGETS"

// Appends retry internally on revision conflicts; the store has no native
// array-append, so each append is a conditional read-modify-write.
const appendRetries = 5

type Store struct {
	kv jetstream.KeyValue
}

// Connect dials NATS and returns a JetStream context for New.
func Connect(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url, nats.Name("bilancio"))
	if err != nil {
		return nil, nil, fmt.Errorf("dial NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}
	return nc, js, nil
}

// New opens the budget bucket, creating it if absent.
func New(ctx context.Context, js jetstream.JetStream, bucket string) (*Store, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	kv, err := js.KeyValue(ctx, bucket)
	if err != nil {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "bilancio budget records",
			History:     5, // keep a few revisions for debugging
		})
		if err != nil {
			return nil, fmt.Errorf("create budget bucket: %w", err)
		}
	}
	return &Store{kv: kv}, nil
}

func (s *Store) Get(ctx context.Context, ownerID string) (ledger.Record, uint64, error) {
	entry, err := s.kv.Get(ctx, ownerID)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return ledger.Record{}, 0, ledger.ErrNotFound
		}
		return ledger.Record{}, 0, ledger.Transport("get", err)
	}
	rec, err := ledger.DecodeRecord(entry.Value())
	if err != nil {
		return ledger.Record{}, 0, err
	}
	return rec, entry.Revision(), nil
}

func (s *Store) Create(ctx context.Context, ownerID string, rec ledger.Record) error {
	data, err := ledger.EncodeRecord(rec)
	if err != nil {
		return err
	}
	if _, err := s.kv.Create(ctx, ownerID, data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return ledger.ErrAlreadyExists
		}
		return ledger.Transport("create", err)
	}
	return nil
}

func (s *Store) AppendExpense(ctx context.Context, ownerID string, ev core.ExpenseEvent) error {
	return s.appendEvent(ctx, ownerID, func(rec *ledger.Record) {
		rec.Expenses = append(rec.Expenses, ev)
	})
}

func (s *Store) AppendIncome(ctx context.Context, ownerID string, ev core.IncomeEvent) error {
	return s.appendEvent(ctx, ownerID, func(rec *ledger.Record) {
		rec.Incomes = append(rec.Incomes, ev)
	})
}

// appendEvent emulates a merge-append with a bounded CAS loop. ErrNotFound
// passes through so the gateway can run its create fallback.
func (s *Store) appendEvent(ctx context.Context, ownerID string, mutate func(*ledger.Record)) error {
	var lastErr error
	for attempt := 0; attempt < appendRetries; attempt++ {
		rec, rev, err := s.Get(ctx, ownerID)
		if err != nil {
			return err
		}
		mutate(&rec)
		data, err := ledger.EncodeRecord(rec)
		if err != nil {
			return err
		}
		_, err = s.kv.Update(ctx, ownerID, data, rev)
		if err == nil {
			return nil
		}
		if !isRevisionConflict(err) {
			return ledger.Transport("append", err)
		}
		lastErr = err
		slog.DebugContext(ctx, "Append lost revision race, retrying",
			"owner_id", ownerID, "attempt", attempt+1)
	}
	return ledger.Transport("append", fmt.Errorf("revision conflicts exhausted: %w", lastErr))
}

func (s *Store) ReplaceExpenses(ctx context.Context, ownerID string, evs []core.ExpenseEvent, revision uint64) error {
	return s.replaceField(ctx, ownerID, revision, func(rec *ledger.Record) {
		rec.Expenses = evs
	})
}

func (s *Store) ReplaceIncomes(ctx context.Context, ownerID string, evs []core.IncomeEvent, revision uint64) error {
	return s.replaceField(ctx, ownerID, revision, func(rec *ledger.Record) {
		rec.Incomes = evs
	})
}

// replaceField is a single conditional write: the caller owns the
// read-refilter-retry loop and its revision.
func (s *Store) replaceField(ctx context.Context, ownerID string, revision uint64, mutate func(*ledger.Record)) error {
	rec, rev, err := s.Get(ctx, ownerID)
	if err != nil {
		return err
	}
	if rev != revision {
		return ledger.ErrConflict
	}
	mutate(&rec)
	data, err := ledger.EncodeRecord(rec)
	if err != nil {
		return err
	}
	if _, err := s.kv.Update(ctx, ownerID, data, revision); err != nil {
		if isRevisionConflict(err) {
			return ledger.ErrConflict
		}
		return ledger.Transport("replace", err)
	}
	return nil
}

func isRevisionConflict(err error) bool {
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}
	return errors.Is(err, jetstream.ErrKeyExists)
}
