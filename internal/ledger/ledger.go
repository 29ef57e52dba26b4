// Package ledger defines the ports for the remote budget record store.
//
// One record per owner; the record does not exist until the first mutation
// and is never deleted. Adapters live in the natskv, sqlite and memory
// subpackages.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"bilancio/internal/core"
)

// Fields of the budget record holding event arrays.
const (
	FieldExpenses Field = "expenses"
	FieldIncomes  Field = "incomes"
)

type (
	Field string

	// Record is the per-owner budget document body. Absent arrays decode
	// to nil, which every consumer treats as empty.
	Record struct {
		Expenses []core.ExpenseEvent `json:"expenses,omitempty"`
		Incomes  []core.IncomeEvent  `json:"incomes,omitempty"`
	}

	// Snapshot is one point-in-time delivery of a record through a
	// watcher. Exists is false until the record is first created.
	// Revision is the store revision the snapshot was taken at.
	Snapshot struct {
		Record   Record
		Exists   bool
		Revision uint64
	}
)

// Watcher is a live, restartable stream of record snapshots for a single
// owner. The first snapshot (possibly Exists=false) is delivered promptly
// after Watch; transport failures surface on Errors without terminating
// Snapshots. Stop releases the stream and closes Snapshots.
type Watcher interface {
	Snapshots() <-chan Snapshot
	Errors() <-chan error
	Stop()
}

// Store is the narrow contract the core needs from the document store.
//
// Append operations are additive only and fail with ErrNotFound when the
// record is absent; callers handle the create fallback. Replace operations
// are conditional on the revision returned by Get and fail with
// ErrConflict when a concurrent write won.
type Store interface {
	Get(ctx context.Context, ownerID string) (Record, uint64, error)
	Create(ctx context.Context, ownerID string, rec Record) error
	AppendExpense(ctx context.Context, ownerID string, ev core.ExpenseEvent) error
	AppendIncome(ctx context.Context, ownerID string, ev core.IncomeEvent) error
	ReplaceExpenses(ctx context.Context, ownerID string, evs []core.ExpenseEvent, revision uint64) error
	ReplaceIncomes(ctx context.Context, ownerID string, evs []core.IncomeEvent, revision uint64) error
	Watch(ctx context.Context, ownerID string) (Watcher, error)
}

// DecodeRecord parses a raw stored document. Unknown fields are ignored
// and missing arrays stay nil, so records written by older clients decode
// cleanly.
func DecodeRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode budget record: %w", err)
	}
	return rec, nil
}

// EncodeRecord serializes a record for storage.
func EncodeRecord(rec Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode budget record: %w", err)
	}
	return data, nil
}

// Clone returns a deep copy so adapters never hand out aliased slices.
func (r Record) Clone() Record {
	out := Record{}
	if r.Expenses != nil {
		out.Expenses = append([]core.ExpenseEvent(nil), r.Expenses...)
	}
	if r.Incomes != nil {
		out.Incomes = append([]core.IncomeEvent(nil), r.Incomes...)
	}
	return out
}
