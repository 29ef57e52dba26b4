// Package memory provides an in-process ledger store used by tests and
// the demo backend. Semantics mirror the remote adapters: conditional
// replaces, create-vs-append duality and live watchers.
package memory

import (
	"context"
	"sync"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
)

type entry struct {
	rec      ledger.Record
	revision uint64
}

type Store struct {
	mu      sync.Mutex
	records map[string]*entry
	hub     *ledger.Hub
}

func New() *Store {
	return &Store{
		records: make(map[string]*entry),
		hub:     ledger.NewHub(),
	}
}

func (s *Store) Get(_ context.Context, ownerID string) (ledger.Record, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[ownerID]
	if !ok {
		return ledger.Record{}, 0, ledger.ErrNotFound
	}
	return e.rec.Clone(), e.revision, nil
}

func (s *Store) Create(_ context.Context, ownerID string, rec ledger.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[ownerID]; ok {
		return ledger.ErrAlreadyExists
	}
	e := &entry{rec: rec.Clone(), revision: 1}
	s.records[ownerID] = e
	s.broadcastLocked(ownerID, e)
	return nil
}

func (s *Store) AppendExpense(_ context.Context, ownerID string, ev core.ExpenseEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[ownerID]
	if !ok {
		return ledger.ErrNotFound
	}
	e.rec.Expenses = append(e.rec.Expenses, ev)
	e.revision++
	s.broadcastLocked(ownerID, e)
	return nil
}

func (s *Store) AppendIncome(_ context.Context, ownerID string, ev core.IncomeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[ownerID]
	if !ok {
		return ledger.ErrNotFound
	}
	e.rec.Incomes = append(e.rec.Incomes, ev)
	e.revision++
	s.broadcastLocked(ownerID, e)
	return nil
}

func (s *Store) ReplaceExpenses(_ context.Context, ownerID string, evs []core.ExpenseEvent, revision uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[ownerID]
	if !ok {
		return ledger.ErrNotFound
	}
	if e.revision != revision {
		return ledger.ErrConflict
	}
	e.rec.Expenses = append([]core.ExpenseEvent(nil), evs...)
	e.revision++
	s.broadcastLocked(ownerID, e)
	return nil
}

func (s *Store) ReplaceIncomes(_ context.Context, ownerID string, evs []core.IncomeEvent, revision uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[ownerID]
	if !ok {
		return ledger.ErrNotFound
	}
	if e.revision != revision {
		return ledger.ErrConflict
	}
	e.rec.Incomes = append([]core.IncomeEvent(nil), evs...)
	e.revision++
	s.broadcastLocked(ownerID, e)
	return nil
}

func (s *Store) Watch(ctx context.Context, ownerID string) (ledger.Watcher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	initial := ledger.Snapshot{}
	if e, ok := s.records[ownerID]; ok {
		initial = ledger.Snapshot{Record: e.rec.Clone(), Exists: true, Revision: e.revision}
	}
	return s.hub.Watch(ctx, ownerID, initial), nil
}

// FailWatchers injects a stream error for every watcher of the owner.
// Exercised by tests to simulate transport faults; data is not cleared.
func (s *Store) FailWatchers(ownerID string, err error) {
	s.hub.Fail(ownerID, err)
}

func (s *Store) broadcastLocked(ownerID string, e *entry) {
	s.hub.Broadcast(ownerID, ledger.Snapshot{
		Record:   e.rec.Clone(),
		Exists:   true,
		Revision: e.revision,
	})
}
