package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
	"bilancio/internal/ledger/memory"
)

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func expenseAt(id string, cents int64, category string, day int) core.ExpenseEvent {
	return core.ExpenseEvent{
		ID:       id,
		Category: category,
		Amount:   core.Money{Cents: cents},
		Date:     time.Date(2026, time.May, day, 0, 0, 0, 0, time.UTC),
	}
}

func TestSubscribeMissingRecord(t *testing.T) {
	store := memory.New()
	eng := New(store, nil)

	h, err := eng.Subscribe(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer h.Close()

	eventually(t, func() bool { return h.State() == StateLive },
		"handle never reached the live state")

	proj := h.Projection()
	if proj.Exists {
		t.Error("projection for a missing record should have Exists=false")
	}
	if proj.TotalExpenses.Cents != 0 || proj.TotalIncome.Cents != 0 {
		t.Errorf("totals = %d/%d, want 0/0", proj.TotalExpenses.Cents, proj.TotalIncome.Cents)
	}
	if len(proj.Transactions) != 0 {
		t.Errorf("got %d transactions, want 0", len(proj.Transactions))
	}
}

func TestProjectionFollowsMutations(t *testing.T) {
	store := memory.New()
	eng := New(store, nil)
	ctx := context.Background()

	if err := store.Create(ctx, "alice", ledger.Record{
		Expenses: []core.ExpenseEvent{expenseAt("e1", 1000, "Food", 1)},
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	h, err := eng.Subscribe(ctx, "alice")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer h.Close()

	eventually(t, func() bool { return h.Projection().TotalExpenses.Cents == 1000 },
		"initial snapshot never arrived")

	if err := store.AppendExpense(ctx, "alice", expenseAt("e2", 500, "Transport", 2)); err != nil {
		t.Fatalf("AppendExpense() error = %v", err)
	}

	eventually(t, func() bool { return h.Projection().TotalExpenses.Cents == 1500 },
		"appended expense never reached the projection")

	proj := h.Projection()
	if len(proj.Transactions) != 2 {
		t.Errorf("got %d transactions, want 2", len(proj.Transactions))
	}
}

func TestDeliveryErrorRetainsProjection(t *testing.T) {
	store := memory.New()
	eng := New(store, nil)
	ctx := context.Background()

	if err := store.Create(ctx, "alice", ledger.Record{
		Expenses: []core.ExpenseEvent{expenseAt("e1", 1000, "Food", 1)},
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	h, err := eng.Subscribe(ctx, "alice")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer h.Close()

	eventually(t, func() bool { return h.State() == StateLive },
		"handle never reached the live state")

	transportErr := errors.New("stream interrupted")
	store.FailWatchers("alice", transportErr)

	eventually(t, func() bool { return h.State() == StateError },
		"handle never entered the error state")

	if !errors.Is(h.LastError(), transportErr) {
		t.Errorf("LastError() = %v, want %v", h.LastError(), transportErr)
	}
	if h.Projection().TotalExpenses.Cents != 1000 {
		t.Error("projection should be retained across delivery errors")
	}

	// A later snapshot recovers the subscription.
	if err := store.AppendExpense(ctx, "alice", expenseAt("e2", 500, "Transport", 2)); err != nil {
		t.Fatalf("AppendExpense() error = %v", err)
	}
	eventually(t, func() bool { return h.State() == StateLive },
		"handle never recovered to the live state")
	if h.LastError() != nil {
		t.Errorf("LastError() after recovery = %v, want nil", h.LastError())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	eng := New(memory.New(), nil)

	h, err := eng.Subscribe(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	h.Close()
	h.Close()

	if h.State() != StateUnsubscribed {
		t.Errorf("State() after Close = %s, want %s", h.State(), StateUnsubscribed)
	}
}

func TestSessionSwitchesOwners(t *testing.T) {
	store := memory.New()
	eng := New(store, nil)
	ctx := context.Background()

	if err := store.Create(ctx, "alice", ledger.Record{
		Expenses: []core.ExpenseEvent{expenseAt("a1", 1000, "Food", 1)},
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Create(ctx, "bob", ledger.Record{
		Expenses: []core.ExpenseEvent{expenseAt("b1", 7777, "Rent", 1)},
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	sess := NewSession(eng)
	defer sess.Clear()

	if err := sess.SetOwner(ctx, "alice"); err != nil {
		t.Fatalf("SetOwner() error = %v", err)
	}
	eventually(t, func() bool { return sess.Projection().TotalExpenses.Cents == 1000 },
		"session never saw alice's projection")

	if err := sess.SetOwner(ctx, "bob"); err != nil {
		t.Fatalf("SetOwner() error = %v", err)
	}
	eventually(t, func() bool { return sess.Projection().TotalExpenses.Cents == 7777 },
		"session never saw bob's projection")

	// A mutation against the previous owner must not leak into the
	// session now following bob.
	if err := store.AppendExpense(ctx, "alice", expenseAt("a2", 50000, "Travel", 2)); err != nil {
		t.Fatalf("AppendExpense() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := sess.Projection().TotalExpenses.Cents; got != 7777 {
		t.Errorf("session projection = %d cents, want bob's 7777", got)
	}
	if sess.OwnerID() != "bob" {
		t.Errorf("OwnerID() = %s, want bob", sess.OwnerID())
	}
}

func TestSessionClear(t *testing.T) {
	eng := New(memory.New(), nil)
	sess := NewSession(eng)

	if err := sess.SetOwner(context.Background(), "alice"); err != nil {
		t.Fatalf("SetOwner() error = %v", err)
	}
	sess.Clear()

	if sess.State() != StateUnsubscribed {
		t.Errorf("State() after Clear = %s, want %s", sess.State(), StateUnsubscribed)
	}
	if sess.OwnerID() != "" {
		t.Errorf("OwnerID() after Clear = %q, want empty", sess.OwnerID())
	}
}

// watchFailStore fails Watch for one owner to simulate an unreachable
// subscription stream.
type watchFailStore struct {
	*memory.Store
	failOwner string
}

func (s *watchFailStore) Watch(ctx context.Context, ownerID string) (ledger.Watcher, error) {
	if ownerID == s.failOwner {
		return nil, ledger.Transport("watch", errors.New("stream unavailable"))
	}
	return s.Store.Watch(ctx, ownerID)
}

func TestSessionSubscribeFailureClearsProjection(t *testing.T) {
	store := &watchFailStore{Store: memory.New(), failOwner: "bob"}
	eng := New(store, nil)
	ctx := context.Background()

	if err := store.Create(ctx, "alice", ledger.Record{
		Expenses: []core.ExpenseEvent{expenseAt("a1", 1000, "Food", 1)},
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	sess := NewSession(eng)
	defer sess.Clear()

	if err := sess.SetOwner(ctx, "alice"); err != nil {
		t.Fatalf("SetOwner(alice) error = %v", err)
	}
	eventually(t, func() bool { return sess.Projection().TotalExpenses.Cents == 1000 },
		"session never saw alice's projection")

	if err := sess.SetOwner(ctx, "bob"); err == nil {
		t.Fatal("SetOwner(bob) should fail when the watch cannot be opened")
	}

	if sess.OwnerID() != "bob" {
		t.Errorf("OwnerID() = %s, want bob", sess.OwnerID())
	}
	if sess.State() != StateError {
		t.Errorf("State() = %s, want %s", sess.State(), StateError)
	}
	if p := sess.Projection(); p.Exists || p.TotalExpenses.Cents != 0 {
		t.Errorf("projection after failed switch = %+v, want empty", p)
	}
	if sess.LastError() == nil {
		t.Error("LastError() should carry the subscribe failure")
	}
}
