package inventory

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/anusha9573/SmartRefridgerator/pkg/types"
)

func fastPolicy() Option {
	return WithRetryPolicy(RetryPolicy{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	})
}

func TestApplyAddCreatesRecord(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	r := NewReconciler(ledger)

	res, err := r.Apply(ctx, "eggs", types.Added, 4)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Quantity != 4 || res.Skipped {
		t.Fatalf("result = %+v, want quantity 4", res)
	}

	rec, ok, err := ledger.Find(ctx, "eggs")
	if err != nil || !ok {
		t.Fatalf("Find eggs = %v, %v", ok, err)
	}
	want := types.InventoryRecord{Name: "eggs", Quantity: 4, Unit: nil}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyAddIsMonotonic(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger(types.InventoryRecord{Name: "milk", Quantity: 7})
	r := NewReconciler(ledger)

	for _, c := range []int{1, 3, 10} {
		before, _, _ := ledger.Find(ctx, "milk")
		res, err := r.Apply(ctx, "milk", types.Added, c)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if res.Quantity != before.Quantity+c {
			t.Fatalf("quantity = %d, want %d", res.Quantity, before.Quantity+c)
		}
	}
}

func TestApplyRemoveClampsAtZero(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger(types.InventoryRecord{Name: "milk", Quantity: 2})
	r := NewReconciler(ledger)

	res, err := r.Apply(ctx, "milk", types.Removed, 5)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Quantity != 0 || res.Skipped {
		t.Fatalf("result = %+v, want quantity 0", res)
	}
	rec, _, _ := ledger.Find(ctx, "milk")
	if rec.Quantity != 0 {
		t.Fatalf("stored quantity = %d, want 0", rec.Quantity)
	}
}

func TestApplyRemoveFloor(t *testing.T) {
	ctx := context.Background()
	for q := 0; q < 6; q++ {
		for c := 1; c < 6; c++ {
			ledger := NewMemoryLedger(types.InventoryRecord{Name: "juice", Quantity: q})
			res, err := NewReconciler(ledger).Apply(ctx, "juice", types.Removed, c)
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if want := max(0, q-c); res.Quantity != want {
				t.Fatalf("q=%d c=%d: quantity = %d, want %d", q, c, res.Quantity, want)
			}
		}
	}
}

func TestApplyRemoveAbsentIsNoop(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger(types.InventoryRecord{Name: "milk", Quantity: 1})
	r := NewReconciler(ledger)

	before, _ := ledger.List(ctx)
	res, err := r.Apply(ctx, "ghost", types.Removed, 5)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.Skipped {
		t.Fatalf("expected Skipped result, got %+v", res)
	}
	if _, ok, _ := ledger.Find(ctx, "ghost"); ok {
		t.Fatalf("ghost record was created")
	}
	after, _ := ledger.List(ctx)
	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("ledger changed (-before +after):\n%s", diff)
	}
}

func TestApplyRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	r := NewReconciler(NewMemoryLedger())

	if _, err := r.Apply(ctx, "milk", types.Added, 0); !errors.Is(err, ErrInvalidCount) {
		t.Fatalf("count 0: err = %v, want ErrInvalidCount", err)
	}
	if _, err := r.Apply(ctx, "milk", types.None, 1); !errors.Is(err, ErrInvalidDirection) {
		t.Fatalf("direction none: err = %v, want ErrInvalidDirection", err)
	}
}

func TestClampingInvariantRandomSequence(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	r := NewReconciler(ledger)
	rng := rand.New(rand.NewSource(42))

	expected := 0
	exists := false
	for i := 0; i < 500; i++ {
		c := rng.Intn(5) + 1
		dir := types.Added
		if rng.Intn(2) == 0 {
			dir = types.Removed
		}
		res, err := r.Apply(ctx, "butter", dir, c)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		switch {
		case dir == types.Added:
			expected += c
			exists = true
		case exists:
			expected = max(0, expected-c)
		}
		if res.Quantity < 0 {
			t.Fatalf("step %d: negative quantity %d", i, res.Quantity)
		}
		rec, ok, _ := ledger.Find(ctx, "butter")
		if ok && rec.Quantity != expected {
			t.Fatalf("step %d: stored %d, want %d", i, rec.Quantity, expected)
		}
	}
}

func TestConcurrentAppliesDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	r := NewReconciler(ledger)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Apply(ctx, "apple", types.Added, 2); err != nil {
				t.Errorf("Apply: %v", err)
			}
		}()
	}
	wg.Wait()

	rec, _, _ := ledger.Find(ctx, "apple")
	if rec.Quantity != 100 {
		t.Fatalf("quantity = %d, want 100", rec.Quantity)
	}
}

// flakyLedger fails the first n mutating calls before they reach storage.
type flakyLedger struct {
	*MemoryLedger
	failures int
	calls    int
}

var errFlaky = errors.New("connection reset")

func (f *flakyLedger) Increment(ctx context.Context, name string, n int) (int, error) {
	f.calls++
	if f.calls <= f.failures {
		return 0, NotApplied(errFlaky)
	}
	return f.MemoryLedger.Increment(ctx, name, n)
}

func (f *flakyLedger) Decrement(ctx context.Context, name string, n int) (int, bool, error) {
	f.calls++
	if f.calls <= f.failures {
		return 0, false, NotApplied(errFlaky)
	}
	return f.MemoryLedger.Decrement(ctx, name, n)
}

func TestApplyRetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	ledger := &flakyLedger{MemoryLedger: NewMemoryLedger(), failures: 2}
	retries := 0
	r := NewReconciler(ledger, fastPolicy(), WithRetryNotify(func(error, time.Duration) { retries++ }))

	res, err := r.Apply(ctx, "cheese", types.Added, 1)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Quantity != 1 {
		t.Fatalf("quantity = %d, want 1", res.Quantity)
	}
	if retries != 2 {
		t.Fatalf("retries = %d, want 2", retries)
	}
}

func TestApplySurfacesExhaustedRetries(t *testing.T) {
	ctx := context.Background()
	ledger := &flakyLedger{MemoryLedger: NewMemoryLedger(), failures: 100}
	r := NewReconciler(ledger, fastPolicy())

	_, err := r.Apply(ctx, "cheese", types.Removed, 1)
	if !errors.Is(err, ErrLedgerUnavailable) {
		t.Fatalf("err = %v, want ErrLedgerUnavailable", err)
	}
	if !errors.Is(err, errFlaky) {
		t.Fatalf("err = %v, want cause errFlaky", err)
	}
	if ledger.calls != 4 {
		t.Fatalf("calls = %d, want 4 (1 + 3 retries)", ledger.calls)
	}
}

// lostReplyLedger stores the first write, then reports it as failed.
type lostReplyLedger struct {
	*MemoryLedger
	calls int
}

func (l *lostReplyLedger) Increment(ctx context.Context, name string, n int) (int, error) {
	l.calls++
	q, err := l.MemoryLedger.Increment(ctx, name, n)
	if err == nil && l.calls == 1 {
		return 0, errFlaky
	}
	return q, err
}

func (l *lostReplyLedger) Decrement(ctx context.Context, name string, n int) (int, bool, error) {
	l.calls++
	q, ok, err := l.MemoryLedger.Decrement(ctx, name, n)
	if err == nil && l.calls == 1 {
		return 0, false, errFlaky
	}
	return q, ok, err
}

func TestApplyDoesNotRepeatWriteWithLostReply(t *testing.T) {
	ctx := context.Background()
	ledger := &lostReplyLedger{MemoryLedger: NewMemoryLedger()}
	retries := 0
	r := NewReconciler(ledger, fastPolicy(), WithRetryNotify(func(error, time.Duration) { retries++ }))

	_, err := r.Apply(ctx, "eggs", types.Added, 4)
	if !errors.Is(err, ErrLedgerUnavailable) {
		t.Fatalf("err = %v, want ErrLedgerUnavailable", err)
	}
	if ledger.calls != 1 || retries != 0 {
		t.Fatalf("calls = %d, retries = %d, want a single attempt", ledger.calls, retries)
	}
	rec, _, _ := ledger.Find(ctx, "eggs")
	if rec.Quantity != 4 {
		t.Fatalf("stored quantity = %d, want 4", rec.Quantity)
	}

	ledger = &lostReplyLedger{MemoryLedger: NewMemoryLedger(types.InventoryRecord{Name: "milk", Quantity: 5})}
	r = NewReconciler(ledger, fastPolicy())
	if _, err := r.Apply(ctx, "milk", types.Removed, 2); !errors.Is(err, ErrLedgerUnavailable) {
		t.Fatalf("remove: err = %v, want ErrLedgerUnavailable", err)
	}
	if rec, _, _ := ledger.Find(ctx, "milk"); rec.Quantity != 3 {
		t.Fatalf("stored quantity = %d, want 3", rec.Quantity)
	}
}

func TestApplyCanceledContextIsNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewReconciler(NewMemoryLedger(), fastPolicy())

	_, err := r.Apply(ctx, "milk", types.Added, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrLedgerUnavailable) {
		t.Fatalf("canceled context reported as unavailable ledger")
	}
}
