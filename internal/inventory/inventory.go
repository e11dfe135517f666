// Package inventory applies crossing events to the persisted quantity ledger.
package inventory

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/anusha9573/SmartRefridgerator/internal/logger"
	"github.com/anusha9573/SmartRefridgerator/pkg/types"
)

var (
	// ErrInvalidCount is returned for a non-positive event count.
	ErrInvalidCount = errors.New("inventory: count must be positive")
	// ErrInvalidDirection is returned when asked to apply types.None.
	ErrInvalidDirection = errors.New("inventory: direction must be added or removed")
	// ErrLedgerUnavailable wraps a persistence failure that outlived all retries.
	ErrLedgerUnavailable = errors.New("inventory: ledger unavailable")
	// ErrNotApplied marks a ledger failure where the write never reached
	// storage. Only such failures are retried.
	ErrNotApplied = errors.New("inventory: write not applied")
)

// NotApplied marks err as a failure that left the ledger unchanged, so the
// call can be repeated without counting twice.
func NotApplied(err error) error {
	if err == nil {
		return nil
	}
	return &notAppliedError{cause: err}
}

// Ledger is the persisted name -> quantity mapping.
//
// Increment and Decrement must be atomic at the persistence layer: Increment
// inserts {name, n, unit: nil} when absent, Decrement clamps at zero and never
// creates a record. Errors must be wrapped with NotApplied only when the
// write is known not to have happened; any other error may hide a write
// whose reply was lost.
type Ledger interface {
	Find(ctx context.Context, name string) (types.InventoryRecord, bool, error)
	Increment(ctx context.Context, name string, n int) (int, error)
	Decrement(ctx context.Context, name string, n int) (quantity int, found bool, err error)
	List(ctx context.Context) ([]types.InventoryRecord, error)
	Close(ctx context.Context) error
}

// Result describes the ledger state after Apply.
type Result struct {
	Name      string
	Direction types.Direction
	Count     int
	Quantity  int
	Skipped   bool // removal of an item the ledger never had
}

// RetryPolicy bounds retries around ledger calls.
type RetryPolicy struct {
	MaxRetries      uint64        `yaml:"max_retries"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
	}
}

// Reconciler applies crossing events to a Ledger.
type Reconciler struct {
	ledger  Ledger
	policy  RetryPolicy
	onRetry func(err error, wait time.Duration)
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(r *Reconciler) { r.policy = p }
}

// WithRetryNotify registers a callback invoked before every retry.
func WithRetryNotify(fn func(err error, wait time.Duration)) Option {
	return func(r *Reconciler) { r.onRetry = fn }
}

// NewReconciler returns a Reconciler over ledger.
func NewReconciler(ledger Ledger, opts ...Option) *Reconciler {
	r := &Reconciler{ledger: ledger, policy: DefaultRetryPolicy()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ledger returns the underlying ledger.
func (r *Reconciler) Ledger() Ledger {
	return r.ledger
}

// Apply adds or removes count units of label.
//
// Added creates the record when absent. Removed clamps at zero and is an
// explicit no-op, reported with Result.Skipped, when the record is absent.
//
// Ledger failures marked with NotApplied are retried under the policy. Any
// other failure may have been written before the reply was lost, so it is
// returned at once, wrapped as ErrLedgerUnavailable, and never repeated.
func (r *Reconciler) Apply(ctx context.Context, label string, dir types.Direction, count int) (Result, error) {
	res := Result{Name: label, Direction: dir, Count: count}
	if count <= 0 {
		return res, errors.Wrapf(ErrInvalidCount, "apply %s %s x%d", dir, label, count)
	}

	switch dir {
	case types.Added:
		err := r.retry(ctx, func() error {
			q, err := r.ledger.Increment(ctx, label, count)
			if err != nil {
				return err
			}
			res.Quantity = q
			return nil
		})
		if err != nil {
			return res, r.wrap(err, "increment %s", label)
		}
		logger.Info("Inventory", "Item added: %s, count=%d, new quantity=%d", label, count, res.Quantity)
		return res, nil

	case types.Removed:
		var found bool
		err := r.retry(ctx, func() error {
			q, ok, err := r.ledger.Decrement(ctx, label, count)
			if err != nil {
				return err
			}
			res.Quantity, found = q, ok
			return nil
		})
		if err != nil {
			return res, r.wrap(err, "decrement %s", label)
		}
		if !found {
			res.Skipped = true
			logger.Info("Inventory", "Ignoring removal of %d %s: not in inventory", count, label)
			return res, nil
		}
		logger.Info("Inventory", "Item removed: %s, count=%d, new quantity=%d", label, count, res.Quantity)
		return res, nil

	default:
		return res, errors.Wrapf(ErrInvalidDirection, "apply %s %s", dir, label)
	}
}

func (r *Reconciler) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	if r.policy.InitialInterval > 0 {
		b.InitialInterval = r.policy.InitialInterval
	}
	if r.policy.MaxInterval > 0 {
		b.MaxInterval = r.policy.MaxInterval
	}
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, r.policy.MaxRetries), ctx)
	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && (isPermanent(err) || !errors.Is(err, ErrNotApplied)) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		logger.Warn("Inventory", "Ledger call failed, retrying in %s: %v", wait, err)
		if r.onRetry != nil {
			r.onRetry(err, wait)
		}
	})
}

func (r *Reconciler) wrap(err error, format string, args ...interface{}) error {
	if isPermanent(err) {
		return errors.Wrapf(err, format, args...)
	}
	return errors.Wrapf(&unavailableError{cause: err}, format, args...)
}

func isPermanent(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrInvalidCount) ||
		errors.Is(err, ErrInvalidDirection)
}

type notAppliedError struct {
	cause error
}

func (e *notAppliedError) Error() string {
	return e.cause.Error()
}

func (e *notAppliedError) Is(target error) bool {
	return target == ErrNotApplied
}

func (e *notAppliedError) Unwrap() error {
	return e.cause
}

// unavailableError marks a ledger failure that was not retried or exhausted
// its retries.
type unavailableError struct {
	cause error
}

func (e *unavailableError) Error() string {
	return ErrLedgerUnavailable.Error() + ": " + e.cause.Error()
}

func (e *unavailableError) Is(target error) bool {
	return target == ErrLedgerUnavailable
}

func (e *unavailableError) Unwrap() error {
	return e.cause
}
