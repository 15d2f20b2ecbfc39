package leave

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/generic"
)

// DefaultTxTimeout bounds every store transaction opened by the ledger.
const DefaultTxTimeout = 5 * time.Second

// Option configures a Ledger or Coordinator.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
	txTimeout time.Duration
	calendar  generic.HolidayCalendar
}

func defaultOptions() options {
	return options{
		logger:    zap.NewNop(),
		now:       time.Now,
		newID:     uuid.NewString,
		txTimeout: DefaultTxTimeout,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator overrides uuid.NewString for request and audit ids.
func WithIDGenerator(f func() string) Option {
	return func(o *options) { o.newID = f }
}

// WithTxTimeout bounds each transaction. Zero disables the bound.
func WithTxTimeout(d time.Duration) Option {
	return func(o *options) { o.txTimeout = d }
}

// WithHolidayCalendar fixes the calendar instead of loading it from the store.
func WithHolidayCalendar(c generic.HolidayCalendar) Option {
	return func(o *options) { o.calendar = c }
}

// runTx runs fn in a store transaction bounded by timeout. A deadline hit
// anywhere inside the transaction is reported as TransactionAborted.
func runTx(ctx context.Context, store TxStore, timeout time.Duration, op string, fn func(Store) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := store.WithTx(ctx, fn)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, generic.ErrTransactionAborted):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return &generic.TransactionAbortedError{Op: op, Err: err}
	default:
		return err
	}
}
