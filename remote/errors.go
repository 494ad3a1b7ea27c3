package remote

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
)

// ErrTimeout is returned when a call lost its race against the wall clock.
var ErrTimeout = errors.New("remote call timed out")

// Error is the tagged failure of a remote call. Code carries the provider
// error number when the driver supplied one.
type Error struct {
	Op   string
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote %s failed (code %s): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("remote %s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Op: op, Err: fmt.Errorf("%w: %v", ErrTimeout, err)}
	}
	e := &Error{Op: op, Err: err}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		e.Code = strconv.Itoa(int(me.Number))
	}
	return e
}

func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// Code returns the provider error code carried by err, if any.
func Code(err error) string {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// WithTimeout races fn against d. fn receives a context carrying the same
// deadline, so drivers that honour it abort the call; when the deadline wins
// the caller gets ErrTimeout without waiting for fn to return.
func WithTimeout[T any](ctx context.Context, d time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, &Error{Op: op, Err: ErrTimeout}
		}
		return zero, &Error{Op: op, Err: ctx.Err()}
	}
}
