package retry

import "context"

// Result is the outcome of one retried operation: a value on success, or
// the terminal error after retries were exhausted.
type Result[T any] struct {
	Value    T
	Err      error
	Attempts int
}

// Ok reports whether the operation eventually succeeded.
func (r Result[T]) Ok() bool { return r.Err == nil }

// Do runs a value-returning operation through p and returns its Result.
// Failures never panic or escape as a second return value; callers branch
// on Ok.
func Do[T any](ctx context.Context, p *Policy, operation string,
	fn func(context.Context) (T, error),
) Result[T] {
	var value T
	attempts, err := p.run(ctx, operation, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if err != nil {
		var zero T
		return Result[T]{Value: zero, Err: err, Attempts: attempts}
	}
	return Result[T]{Value: value, Attempts: attempts}
}
