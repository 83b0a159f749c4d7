package retry

import "context"

// Do runs fn until it succeeds, the retrier declines another attempt,
// or the attempt budget is spent. The last error is returned.
func Do[T any](ctx context.Context, retrier Retrier, fn func() (T, error)) (T, error) {
	if retrier == nil {
		retrier = &NoopRetrier{}
	}

	var (
		result T
		err    error
	)

	maxAttempts := retrier.MaxAttempts()
	for attempt := 1; ; attempt++ {
		result, err = fn()
		if err == nil {
			return result, nil
		}

		if maxAttempts > 0 && attempt >= maxAttempts {
			return result, err
		}

		if !retrier.ShouldRetry(ctx, err, attempt) {
			return result, err
		}

		if waitErr := retrier.Wait(ctx, attempt); waitErr != nil {
			return result, waitErr
		}
	}
}
