package retry

import "context"

type retrierKey struct{}

// ToContext stores the retrier in the context.
func ToContext(ctx context.Context, retrier Retrier) context.Context {
	return context.WithValue(ctx, retrierKey{}, retrier)
}

// FromContext gets the retrier from the context, or nil.
func FromContext(ctx context.Context) Retrier {
	retrier, ok := ctx.Value(retrierKey{}).(Retrier)
	if !ok {
		return nil
	}

	return retrier
}

// FromContextOrNoop returns the retrier from the context, or a NoopRetrier if none is set.
func FromContextOrNoop(ctx context.Context) Retrier {
	if retrier := FromContext(ctx); retrier != nil {
		return retrier
	}

	return &NoopRetrier{}
}
