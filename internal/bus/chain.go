package bus

import "context"

type chainKey struct{}

// chain records how deep inside nested emits a handler is running.
type chain struct {
	depth   int
	eventID string
}

func withChain(ctx context.Context, c chain) context.Context {
	return context.WithValue(ctx, chainKey{}, c)
}

func chainFrom(ctx context.Context) chain {
	c, _ := ctx.Value(chainKey{}).(chain)
	return c
}

// Detach returns a context that keeps ctx's values and cancellation but starts
// a fresh emit chain. Use it when work leaves the handler that received an
// event, such as a background job that emits later.
func Detach(ctx context.Context) context.Context {
	return context.WithValue(ctx, chainKey{}, chain{})
}
