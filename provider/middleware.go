package provider

// Middleware wraps a RequestResponse provider with cross-cutting behavior.
type Middleware[I, O any] func(RequestResponse[I, O]) RequestResponse[I, O]

// Chain composes middlewares. The first is outermost:
// Chain(a, b, c)(p) is a(b(c(p))).
func Chain[I, O any](middlewares ...Middleware[I, O]) Middleware[I, O] {
	return func(inner RequestResponse[I, O]) RequestResponse[I, O] {
		for i := len(middlewares) - 1; i >= 0; i-- {
			if middlewares[i] != nil {
				inner = middlewares[i](inner)
			}
		}
		return inner
	}
}

// Apply wraps p with middlewares using Chain order. Nil entries are
// skipped, so optional layers can be passed unconditionally.
func Apply[I, O any](p RequestResponse[I, O], middlewares ...Middleware[I, O]) RequestResponse[I, O] {
	return Chain(middlewares...)(p)
}
