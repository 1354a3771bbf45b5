// Package provider defines the capability provider abstraction used by the
// scheduler's executors: a named RequestResponse[I, O] backend plus
// composable middleware.
//
// Middleware[I, O] wraps a RequestResponse provider. Use Chain or Apply to
// compose several:
//
//	wrapped := provider.Apply(raw,
//	    provider.WithLogging[In, Out](log),
//	    provider.WithMetrics[In, Out](metrics),
//	    provider.WithTracing[In, Out]("taskflow"),
//	    provider.Resilient[In, Out](cfg),
//	)
//
// Adapt changes a provider's input and output types, and Registry keeps
// named factories for backends selected by configuration.
package provider
