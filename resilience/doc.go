// Package resilience guards calls to external capabilities (model endpoints,
// subprocess tools) with retry, circuit breaking, rate limiting and a
// bulkhead.
//
// The primitives compose from the outside in:
//
//	rl.Wait(ctx) -> bh.Execute -> cb.Execute -> Retry -> call
//
// provider.WithResilience builds that chain from a provider.ResilienceConfig.
package resilience
