package provider

import "context"

// Adapt bridges a backend provider with types [BI, BO] to a domain
// interface with types [I, O]. mapIn converts the domain input, mapOut the
// backend output. Either may reject its value with an error.
func Adapt[I, O, BI, BO any](
	inner RequestResponse[BI, BO],
	name string,
	mapIn func(ctx context.Context, input I) (BI, error),
	mapOut func(output BO) (O, error),
) RequestResponse[I, O] {
	return &adaptedRR[I, O, BI, BO]{inner: inner, name: name, mapIn: mapIn, mapOut: mapOut}
}

type adaptedRR[I, O, BI, BO any] struct {
	inner  RequestResponse[BI, BO]
	name   string
	mapIn  func(ctx context.Context, input I) (BI, error)
	mapOut func(output BO) (O, error)
}

func (a *adaptedRR[I, O, BI, BO]) Name() string {
	if a.name == "" {
		return a.inner.Name()
	}
	return a.name
}

func (a *adaptedRR[I, O, BI, BO]) IsAvailable(ctx context.Context) bool {
	return a.inner.IsAvailable(ctx)
}

func (a *adaptedRR[I, O, BI, BO]) Execute(ctx context.Context, input I) (O, error) {
	var zero O
	in, err := a.mapIn(ctx, input)
	if err != nil {
		return zero, err
	}
	out, err := a.inner.Execute(ctx, in)
	if err != nil {
		return zero, err
	}
	return a.mapOut(out)
}
