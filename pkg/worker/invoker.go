package worker

import "context"

// Invoker is how the collector hands a batch off, regardless of whether
// the worker lives in this process or behind HTTP.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (Response, error)
}

// Local runs the service in-process. The error return is always nil;
// batch failures ride inside the Response.
type Local struct {
	Service *Service
}

func (l Local) Invoke(ctx context.Context, req Request) (Response, error) {
	return l.Service.ProcessBatch(ctx, req), nil
}
