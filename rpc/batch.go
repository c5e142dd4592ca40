package rpc

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DispatchBatch runs every member of a batch independently and returns the
// responses in request order. Notifications produce no entry.
//
// When every member is a notification the result is nil, meaning no reply
// must be sent at all. An empty batch yields an empty, non-nil BatchResponse;
// the wire codec decides how to answer it.
func (d *Dispatcher) DispatchBatch(ctx context.Context, protocol Protocol, reqs []*Request) *BatchResponse {
	if len(reqs) == 0 {
		return &BatchResponse{Responses: []*Response{}}
	}

	out := make([]*Response, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			out[i] = d.Dispatch(gctx, protocol, req)
			return nil
		})
	}
	_ = g.Wait()

	responses := make([]*Response, 0, len(out))
	for _, resp := range out {
		if resp != nil {
			responses = append(responses, resp)
		}
	}
	if len(responses) == 0 {
		return nil
	}
	return &BatchResponse{Responses: responses}
}
