package engine

import "context"

// Handle addresses one launched workflow run.
type Handle struct {
	r *run
}

// RunID returns the run's unique id.
func (h *Handle) RunID() string { return h.r.id }

// Status returns the run's current lifecycle state.
func (h *Handle) Status() Status { return h.r.Status() }

// Done is closed when the run reaches a final state.
func (h *Handle) Done() <-chan struct{} { return h.r.done }

// Wait blocks until the run finishes or ctx expires. A ctx expiry does
// not abort the run; call Cancel for that.
func (h *Handle) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.r.done:
	}
	return h.r.outcome()
}

// Cancel requests cancellation. Committed execution records survive.
func (h *Handle) Cancel() {
	h.r.cancelled.Store(true)
	h.r.cancel()
}
