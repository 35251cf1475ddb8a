package pipeline

import (
	"context"
	"time"
)

// Drain refuses new calls, gives live calls until ctx is done to hang up on
// their own, then tears down whatever is left. It satisfies runner.Drainer.
func (r *SessionRegistry) Drain(ctx context.Context) error {
	r.SetDraining(true)
	if !r.WaitForEmpty(ctx, 0) {
		r.log.Warn("drain_forced", "active", r.Count())
		r.CloseAll("shutdown")
	}
	wctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.Wait(wctx)
}
