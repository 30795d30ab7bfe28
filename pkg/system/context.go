// Package system holds process-level helpers shared by the services.
package system

import "context"

// RunWithContext runs operation on its own goroutine with a context detached
// from ctx. If ctx ends first, the operation's context is cancelled and the
// call still waits for it to return, so work that cannot be abandoned
// halfway (dictionary training, draining compression workers) always leaves
// a consistent state.
//
// A ctx that is already done short-circuits and operation never runs.
// Otherwise the operation's own result is returned.
func RunWithContext(ctx context.Context, operation func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	opCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- operation(opCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cancel()
		return <-done
	}
}
