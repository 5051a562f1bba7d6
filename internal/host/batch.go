package host

import (
	"fmt"

	"github.com/dop251/goja"

	"scriptpipe/internal/telemetry"
)

// readBatch is the guest's only input capability. Every call gets its own
// goroutine, chained behind the previous call's, so promises resolve in
// call order with consecutive batches.
func (h *Host) readBatch(goja.FunctionCall) goja.Value {
	p, resolve, _ := h.vm.NewPromise()
	if h.eos {
		resolve(goja.Null())
		return h.vm.ToValue(p)
	}

	prev, next := h.tail, make(chan struct{})
	h.tail = next
	h.loop.hold()

	ctx := h.runCtx
	go func() {
		defer close(next)
		select {
		case <-prev:
		case <-ctx.Done():
			h.loop.post(func() error { return nil })
			return
		}

		b, ok, err := h.src.Next(ctx)
		h.loop.post(func() error {
			switch {
			case err != nil:
				return fmt.Errorf("host: readBatch: %w", err)
			case !ok:
				h.eos = true
				resolve(goja.Null())
			default:
				telemetry.BatchesFetched.Inc()
				items := make([]any, len(b))
				for i, line := range b {
					items[i] = line
				}
				resolve(h.vm.NewArray(items...))
			}
			return nil
		})
	}()
	return h.vm.ToValue(p)
}
