package host

import (
	"fmt"
	"time"

	"github.com/dop251/goja"
)

type timer struct {
	t         *time.Timer
	cancelled bool
}

func (h *Host) installTimers() error {
	if err := h.vm.Set("setTimeout", h.setTimeout); err != nil {
		return err
	}
	return h.vm.Set("clearTimeout", h.clearTimeout)
}

// setTimeout(fn, ms, ...args). A pending timer keeps the run alive.
func (h *Host) setTimeout(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(h.vm.NewTypeError("setTimeout: callback is not a function"))
	}
	delay := call.Argument(1).ToInteger()
	if delay < 0 {
		delay = 0
	}
	var args []goja.Value
	if len(call.Arguments) > 2 {
		args = append(args, call.Arguments[2:]...)
	}

	h.timerID++
	id := h.timerID
	tm := &timer{}
	h.timers[id] = tm
	h.loop.hold()
	tm.t = time.AfterFunc(time.Duration(delay)*time.Millisecond, func() {
		h.loop.post(func() error {
			delete(h.timers, id)
			if tm.cancelled {
				return nil
			}
			if _, err := fn(goja.Undefined(), args...); err != nil {
				return fmt.Errorf("host: timer callback: %w", err)
			}
			return nil
		})
	})
	return h.vm.ToValue(id)
}

func (h *Host) clearTimeout(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).ToInteger()
	tm, ok := h.timers[id]
	if !ok || tm.cancelled {
		return goja.Undefined()
	}
	tm.cancelled = true
	if tm.t.Stop() {
		// the callback will never be posted
		delete(h.timers, id)
		h.loop.release()
	}
	return goja.Undefined()
}
