package host

import "context"

// loop serializes everything that touches the goja runtime onto the
// goroutine calling run. Each hold is matched by exactly one posted job or
// one release; run returns once nothing is held.
type loop struct {
	jobs    chan func() error
	done    chan struct{}
	pending int // loop goroutine only
}

func newLoop() *loop {
	return &loop{
		jobs: make(chan func() error, 16),
		done: make(chan struct{}),
	}
}

// hold registers one outstanding async operation. Loop goroutine only.
func (l *loop) hold() { l.pending++ }

// release drops a hold whose job will never be posted. Loop goroutine only.
func (l *loop) release() { l.pending-- }

// post hands fn to the loop from any goroutine. It reports false when the
// loop has already stopped; fn is then dropped.
func (l *loop) post(fn func() error) bool {
	select {
	case l.jobs <- fn:
		return true
	case <-l.done:
		return false
	}
}

// run executes jobs until no holds remain, a job fails, after reports an
// error, or ctx ends.
func (l *loop) run(ctx context.Context, after func() error) error {
	defer close(l.done)
	for l.pending > 0 {
		select {
		case job := <-l.jobs:
			l.pending--
			if err := job(); err != nil {
				return err
			}
			if err := after(); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
