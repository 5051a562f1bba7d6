package sink

import (
	"fmt"
)

// Adapter is where guest output lines go.
type Adapter interface {
	Configure(any) error    // driver-specific config ⇒ struct
	Push(line string) error // one output line, without trailing newline
	Close() error           // flushes; idempotent
}

/*──────── registry ───────*/

type factory = func() Adapter

var reg = map[string]factory{}

func Register(name string, f factory) { reg[name] = f }

func NewAdapter(name string) (Adapter, error) {
	if f, ok := reg[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("unknown sink %q", name)
}
