package source

import "fmt"

// Factory builds an Adapter (stdin, kafka, …).
type Factory func() Adapter

var registry = map[string]Factory{}

// Register is called from main's driver table.
func Register(name string, f Factory) {
	registry[name] = f
}

// NewAdapter returns a driver by name ("stdin", "kafka").
func NewAdapter(name string) (Adapter, error) {
	if f, ok := registry[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("source: unsupported driver %q", name)
}
