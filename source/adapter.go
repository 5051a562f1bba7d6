// Package source defines the line sources that feed the producer.
package source

import "context"

// EmitFunc hands one decoded input line downstream. A non-nil error means
// the consumer wants no more lines; the driver must stop and return it.
type EmitFunc func(line string) error

// Adapter reads lines until input ends, ctx is done or emit fails.
type Adapter interface {
	Configure(any) error
	Run(context.Context, EmitFunc) error
	Close() error
}
