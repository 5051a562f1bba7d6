package stdout

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scriptpipe/sink"
)

// lockedBuffer lets the timer goroutine and the test share a buffer.
type lockedBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

func TestPush_WritesNewlineTerminatedLines(t *testing.T) {
	var out lockedBuffer
	d := &driver{}
	require.NoError(t, d.Configure(Config{Output: &out}))

	require.NoError(t, d.Push("A"))
	require.NoError(t, d.Push(""))
	require.NoError(t, d.Push("B C"))
	assert.Empty(t, out.String(), "buffered until flush")

	require.NoError(t, d.Close())
	assert.Equal(t, "A\n\nB C\n", out.String())

	require.NoError(t, d.Close())
	assert.Error(t, d.Push("late"))
}

func TestPush_TimerFlush(t *testing.T) {
	var out lockedBuffer
	d := &driver{}
	require.NoError(t, d.Configure(Config{Output: &out, FlushMS: 5}))
	defer d.Close()

	require.NoError(t, d.Push("tick"))
	assert.Eventually(t, func() bool { return out.String() == "tick\n" }, time.Second, time.Millisecond)

	// timer re-arms on the next push
	require.NoError(t, d.Push("tock"))
	assert.Eventually(t, func() bool { return out.String() == "tick\ntock\n" }, time.Second, time.Millisecond)
}

func TestConfigure_RejectsForeignConfig(t *testing.T) {
	d := &driver{}
	assert.Error(t, d.Configure(42))
	assert.ErrorContains(t, d.Push("x"), "not configured")
}

func TestRegistered(t *testing.T) {
	a, err := sink.NewAdapter("stdout")
	require.NoError(t, err)
	assert.IsType(t, &driver{}, a)

	_, err = sink.NewAdapter("carrier-pigeon")
	assert.Error(t, err)
}
