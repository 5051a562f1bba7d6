package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannel_FIFO(t *testing.T) {
	ch := NewChannel(3)
	ctx := context.Background()
	require.NoError(t, ch.Send(ctx, Batch{"1"}))
	require.NoError(t, ch.Send(ctx, Batch{"2", "3"}))
	require.NoError(t, ch.Send(ctx, Batch{"4"}))
	ch.Finish()

	assert.Equal(t, []Batch{{"1"}, {"2", "3"}, {"4"}}, drain(t, ch))
}

func TestChannel_EmptyBatchIsDropped(t *testing.T) {
	ch := NewChannel(1)
	require.NoError(t, ch.Send(context.Background(), nil))
	require.NoError(t, ch.Send(context.Background(), Batch{}))
	assert.Equal(t, 0, ch.Len())
}

func TestChannel_SendAfterCloseFails(t *testing.T) {
	ch := NewChannel(1)
	ch.Close()
	ch.Close() // idempotent
	assert.ErrorIs(t, ch.Send(context.Background(), Batch{"x"}), ErrClosed)
	assert.Equal(t, 0, ch.Len())
}

func TestChannel_CloseUnblocksFullSend(t *testing.T) {
	ch := NewChannel(1)
	require.NoError(t, ch.Send(context.Background(), Batch{"a"}))

	errc := make(chan error, 1)
	go func() { errc <- ch.Send(context.Background(), Batch{"b"}) }()

	select {
	case <-errc:
		t.Fatal("send on a full channel returned early")
	case <-time.After(20 * time.Millisecond):
	}
	ch.Close()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Close did not release the blocked sender")
	}
}

func TestChannel_EndOfStreamIsTerminal(t *testing.T) {
	ch := NewChannel(2)
	require.NoError(t, ch.Send(context.Background(), Batch{"a"}))
	ch.Finish()
	ch.Finish()

	b, ok, err := ch.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Batch{"a"}, b)

	for i := 0; i < 5; i++ {
		_, ok, err := ch.Next(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestChannel_NextAfterCloseIsEndOfStream(t *testing.T) {
	ch := NewChannel(2)
	require.NoError(t, ch.Send(context.Background(), Batch{"a"}))
	ch.Close()

	_, ok, err := ch.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChannel_NextHonoursContext(t *testing.T) {
	ch := NewChannel(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, ok, err := ch.Next(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// a cancelled wait is not end-of-stream
	require.NoError(t, ch.Send(context.Background(), Batch{"late"}))
	b, ok, err := ch.Next(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Batch{"late"}, b)
}

func TestChannel_CapacityFloor(t *testing.T) {
	assert.Equal(t, 1, NewChannel(0).Cap())
	assert.Equal(t, 10, NewChannel(10).Cap())
}
