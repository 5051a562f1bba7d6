package stdin

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scriptpipe/internal/telemetry"
)

func collect(t *testing.T, input string) []string {
	t.Helper()
	d := &Driver{}
	require.NoError(t, d.Configure(Config{Input: strings.NewReader(input)}))
	var got []string
	err := d.Run(context.Background(), func(line string) error {
		got = append(got, line)
		return nil
	})
	require.NoError(t, err)
	return got
}

func TestRun_SplitsLines(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "", "c"}, collect(t, "a\nb\r\n\nc"))
}

func TestRun_EmptyInput(t *testing.T) {
	assert.Empty(t, collect(t, ""))
}

func TestRun_LongLine(t *testing.T) {
	long := strings.Repeat("x", 200_000)
	got := collect(t, long+"\nshort\n")
	require.Len(t, got, 2)
	assert.Len(t, got[0], 200_000)
	assert.Equal(t, "short", got[1])
}

func TestRun_SkipsInvalidUTF8(t *testing.T) {
	before := testutil.ToFloat64(telemetry.LinesSkipped)
	got := collect(t, "ok\n\xff\xfe\nstill ok\n")
	assert.Equal(t, []string{"ok", "still ok"}, got)
	assert.Equal(t, before+1, testutil.ToFloat64(telemetry.LinesSkipped))
}

func TestRun_StopsOnEmitError(t *testing.T) {
	stop := errors.New("consumer gone")
	d := &Driver{}
	require.NoError(t, d.Configure(Config{Input: strings.NewReader("a\nb\nc\n")}))

	var seen int
	err := d.Run(context.Background(), func(string) error {
		seen++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, seen)
}

func TestConfigure_RejectsForeignConfig(t *testing.T) {
	d := &Driver{}
	assert.Error(t, d.Configure(42))
}
