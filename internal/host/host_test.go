package host

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scriptpipe/internal/pipeline"
)

type captureSink struct{ lines []string }

func (c *captureSink) Configure(any) error    { return nil }
func (c *captureSink) Push(line string) error { c.lines = append(c.lines, line); return nil }
func (c *captureSink) Close() error           { return nil }

func writeScript(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.js")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

// feed returns a finished channel holding batches.
func feed(t *testing.T, batches ...pipeline.Batch) *pipeline.Channel {
	t.Helper()
	ch := pipeline.NewChannel(len(batches) + 1)
	for _, b := range batches {
		require.NoError(t, ch.Send(context.Background(), b))
	}
	ch.Finish()
	return ch
}

type result struct {
	out    []string
	stderr string
	err    error
	state  State
}

func run(t *testing.T, ctx context.Context, src Fetcher, script string) result {
	t.Helper()
	out := &captureSink{}
	var stderr bytes.Buffer
	h := New(src, out, WithStderr(&stderr))
	require.NoError(t, h.Load(writeScript(t, script)))
	require.Equal(t, ScriptLoaded, h.State())
	err := h.Run(ctx)
	return result{out: out.lines, stderr: stderr.String(), err: err, state: h.State()}
}

func TestReadBatch_BatchesThenNullForever(t *testing.T) {
	r := run(t, context.Background(), feed(t, pipeline.Batch{"a", "b"}, pipeline.Batch{"c"}), `
let b;
while ((b = await readBatch()) !== null) {
  console.log(Array.isArray(b), b.length, b.join(","));
}
console.log(await readBatch(), await readBatch());
`)
	require.NoError(t, r.err)
	assert.Equal(t, Completed, r.state)
	assert.Equal(t, []string{"true 2 a,b", "true 1 c", "null null"}, r.out)
}

func TestReadBatch_ConcurrentCallsResolveInOrder(t *testing.T) {
	r := run(t, context.Background(), feed(t, pipeline.Batch{"1"}, pipeline.Batch{"2"}), `
const got = await Promise.all([readBatch(), readBatch(), readBatch(), readBatch()]);
console.log(got);
`)
	require.NoError(t, r.err)
	assert.Equal(t, []string{`[["1"],["2"],null,null]`}, r.out)
}

func TestReadBatch_EmptyInput(t *testing.T) {
	r := run(t, context.Background(), feed(t), `console.log(await readBatch());`)
	require.NoError(t, r.err)
	assert.Equal(t, []string{"null"}, r.out)
}

type failingFetcher struct{ err error }

func (f failingFetcher) Next(context.Context) (pipeline.Batch, bool, error) { return nil, false, f.err }

func TestReadBatch_FetchErrorFailsRun(t *testing.T) {
	boom := errors.New("receiver broke")
	r := run(t, context.Background(), failingFetcher{boom}, `await readBatch();`)
	assert.ErrorIs(t, r.err, boom)
	assert.Equal(t, Failed, r.state)
}

func TestScript_NeverReadsReturnsWithoutWaitingForInput(t *testing.T) {
	out := &captureSink{}
	h := New(pipeline.NewChannel(1), out) // never finished
	require.NoError(t, h.Load(writeScript(t, `console.log("hi");`)))

	errc := make(chan error, 1)
	go func() { errc <- h.Run(context.Background()) }()

	select {
	case err := <-errc:
		require.NoError(t, err)
		assert.Equal(t, []string{"hi"}, out.lines)
	case <-time.After(2 * time.Second):
		t.Fatal("run waited for input the script never asked for")
	}
}

func TestPrelude_StdinHelpers(t *testing.T) {
	r := run(t, context.Background(), feed(t, pipeline.Batch{"x", "y"}, pipeline.Batch{"z"}), `
await stdin.eachLine((line, i) => console.log(i + ":" + line));
console.log((await stdin.readAll()).length);
console.log(typeof stdin.readBatch);
`)
	require.NoError(t, r.err)
	assert.Equal(t, []string{"0:x", "1:y", "2:z", "0", "function"}, r.out)
}

func TestTopLevelAwaitAndTimers(t *testing.T) {
	r := run(t, context.Background(), feed(t), `
await new Promise(resolve => setTimeout(resolve, 5));
console.log("after await");
setTimeout((a, b) => console.log("timer", a, b), 5, "x", 2);
const id = setTimeout(() => console.log("cancelled"), 1);
clearTimeout(id);
`)
	require.NoError(t, r.err)
	assert.Equal(t, []string{"after await", "timer x 2"}, r.out)
}

func TestConsole_Formatting(t *testing.T) {
	r := run(t, context.Background(), feed(t), `
console.log("plain", 1, true, {a: [1, "b"]}, undefined, null);
console.info("info");
console.debug("debug");
console.log(new Error("bad"));
console.error("oops", 42);
console.warn("careful");
console.log();
`)
	require.NoError(t, r.err)
	assert.Equal(t, []string{
		`plain 1 true {"a":[1,"b"]} undefined null`,
		"info",
		"debug",
		"Error: bad",
		"",
	}, r.out)
	assert.Equal(t, "[err]: oops 42\n[err]: careful\n", r.stderr)
}

func TestFailures(t *testing.T) {
	cases := map[string]struct {
		script string
		want   string
	}{
		"sync throw":          {`throw new Error("boom");`, "boom"},
		"rejected await":      {`await Promise.reject(new Error("nope"));`, "nope"},
		"unhandled rejection": {`Promise.reject(new Error("lost")); console.log("x");`, "unhandled promise rejection"},
		"timer callback":      {`setTimeout(() => { throw new Error("tick"); }, 1);`, "tick"},
		"reference error":     {`undefinedThing();`, "undefinedThing"},
		"never settles":       {`await new Promise(() => {});`, "never resolve"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			r := run(t, context.Background(), feed(t), tc.script)
			require.Error(t, r.err)
			assert.Contains(t, r.err.Error(), tc.want)
			assert.Equal(t, Failed, r.state)
		})
	}
}

func TestRun_ContextCancellation(t *testing.T) {
	t.Run("blocked on readBatch", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		r := run(t, ctx, pipeline.NewChannel(1), `await readBatch();`)
		assert.ErrorIs(t, r.err, context.DeadlineExceeded)
		assert.Equal(t, Failed, r.state)
	})
	t.Run("busy loop", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		r := run(t, ctx, feed(t), `while (true) {}`)
		assert.ErrorIs(t, r.err, context.DeadlineExceeded)
	})
}

func TestLoad_Errors(t *testing.T) {
	h := New(feed(t), &captureSink{})
	err := h.Load(filepath.Join(t.TempDir(), "missing.js"))
	assert.Error(t, err)
	assert.Equal(t, Failed, h.State())

	h = New(feed(t), &captureSink{})
	err = h.Load(writeScript(t, "let = ;"))
	assert.ErrorContains(t, err, "compile")
	assert.Equal(t, Failed, h.State())
}

func TestStateMachine(t *testing.T) {
	h := New(feed(t), &captureSink{})
	assert.Equal(t, Uninitialized, h.State())
	assert.ErrorIs(t, h.Run(context.Background()), ErrInvalidState)

	require.NoError(t, h.Load(writeScript(t, `console.log(1)`)))
	assert.ErrorIs(t, h.Load(writeScript(t, `console.log(2)`)), ErrInvalidState)

	require.NoError(t, h.Run(context.Background()))
	assert.Equal(t, Completed, h.State())
	assert.ErrorIs(t, h.Run(context.Background()), ErrInvalidState)
	assert.Equal(t, "completed", h.State().String())
}

func TestReadBatch_SuspendedReadLetsTimersRun(t *testing.T) {
	ch := pipeline.NewChannel(2)
	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = ch.Send(context.Background(), pipeline.Batch{"late"})
		ch.Finish()
	}()

	r := run(t, context.Background(), ch, `
const p = readBatch();
setTimeout(() => console.log("tick"), 5);
console.log("batch", await p);
console.log("eos", await readBatch(), await readBatch());
`)
	require.NoError(t, r.err)
	assert.Equal(t, []string{"tick", `batch ["late"]`, "eos null null"}, r.out)
}

func TestLoad_UnsupportedSyntaxFailsToCompile(t *testing.T) {
	for name, script := range map[string]string{
		"for await":       `for await (const l of [1]) console.log(l);`,
		"async generator": `async function* g() {}`,
		"bigint":          `console.log(10n + 1n);`,
	} {
		t.Run(name, func(t *testing.T) {
			h := New(feed(t), &captureSink{})
			assert.ErrorContains(t, h.Load(writeScript(t, script)), "compile")
			assert.Equal(t, Failed, h.State())
		})
	}
}
