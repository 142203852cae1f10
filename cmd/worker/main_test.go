package main

import (
	"bytes"
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/crcsearch/internal/checksum"
	"github.com/dreamware/crcsearch/internal/group"
	"github.com/dreamware/crcsearch/internal/search"
	"github.com/dreamware/crcsearch/internal/wire"
)

func execute(t *testing.T, a *app, args ...string) (*bytes.Buffer, *bytes.Buffer, func() int) {
	t.Helper()
	cmd := newCommand(a)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = cmd.Execute()
	}()
	return &stdout, &stderr, func() int {
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Fatal("worker did not exit")
		}
		return a.code
	}
}

// startRoot opens a coordinator-side group for one worker and points the
// worker's environment at it.
func startRoot(t *testing.T) *group.HTTPRoot {
	t.Helper()
	root, err := group.NewHTTPRoot(group.HTTPConfig{Rank: group.Root, Size: 2, Listen: "127.0.0.1:0"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = root.Close() })

	t.Setenv("CRC_TRANSPORT", "http")
	t.Setenv("CRC_SIZE", "2")
	t.Setenv("CRC_RANK", "1")
	t.Setenv("COORDINATOR_ADDR", "http://"+root.Addr())
	t.Setenv("LISTEN_ADDR", "127.0.0.1:0")
	t.Setenv("HEALTH_INTERVAL", "0s")
	t.Setenv("LOG_LEVEL", "error")
	return root
}

func bootstrapRoot(t *testing.T, root *group.HTTPRoot, target uint32, alphabet string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := root.Bcast(ctx, wire.EncodeParams(wire.Params{Target: target, Alphabet: []byte(alphabet)}))
	require.NoError(t, err)
	sum, err := root.ReduceSum(ctx, 1)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, sum, uint64(2))
}

func TestWorkerReportsMatch(t *testing.T) {
	root := startRoot(t)
	target := checksum.NewDetected().Calc([]byte("b"), 0)
	a := &app{stopper: search.NewStopper()}
	stdout, _, wait := execute(t, a)

	bootstrapRoot(t, root, target, "ab")

	var st group.Status
	require.Eventually(t, func() bool {
		var ok bool
		st, ok, _ = root.Iprobe()
		return ok
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, st.Source)
	buf := make([]byte, st.Count)
	req, err := root.Irecv(st, buf)
	require.NoError(t, err)
	require.NoError(t, req.Wait(context.Background()))
	m, err := wire.DecodeMatch(buf)
	require.NoError(t, err)
	assert.Equal(t, target, m.Checksum)
	assert.Equal(t, "b", string(m.Candidate))

	a.stopper.Raise(os.Interrupt)
	require.Equal(t, 0, wait())
	assert.Contains(t, stdout.String(), "matches found")
}

func TestWorkerOtherSignal(t *testing.T) {
	root := startRoot(t)
	a := &app{stopper: search.NewStopper()}
	stdout, _, wait := execute(t, a)
	bootstrapRoot(t, root, 0xdeadbeef, "ab")

	a.stopper.Raise(syscall.SIGTERM)
	require.Equal(t, 1, wait())
	assert.Contains(t, stdout.String(), "Caught signal 'terminated' (15), stopping...")
	select {
	case <-root.Aborted():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not abort the group")
	}
}

func TestWorkerGroupAbort(t *testing.T) {
	root := startRoot(t)
	a := &app{stopper: search.NewStopper()}
	_, _, wait := execute(t, a)
	bootstrapRoot(t, root, 0xdeadbeef, "ab")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, root.Abort(ctx))
	assert.Equal(t, 1, wait())
}

func TestWorkerRejectsRootRank(t *testing.T) {
	t.Setenv("CRC_TRANSPORT", "local")
	t.Setenv("CRC_SIZE", "1")
	t.Setenv("CRC_RANK", "0")
	t.Setenv("LOG_LEVEL", "error")
	a := &app{stopper: search.NewStopper()}
	_, _, wait := execute(t, a)
	assert.Equal(t, 1, wait())
}

func TestWorkerTakesNoArguments(t *testing.T) {
	cmd := newCommand(&app{stopper: search.NewStopper()})
	cmd.SetArgs([]string{"deadbeef"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}

func TestWorkerInvalidEnvironment(t *testing.T) {
	t.Setenv("CRC_TRANSPORT", "http")
	t.Setenv("CRC_SIZE", "2")
	t.Setenv("CRC_RANK", "1")
	t.Setenv("CHECKSUM_VARIANT", "sse9")
	a := &app{stopper: search.NewStopper()}
	_, stderr, wait := execute(t, a)
	assert.Equal(t, 1, wait())
	assert.Contains(t, stderr.String(), "CHECKSUM_VARIANT")
}
