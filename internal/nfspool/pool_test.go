package nfspool

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vaggelis-Arg/FileSync-Systems/internal/dataproto"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/registry"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/taskqueue"
)

func startDataNode(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	srv := dataproto.NewServer(nil)
	go srv.Serve(ln)
	return ln.Addr().String()
}

func hostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func TestPoolSyncsFileFromSourceToTarget(t *testing.T) {
	srcDir := t.TempDir()
	tgtDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "hello.txt"), []byte("hello world"), 0o644))

	srcAddr := startDataNode(t)
	tgtAddr := startDataNode(t)
	srcHost, srcPort := hostPort(t, srcAddr)
	tgtHost, tgtPort := hostPort(t, tgtAddr)

	reg := registry.New()
	p := registry.NewPair(srcDir, tgtDir)
	require.NoError(t, reg.Insert(p))

	q := taskqueue.New(4)
	pool := New(2, q, reg, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	q.Enqueue(taskqueue.Task{
		SourcePath: srcDir, TargetPath: tgtDir,
		SourceHost: srcHost, SourcePort: srcPort,
		TargetHost: tgtHost, TargetPort: tgtPort,
		Filename: "hello.txt",
	})
	q.WaitAllDone()
	q.Shutdown()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not shut down after queue drained")
	}

	got, err := os.ReadFile(filepath.Join(tgtDir, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
	assert.Equal(t, uint64(0), p.ErrorCount())
}

func TestPoolRecordsErrorOnMissingSourceFile(t *testing.T) {
	srcDir := t.TempDir()
	tgtDir := t.TempDir()

	srcAddr := startDataNode(t)
	tgtAddr := startDataNode(t)
	srcHost, srcPort := hostPort(t, srcAddr)
	tgtHost, tgtPort := hostPort(t, tgtAddr)

	reg := registry.New()
	p := registry.NewPair(srcDir, tgtDir)
	require.NoError(t, reg.Insert(p))

	q := taskqueue.New(4)
	pool := New(1, q, reg, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	q.Enqueue(taskqueue.Task{
		SourcePath: srcDir, TargetPath: tgtDir,
		SourceHost: srcHost, SourcePort: srcPort,
		TargetHost: tgtHost, TargetPort: tgtPort,
		Filename: "missing.txt",
	})
	q.WaitAllDone()
	q.Shutdown()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not shut down after queue drained")
	}

	assert.Equal(t, uint64(1), p.ErrorCount())
}

// TestPoolSkipsTaskForCancelledPair exercises spec.md §4.4 step 2 / §4.6 /
// §8: a task for a pair that was cancelled while it sat in the queue must
// terminate as a no-op at dequeue time, not attempt the transfer.
func TestPoolSkipsTaskForCancelledPair(t *testing.T) {
	srcDir := t.TempDir()
	tgtDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "hello.txt"), []byte("hello world"), 0o644))

	reg := registry.New()
	p := registry.NewPair(srcDir, tgtDir)
	require.NoError(t, reg.Insert(p))
	_, err := reg.MarkInactive(srcDir)
	require.NoError(t, err)

	// No data node is started: if process() ever attempted the transfer it
	// would fail to dial and record an error, so a zero error count here
	// also confirms the task never reached the pull/push path.
	q := taskqueue.New(4)
	pool := New(1, q, reg, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	q.Enqueue(taskqueue.Task{
		SourcePath: srcDir, TargetPath: tgtDir,
		SourceHost: "127.0.0.1", SourcePort: 1,
		TargetHost: "127.0.0.1", TargetPort: 1,
		Filename: "hello.txt",
	})
	q.WaitAllDone()
	q.Shutdown()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not shut down after queue drained")
	}

	_, err = os.ReadFile(filepath.Join(tgtDir, "hello.txt"))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, uint64(0), p.ErrorCount())
}
