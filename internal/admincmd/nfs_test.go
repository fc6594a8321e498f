package admincmd

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vaggelis-Arg/FileSync-Systems/internal/dataproto"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/lifecycle"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/registry"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/report"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/taskqueue"
)

func startNFSDataNode(t *testing.T) (addr, host string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	srv := dataproto.NewServer(nil)
	go srv.Serve(ln)

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	fmt.Sscanf(portStr, "%d", &port)
	return ln.Addr().String(), host, port
}

func newNFSHandler(t *testing.T) *NFSHandler {
	t.Helper()
	logger, err := report.Open(filepath.Join(t.TempDir(), "nfs.log"))
	require.NoError(t, err)
	return &NFSHandler{
		Registry: registry.New(),
		Queue:    taskqueue.New(16),
		Log:      logger,
		Life:     lifecycle.New(),
	}
}

func TestNFSAddListsAndEnqueuesFiles(t *testing.T) {
	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "b.txt"), []byte("y"), 0o644))
	tgtDir := filepath.Join(t.TempDir(), "new-target")

	_, srcHost, srcPort := startNFSDataNode(t)
	_, tgtHost, tgtPort := startNFSDataNode(t)

	h := newNFSHandler(t)
	cmd := fmt.Sprintf("add %s@%s:%d %s@%s:%d", srcDir, srcHost, srcPort, tgtDir, tgtHost, tgtPort)

	lines := h.Dispatch(cmd)
	require.NotEmpty(t, lines)
	assert.Equal(t, "END", lines[len(lines)-1])

	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "Added file:")
	assert.Equal(t, uint64(2), h.Queue.TotalTasks())

	_, ok := h.Registry.Find(srcDir)
	assert.True(t, ok)

	_, err := os.Stat(tgtDir)
	assert.NoError(t, err)
}

func TestNFSAddRejectsDuplicate(t *testing.T) {
	srcDir := t.TempDir()
	tgtDir := t.TempDir()
	_, srcHost, srcPort := startNFSDataNode(t)

	h := newNFSHandler(t)
	cmd := fmt.Sprintf("add %s@%s:%d %s@%s:%d", srcDir, srcHost, srcPort, tgtDir, srcHost, srcPort)
	h.Dispatch(cmd)

	lines := h.Dispatch(cmd)
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "Already in queue: "+srcDir)
}

func TestNFSCancelUnknownSource(t *testing.T) {
	h := newNFSHandler(t)
	lines := h.Dispatch("cancel /nope")
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "Directory not being synchronized: /nope")
	assert.Equal(t, "END", lines[len(lines)-1])
}

func TestNFSShutdownDrainsAndSignals(t *testing.T) {
	h := newNFSHandler(t)
	h.WaitDrained = func() { h.Queue.WaitAllDone() }

	done := make(chan []string, 1)
	go func() { done <- h.Dispatch("shutdown") }()

	select {
	case lines := <-done:
		joined := strings.Join(lines, "\n")
		assert.Contains(t, joined, "Manager shutdown complete")
		assert.Equal(t, "END", lines[len(lines)-1])
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown with empty queue should not block")
	}
	assert.True(t, h.Life.ShuttingDown())
}
