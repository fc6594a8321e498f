package fssloop

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vaggelis-Arg/FileSync-Systems/internal/fsnotifywatch"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/registry"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/report"
)

// writeFakeWorker writes a shell script standing in for cmd/fssworker: it
// prints one WORKER_REPORT line for the file it was given and exits 0. This
// lets the supervisor's child-exit and report-parsing paths run without
// depending on a real compiled worker binary.
func writeFakeWorker(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fakeworker.sh")
	script := `#!/bin/sh
src="$1"; tgt="$2"; file="$3"; op="$4"
echo "[2026-01-01 00:00:00] [WORKER_REPORT] [$src] [$tgt] [$$] [$op] [SUCCESS] [File: $file]"
exit 0
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func newTestSupervisor(t *testing.T, capacity int) (*Supervisor, *registry.Registry, *fsnotifywatch.Watcher) {
	t.Helper()
	reg := registry.New()
	w, err := fsnotifywatch.New()
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	logger, err := report.Open(filepath.Join(t.TempDir(), "fss.log"))
	require.NoError(t, err)

	sup := New(capacity, reg, w, logger, nil, writeFakeWorker(t))
	return sup, reg, w
}

func TestSupervisorRunsScheduledJobAndUpdatesRegistry(t *testing.T) {
	sup, reg, _ := newTestSupervisor(t, 2)
	src, tgt := t.TempDir(), t.TempDir()
	p := registry.NewPair(src, tgt)
	require.NoError(t, reg.Insert(p))

	ctx, cancel := context.WithCancel(context.Background())
	go sup.Run(ctx)
	defer cancel()

	sup.Schedule(src, tgt, "ALL", "FULL")

	require.Eventually(t, func() bool {
		return !p.LastSyncTime().IsZero()
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(0), p.ErrorCount())
}

func TestSupervisorBacklogsBeyondCapacity(t *testing.T) {
	sup, reg, _ := newTestSupervisor(t, 1)
	var pairs []*registry.Pair
	for i := 0; i < 3; i++ {
		src, tgt := t.TempDir(), t.TempDir()
		p := registry.NewPair(src, tgt)
		require.NoError(t, reg.Insert(p))
		pairs = append(pairs, p)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go sup.Run(ctx)
	defer cancel()

	for _, p := range pairs {
		sup.Schedule(p.SourcePath, p.TargetPath, "ALL", "FULL")
	}

	require.Eventually(t, func() bool {
		for _, p := range pairs {
			if p.LastSyncTime().IsZero() {
				return false
			}
		}
		return true
	}, 3*time.Second, 10*time.Millisecond, "all three jobs should eventually run, one at a time")
}

func TestSupervisorSkipsInactivePair(t *testing.T) {
	sup, reg, _ := newTestSupervisor(t, 2)
	src, tgt := t.TempDir(), t.TempDir()
	p := registry.NewPair(src, tgt)
	require.NoError(t, reg.Insert(p))
	_, _ = reg.MarkInactive(src)

	ctx, cancel := context.WithCancel(context.Background())
	go sup.Run(ctx)
	defer cancel()

	sup.Schedule(src, tgt, "f.txt", "ADDED")

	time.Sleep(200 * time.Millisecond)
	assert.True(t, p.LastSyncTime().IsZero(), "cancelled pair should not have a worker dispatched")
}

func TestParseWorkerReportExtractsFields(t *testing.T) {
	line := fmt.Sprintf("[2026-01-01 00:00:00] [WORKER_REPORT] [/src] [/tgt] [1234] [ADDED] [SUCCESS] [File: a.txt]")
	rep, ok := parseWorkerReport(line)
	require.True(t, ok)
	assert.Equal(t, "/src", rep.source)
	assert.Equal(t, "/tgt", rep.target)
	assert.Equal(t, "1234", rep.pid)
	assert.Equal(t, "ADDED", rep.operation)
	assert.EqualValues(t, "SUCCESS", rep.status)
	assert.Equal(t, "File: a.txt", rep.details)
}

func TestParseWorkerReportRejectsUnrelatedLine(t *testing.T) {
	_, ok := parseWorkerReport("just some stdout noise")
	assert.False(t, ok)
}
