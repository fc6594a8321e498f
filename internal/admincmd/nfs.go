package admincmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Vaggelis-Arg/FileSync-Systems/internal/dataproto"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/lifecycle"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/registry"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/report"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/taskqueue"
)

// NFSHandler dispatches add/cancel/shutdown over a single TCP console
// session. NFS carries no status/sync command (spec.md §4.6 table only
// lists those two for FSS).
type NFSHandler struct {
	Registry *registry.Registry
	Queue    *taskqueue.Queue
	Log      *report.Logger
	Life     *lifecycle.Coordinator

	// WaitDrained blocks until every task enqueued so far has been
	// completed by a worker; supplied by the manager so the handler never
	// touches the worker pool directly (spec.md §4.8).
	WaitDrained func()
}

// Dispatch parses one command line and returns the response lines. Every
// response from an NFSHandler ends with a line containing exactly "END",
// per spec.md §4.6/§6 — callers must append it themselves if this method's
// result doesn't already include it, which it always does here for
// uniformity with the console transport contract.
func (h *NFSHandler) Dispatch(line string) []string {
	ts := timestamp()
	fields := strings.SplitN(strings.TrimSpace(line), " ", 2)
	if len(fields) == 0 {
		return terminate(fmt.Sprintf("[%s] Invalid command format", ts))
	}

	switch fields[0] {
	case "add":
		return h.add(ts, argOrEmpty(fields))
	case "cancel":
		return h.cancel(ts, argOrEmpty(fields))
	case "shutdown":
		return h.shutdown(ts)
	default:
		return terminate("Unknown command")
	}
}

func argOrEmpty(fields []string) string {
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

func terminate(lines ...string) []string {
	return append(append([]string{}, lines...), "END")
}

func (h *NFSHandler) add(ts, arg string) []string {
	if h.Life.ShuttingDown() {
		return terminate(fmt.Sprintf("[%s] %s", ts, lifecycle.RejectedMessage))
	}
	parts := strings.Fields(arg)
	if len(parts) != 2 {
		return terminate("Incorrect add command")
	}
	src, err := parseEndpointArg(parts[0])
	if err != nil {
		return terminate("Invalid source format")
	}
	tgt, err := parseEndpointArg(parts[1])
	if err != nil {
		return terminate("Invalid target format")
	}

	if _, ok := h.Registry.Find(src.dir); ok {
		return terminate(fmt.Sprintf("[%s] Already in queue: %s", ts, src.dir))
	}

	if _, err := os.Stat(tgt.dir); os.IsNotExist(err) {
		if err := os.MkdirAll(tgt.dir, 0o755); err != nil {
			return terminate("Failed to create target directory")
		}
	}

	p := registry.NewPair(src.dir, tgt.dir)
	p.SourceHost, p.SourcePort = src.host, src.port
	p.TargetHost, p.TargetPort = tgt.host, tgt.port
	_ = h.Registry.Insert(p)

	lines := h.syncPairFiles(src, tgt)
	return terminate(lines...)
}

// syncPairFiles dials the source data node, lists its files, enqueues one
// Task per file, and returns one "Added file: ..." line per file — the
// synchronous full-sync-on-add behavior spec.md §12 carries over from the
// original source (the NFS add handler blocks until enumeration completes).
func (h *NFSHandler) syncPairFiles(src, tgt endpointArg) []string {
	addr := fmt.Sprintf("%s:%d", src.host, src.port)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c, err := dataproto.Dial(ctx, addr)
	if err != nil {
		return nil
	}
	defer c.Close()

	names, err := c.List(src.dir)
	if err != nil {
		return nil
	}
	if len(names) == 0 {
		return []string{fmt.Sprintf("No files to process from dir: %s", src.dir)}
	}

	var lines []string
	for _, name := range names {
		h.Queue.Enqueue(taskqueue.Task{
			SourcePath: src.dir, TargetPath: tgt.dir,
			SourceHost: src.host, SourcePort: src.port,
			TargetHost: tgt.host, TargetPort: tgt.port,
			Filename: name,
		})
		line := fmt.Sprintf("[%s] Added file: %s/%s@%s:%d -> %s/%s@%s:%d",
			timestamp(), src.dir, name, src.host, src.port, tgt.dir, name, tgt.host, tgt.port)
		if h.Log != nil {
			_ = h.Log.Administrative(line)
		}
		lines = append(lines, line)
	}
	return lines
}

func (h *NFSHandler) cancel(ts, arg string) []string {
	source := strings.Fields(arg)
	if len(source) != 1 {
		return terminate("Incorrect cancel command format.")
	}
	p, ok := h.Registry.Find(source[0])
	if !ok {
		return terminate(fmt.Sprintf("[%s] Directory not being synchronized: %s", ts, source[0]))
	}
	_, _ = h.Registry.MarkInactive(source[0])
	return terminate(fmt.Sprintf("[%s] Synchronization stopped for %s@%s:%d",
		ts, source[0], p.SourceHost, p.SourcePort))
}

func (h *NFSHandler) shutdown(ts string) []string {
	h.Life.Begin()
	lines := []string{
		fmt.Sprintf("[%s] %s...", ts, lifecycle.LineShuttingDown),
		fmt.Sprintf("[%s] %s to finish...", ts, lifecycle.LineWaitingForWorkers),
		fmt.Sprintf("[%s] %s...", ts, lifecycle.LineProcessingRemaining),
	}
	if h.WaitDrained != nil {
		h.WaitDrained()
	}
	h.Queue.Shutdown()
	lines = append(lines, fmt.Sprintf("[%s] %s", timestamp(), lifecycle.LineComplete))
	return terminate(lines...)
}

type endpointArg struct {
	dir  string
	host string
	port int
}

func parseEndpointArg(token string) (endpointArg, error) {
	dir, hostport, ok := strings.Cut(token, "@")
	if !ok {
		return endpointArg{}, fmt.Errorf("missing '@' in %q", token)
	}
	host, portStr, ok := strings.Cut(hostport, ":")
	if !ok {
		return endpointArg{}, fmt.Errorf("missing ':' in %q", token)
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return endpointArg{}, err
	}
	return endpointArg{dir: dir, host: host, port: port}, nil
}
