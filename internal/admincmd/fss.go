// Package admincmd implements the Command Dispatcher (C6): parsing
// administrative commands and mutating the registry, task queue or event
// supervisor backlog accordingly. FSSHandler and NFSHandler are separate
// types since add/cancel/status/sync/shutdown have different effects per
// engine (spec.md §4.6).
package admincmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Vaggelis-Arg/FileSync-Systems/internal/fsnotifywatch"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/lifecycle"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/registry"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/report"
)

const timeLayout = "2006-01-02 15:04:05"

// FSSHandler dispatches add/cancel/status/sync/shutdown against the FSS
// registry and watcher (spec.md §4.6 table).
type FSSHandler struct {
	Registry *registry.Registry
	Watcher  *fsnotifywatch.Watcher
	Log      *report.Logger
	Life     *lifecycle.Coordinator

	// ScheduleFull is called to queue a startup-style "ALL"/"FULL" worker
	// job for a pair, e.g. on add or on sync. Supplied by the event
	// supervisor so the dispatcher never reaches into C5's backlog
	// directly (spec.md §4.5/§4.6 boundary).
	ScheduleFull func(source, target string)
}

// Dispatch parses one command line and returns the response lines to write
// back on the FSS console transport (spec.md §4.6, §6).
func (h *FSSHandler) Dispatch(line string) []string {
	ts := timestamp()
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return []string{fmt.Sprintf("[%s] Invalid command format", ts)}
	}

	switch fields[0] {
	case "add":
		return h.add(ts, fields)
	case "cancel":
		return h.cancel(ts, fields)
	case "status":
		return h.status(ts, fields)
	case "sync":
		return h.sync(ts, fields)
	case "shutdown":
		return h.shutdown(ts)
	default:
		return []string{fmt.Sprintf("[%s] Unknown command: %s", ts, fields[0])}
	}
}

func (h *FSSHandler) add(ts string, fields []string) []string {
	if h.Life.ShuttingDown() {
		return []string{fmt.Sprintf("[%s] %s", ts, lifecycle.RejectedMessage)}
	}
	if len(fields) != 3 {
		return []string{fmt.Sprintf("[%s] Invalid command format", ts)}
	}
	source, target := fields[1], fields[2]

	if _, ok := h.Registry.Find(source); ok {
		return []string{fmt.Sprintf("[%s] Already in queue: %s", ts, source)}
	}

	if _, err := os.Stat(target); os.IsNotExist(err) {
		_ = os.MkdirAll(target, 0o755)
	}

	p := registry.NewPair(source, target)
	_ = h.Registry.Insert(p)
	if h.Log != nil {
		_ = h.Log.Administrative(fmt.Sprintf("Added directory: %s -> %s", source, target))
	}

	if err := h.Watcher.Watch(source); err != nil {
		p.SetWatchID(nil)
		if h.Log != nil {
			_ = h.Log.Administrative(fmt.Sprintf("Failed to monitor %s", source))
		}
		return []string{fmt.Sprintf("[%s] Failed to monitor %s", ts, source)}
	}
	p.SetWatchID(source)

	if h.Log != nil {
		_ = h.Log.Administrative(fmt.Sprintf("Monitoring started for %s", source))
	}
	if h.ScheduleFull != nil {
		h.ScheduleFull(source, target)
	}
	return []string{
		fmt.Sprintf("[%s] Added directory: %s -> %s", ts, source, target),
		fmt.Sprintf("[%s] Monitoring started for %s", ts, source),
	}
}

func (h *FSSHandler) cancel(ts string, fields []string) []string {
	if len(fields) != 2 {
		return []string{fmt.Sprintf("[%s] Invalid command format", ts)}
	}
	source := fields[1]
	p, ok := h.Registry.Find(source)
	if !ok {
		return []string{fmt.Sprintf("[%s] Directory not monitored: %s", ts, source)}
	}
	if !p.Active() {
		return []string{fmt.Sprintf("[%s] Directory not monitored: %s", ts, source)}
	}

	_, _ = h.Registry.MarkInactive(source)
	_ = h.Watcher.Unwatch(source)
	if h.Log != nil {
		_ = h.Log.Administrative(fmt.Sprintf("Monitoring stopped for %s", source))
	}
	return []string{fmt.Sprintf("[%s] Monitoring stopped for %s", ts, source)}
}

func (h *FSSHandler) status(ts string, fields []string) []string {
	if len(fields) != 2 {
		return []string{fmt.Sprintf("[%s] Invalid command format", ts)}
	}
	source := fields[1]
	if h.Log != nil {
		_ = h.Log.Administrative(fmt.Sprintf("Status requested for %s", source))
	}

	p, ok := h.Registry.Find(source)
	if !ok {
		return []string{fmt.Sprintf("[%s] Directory not monitored: %s", ts, source)}
	}

	lastSync := "never"
	if t := p.LastSyncTime(); !t.IsZero() {
		lastSync = t.Format(timeLayout)
	}
	state := "Inactive"
	if p.Active() {
		state = "Active"
	}
	return []string{
		fmt.Sprintf("[%s] Status requested for %s", ts, source),
		fmt.Sprintf("Directory: %s", source),
		fmt.Sprintf("Target: %s", p.TargetPath),
		fmt.Sprintf("Last Sync: %s", lastSync),
		fmt.Sprintf("Errors: %d", p.ErrorCount()),
		fmt.Sprintf("Status: %s", state),
	}
}

// sync forces a full re-sync, but only while the pair is inactive (spec.md
// §9 open question a: preserve the reject-when-active contract).
func (h *FSSHandler) sync(ts string, fields []string) []string {
	if len(fields) != 2 {
		return []string{fmt.Sprintf("[%s] Invalid command format", ts)}
	}
	source := fields[1]
	p, ok := h.Registry.Find(source)
	if !ok {
		return []string{fmt.Sprintf("[%s] Directory not monitored: %s", ts, source)}
	}
	if p.Active() {
		return []string{fmt.Sprintf("[%s] Sync already in progress: %s", ts, source)}
	}

	if h.Log != nil {
		_ = h.Log.Administrative(fmt.Sprintf("Syncing directory: %s -> %s", source, p.TargetPath))
	}
	if err := h.Watcher.Watch(source); err == nil {
		p.SetWatchID(source)
	}
	if h.ScheduleFull != nil {
		h.ScheduleFull(source, p.TargetPath)
	}
	_, _ = h.Registry.Reactivate(source)

	return []string{
		fmt.Sprintf("[%s] Syncing directory: %s -> %s", ts, source, p.TargetPath),
		fmt.Sprintf("[%s] Sync completed %s -> %s Errors:%d", ts, source, p.TargetPath, p.ErrorCount()),
	}
}

func (h *FSSHandler) shutdown(ts string) []string {
	h.Life.Begin()
	if h.Log != nil {
		_ = h.Log.Administrative("Shutting down manager")
	}
	return []string{
		fmt.Sprintf("[%s] %s...", ts, lifecycle.LineShuttingDown),
		fmt.Sprintf("[%s] %s to finish...", ts, lifecycle.LineWaitingForWorkers),
		fmt.Sprintf("[%s] %s...", ts, lifecycle.LineProcessingRemaining),
		fmt.Sprintf("[%s] %s", ts, lifecycle.LineComplete),
	}
}

func timestamp() string {
	return time.Now().Format(timeLayout)
}
