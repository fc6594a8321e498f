// Package fssloop implements the Event Supervisor (C5): a single cooperative
// loop multiplexing job requests from Schedule, fsnotify change events, and
// asynchronous child-worker completions (spec.md §4.5). The admin command
// pipe itself is read by cmd/fssmanager, whose dispatcher reaches the loop
// through Schedule. Per the REDESIGN FLAG in spec.md §9, child-exit handling
// never does bookkeeping from a signal handler: a dedicated goroutine per
// child only reaps and forwards a completion event, and the resulting
// registry update and backlog draining happen on the loop goroutine. The
// command dispatcher still changes pair state (add, cancel, sync) from its
// own goroutine through the registry's locks.
package fssloop

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/Vaggelis-Arg/FileSync-Systems/internal/fsnotifywatch"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/registry"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/report"
)

// Job is one scheduled worker invocation: sync file Filename (or "ALL" for
// a full-directory pass) from Source to Target using Operation.
type Job struct {
	Source    string
	Target    string
	Filename  string
	Operation string
}

// workerReportPattern matches the fixed bracketed line format spec.md §4.5
// says result pipes carry: `[ts] [WORKER_REPORT] [src] [tgt] [pid] [op]
// [status] [details]`.
var workerReportPattern = regexp.MustCompile(
	`^\[[^\]]*\] \[WORKER_REPORT\] \[([^\]]*)\] \[([^\]]*)\] \[([^\]]*)\] \[([^\]]*)\] \[([^\]]*)\] \[([^\]]*)\]$`)

type childExit struct {
	source    string
	target    string
	operation string
	pid       int
	cleanExit bool
}

type workerReport struct {
	source, target, pid, operation string
	status                         report.Status
	details                        string
}

// Supervisor owns the backlog of jobs waiting for a free worker slot and
// the bookkeeping for currently running children. Up to capacity children
// may run concurrently; beyond that, jobs queue in FIFO order (spec.md
// §4.5's "FSS work backlog", distinct from C2).
type Supervisor struct {
	capacity  int
	active    int
	backlog   []Job
	workerBin string

	registry *registry.Registry
	watcher  *fsnotifywatch.Watcher
	log      *report.Logger
	opLog    *logrus.Logger

	scheduleCh chan Job
	childDone  chan childExit
	reports    chan workerReport
}

// New creates a Supervisor. workerBin is the path to the per-file/per-
// directory child worker binary (cmd/fssworker), invoked as
// `<workerBin> <source> <target> <filename> <operation>`.
func New(capacity int, reg *registry.Registry, watcher *fsnotifywatch.Watcher, log *report.Logger, opLog *logrus.Logger, workerBin string) *Supervisor {
	if capacity <= 0 {
		panic("fssloop: capacity must be positive")
	}
	return &Supervisor{
		capacity:   capacity,
		workerBin:  workerBin,
		registry:   reg,
		watcher:    watcher,
		log:        log,
		opLog:      opLog,
		scheduleCh: make(chan Job, 256),
		childDone:  make(chan childExit, capacity),
		reports:    make(chan workerReport, 256),
	}
}

// Schedule enqueues a Job for dispatch. Safe to call from any goroutine
// (the command dispatcher and the manager's startup pass call this; watcher
// events are read by Run directly); the actual capacity/backlog decision
// happens on the loop goroutine.
func (s *Supervisor) Schedule(source, target, filename, operation string) {
	s.scheduleCh <- Job{Source: source, Target: target, Filename: filename, Operation: operation}
}

// Run is the supervisor's single cooperative loop. It returns when ctx is
// cancelled, after reaping every still-running child.
func (s *Supervisor) Run(ctx context.Context) {
	events := s.watcher.Events()
	errs := s.watcher.Errors()

	for {
		select {
		case <-ctx.Done():
			s.drainChildren()
			return

		case job := <-s.scheduleCh:
			s.dispatchOrQueue(job)

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.onChangeEvent(ev)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if s.opLog != nil {
				s.opLog.WithError(err).Warn("watcher error")
			}

		case exit := <-s.childDone:
			s.onChildExit(exit)

		case rep := <-s.reports:
			s.onWorkerReport(rep)
		}
	}
}

// ActiveCount returns the number of currently running children, for
// status/metrics reporting.
func (s *Supervisor) ActiveCount() int {
	return s.active
}

// BacklogLen returns the number of jobs waiting for a free worker slot.
func (s *Supervisor) BacklogLen() int {
	return len(s.backlog)
}

func (s *Supervisor) onChangeEvent(ev fsnotifywatch.Event) {
	p, ok := s.registry.Find(ev.Dir)
	if !ok || !p.Active() {
		return
	}
	s.dispatchOrQueue(Job{Source: ev.Dir, Target: p.TargetPath, Filename: ev.Filename, Operation: string(ev.Kind)})
}

func (s *Supervisor) dispatchOrQueue(j Job) {
	if p, ok := s.registry.Find(j.Source); ok && !p.Active() {
		return
	}
	if s.active >= s.capacity {
		s.backlog = append(s.backlog, j)
		if s.opLog != nil {
			s.opLog.WithFields(logrus.Fields{"source": j.Source, "operation": j.Operation}).
				Debug("worker queue full, job backlogged")
		}
		return
	}
	s.startChild(j)
}

func (s *Supervisor) startChild(j Job) {
	cmd := exec.Command(s.workerBin, j.Source, j.Target, j.Filename, j.Operation)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		if s.opLog != nil {
			s.opLog.WithError(err).Error("failed to create worker stdout pipe")
		}
		return
	}
	if err := cmd.Start(); err != nil {
		if s.opLog != nil {
			s.opLog.WithError(err).Error("failed to start worker")
		}
		return
	}

	s.active++
	if p, ok := s.registry.Find(j.Source); ok {
		p.SetLastWorker(strconv.Itoa(cmd.Process.Pid), j.Operation)
	}
	if s.opLog != nil {
		s.opLog.WithFields(logrus.Fields{"pid": cmd.Process.Pid, "operation": j.Operation, "source": j.Source}).
			Info("started worker")
	}

	go s.reapChild(cmd, stdout, j)
}

// reapChild drains the child's stdout, forwarding each parsed report to the
// loop, then waits for the process to exit and forwards a single childExit
// event. This goroutine does no registry or backlog mutation itself — that
// bookkeeping stays on the loop goroutine, per the REDESIGN FLAG.
func (s *Supervisor) reapChild(cmd *exec.Cmd, stdout io.Reader, j Job) {
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if rep, ok := parseWorkerReport(scanner.Text()); ok {
			s.reports <- rep
		}
	}

	err := cmd.Wait()
	s.childDone <- childExit{
		source: j.Source, target: j.Target, operation: j.Operation,
		pid: cmd.Process.Pid, cleanExit: err == nil,
	}
}

func (s *Supervisor) onChildExit(exit childExit) {
	s.active--
	if err := s.registry.UpdateAfterWorker(exit.source, exit.cleanExit); err != nil && s.opLog != nil {
		s.opLog.WithField("source", exit.source).Debug("worker exited for a pair no longer registered")
	}
	if s.opLog != nil {
		s.opLog.WithFields(logrus.Fields{"pid": exit.pid, "source": exit.source, "clean": exit.cleanExit}).
			Info("worker exited")
	}

	for s.active < s.capacity && len(s.backlog) > 0 {
		next := s.backlog[0]
		s.backlog = s.backlog[1:]
		s.dispatchOrQueue(next)
	}
}

func (s *Supervisor) onWorkerReport(rep workerReport) {
	if s.log != nil {
		_ = s.log.WorkerReport(rep.source, rep.target, rep.pid, rep.operation, rep.status, rep.details)
	}
	renderExecReport(rep)
}

// renderExecReport prints the human-readable EXEC report block to the
// supervisor's standard output (spec.md §4.7).
func renderExecReport(rep workerReport) {
	fmt.Println("EXEC_REPORT_START")
	fmt.Printf("OPERATION: %s\n", rep.operation)
	fmt.Printf("STATUS: %s\n", rep.status)
	if rep.status == report.StatusError {
		fmt.Println("DETAILS: ")
		fmt.Printf("ERRORS:\n%s\n", rep.details)
	} else {
		fmt.Printf("DETAILS: %s\n", rep.details)
	}
	fmt.Println("EXEC_REPORT_END")
}

func parseWorkerReport(line string) (workerReport, bool) {
	m := workerReportPattern.FindStringSubmatch(line)
	if m == nil {
		return workerReport{}, false
	}
	return workerReport{
		source: m[1], target: m[2], pid: m[3], operation: m[4],
		status: report.Status(m[5]), details: m[6],
	}, true
}

// drainChildren blocks until every still-running child has exited, applying
// their final bookkeeping, matching the FSS half of the Shutdown
// Coordinator's drain step (spec.md §4.8: "wait for all in-flight children
// to exit").
func (s *Supervisor) drainChildren() {
	for s.active > 0 {
		select {
		case exit := <-s.childDone:
			s.onChildExit(exit)
		case rep := <-s.reports:
			s.onWorkerReport(rep)
		}
	}
}
