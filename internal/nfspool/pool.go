// Package nfspool implements the Worker Pool (C4): a fixed number of
// goroutines draining the NFS manager's taskqueue.Queue, each driving one
// Task through the data-node protocol end to end (spec.md §4.4).
package nfspool

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Vaggelis-Arg/FileSync-Systems/internal/dataproto"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/registry"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/report"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/taskqueue"
)

// DialTimeout bounds each of the two data-node dials a worker performs per
// task, so one unresponsive host cannot wedge a worker forever.
const DialTimeout = 10 * time.Second

// Pool is a fixed-size set of workers, each looping Dequeue -> PULL -> PUSH
// -> MarkCompleted until the queue shuts down (spec.md §4.4 steps 1-9).
type Pool struct {
	size     int
	queue    *taskqueue.Queue
	registry *registry.Registry
	log      *report.Logger
	opLog    *logrus.Logger
}

// New creates a Pool of size workers bound to queue, registry and the two
// loggers: log is the fixed-format domain report, opLog is operational
// diagnostics.
func New(size int, queue *taskqueue.Queue, reg *registry.Registry, log *report.Logger, opLog *logrus.Logger) *Pool {
	if size <= 0 {
		panic("nfspool: size must be positive")
	}
	return &Pool{size: size, queue: queue, registry: reg, log: log, opLog: opLog}
}

// Run starts size worker goroutines and blocks until every one of them
// exits, which happens once the queue is shut down and drained. It returns
// the first worker error, if any, though individual task failures are
// reported through the report log and do not themselves stop the pool.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.size; i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		g.Go(func() error {
			p.runWorker(ctx, workerID)
			return nil
		})
	}
	return g.Wait()
}

func (p *Pool) runWorker(ctx context.Context, workerID string) {
	for {
		task, ok := p.queue.Dequeue()
		if !ok {
			return
		}
		p.process(ctx, workerID, task)
		p.queue.MarkCompleted()
	}
}

// process looks up the owning pair before doing anything else: a task for a
// pair that's been cancelled since it was enqueued terminates as a no-op
// (spec.md §4.4 step 2, §4.6, §8). Otherwise it drives the Task through
// PULL-from-source then PUSH-to-target, logging the outcome and updating
// the owning pair's counters regardless of success (spec.md §4.4, §4.7).
func (p *Pool) process(ctx context.Context, workerID string, t taskqueue.Task) {
	if pair, ok := p.registry.Find(t.SourcePath); !ok || !pair.Active() {
		return
	}

	sourcePath := path.Join(t.SourcePath, t.Filename)
	targetPath := path.Join(t.TargetPath, t.Filename)

	data, err := p.pull(ctx, t)
	if err != nil {
		p.fail(workerID, t, sourcePath, targetPath, errors.Wrap(err, "pull"))
		return
	}

	if err := p.push(ctx, t, data); err != nil {
		p.fail(workerID, t, sourcePath, targetPath, errors.Wrap(err, "push"))
		return
	}

	_ = p.registry.UpdateAfterWorker(t.SourcePath, true)
	if p.log != nil {
		_ = p.log.SyncOutcome(sourcePath, targetPath, workerID, "SYNC", report.StatusSuccess,
			fmt.Sprintf("%d bytes", len(data)))
	}
	if p.opLog != nil {
		p.opLog.WithFields(logrus.Fields{
			"worker": workerID, "source": sourcePath, "target": targetPath, "bytes": len(data),
		}).Debug("file synced")
	}
}

func (p *Pool) pull(ctx context.Context, t taskqueue.Task) ([]byte, error) {
	addr := fmt.Sprintf("%s:%d", t.SourceHost, t.SourcePort)
	dialCtx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()
	c, err := dataproto.Dial(dialCtx, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial source %s", addr)
	}
	defer c.Close()

	return c.Pull(path.Join(t.SourcePath, t.Filename))
}

func (p *Pool) push(ctx context.Context, t taskqueue.Task, data []byte) error {
	addr := fmt.Sprintf("%s:%d", t.TargetHost, t.TargetPort)
	dialCtx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()
	c, err := dataproto.Dial(dialCtx, addr)
	if err != nil {
		return errors.Wrapf(err, "dial target %s", addr)
	}
	defer c.Close()

	targetPath := path.Join(t.TargetPath, t.Filename)
	session, err := c.OpenPush(targetPath)
	if err != nil {
		return err
	}
	for off := 0; off < len(data); off += dataproto.ChunkSize {
		end := off + dataproto.ChunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := session.Chunk(data[off:end]); err != nil {
			return err
		}
	}
	return session.Close()
}

func (p *Pool) fail(workerID string, t taskqueue.Task, sourcePath, targetPath string, cause error) {
	_ = p.registry.UpdateAfterWorker(t.SourcePath, false)
	if p.log != nil {
		_ = p.log.SyncOutcome(sourcePath, targetPath, workerID, "SYNC", report.StatusError, cause.Error())
	}
	if p.opLog != nil {
		p.opLog.WithFields(logrus.Fields{
			"worker": workerID, "source": sourcePath, "target": targetPath,
		}).WithError(cause).Warn("sync task failed")
	}
}
