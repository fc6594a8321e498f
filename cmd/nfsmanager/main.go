// Command nfsmanager runs the network filesystem synchronizer: a bounded
// task queue and a fixed worker pool that mirror files between remote
// data-node daemons over the custom line+chunk protocol (spec.md §1, §4.4).
package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Vaggelis-Arg/FileSync-Systems/internal/admincmd"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/lifecycle"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/metrics"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/nfspool"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/registry"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/report"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/syncconfig"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/taskqueue"
)

var (
	logPath     string
	configPath  string
	consolePort int
	queueSize   int
	workerCount int
	metricsAddr string
)

func main() {
	root := &cobra.Command{
		Use:   "nfsmanager",
		Short: "Run the network filesystem synchronizer manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
	flags := root.Flags()
	flags.StringVarP(&logPath, "logfile", "l", "nfsmanager.log", "path to the structured sync report log")
	flags.StringVarP(&configPath, "config", "c", "", "path to the NFS pair configuration file")
	flags.IntVarP(&consolePort, "port", "p", 9000, "TCP port the admin console listens on")
	flags.IntVarP(&queueSize, "buffer-size", "b", 64, "fixed capacity of the task queue")
	flags.IntVarP(&workerCount, "workers", "n", 5, "number of fixed pool workers")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	opLog := logrus.New()

	logger, err := report.Open(logPath)
	if err != nil {
		return errors.Wrap(err, "open report log")
	}

	reg := registry.New()
	queue := taskqueue.New(queueSize)
	life := lifecycle.New()
	pool := nfspool.New(workerCount, queue, reg, logger, opLog)

	handler := &admincmd.NFSHandler{
		Registry:    reg,
		Queue:       queue,
		Log:         logger,
		Life:        life,
		WaitDrained: queue.WaitAllDone,
	}

	if err := loadStartupPairs(handler, opLog); err != nil {
		return err
	}

	if metricsAddr != "" {
		startMetricsServer(metricsAddr, reg, queue)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poolDone := make(chan error, 1)
	go func() { poolDone <- pool.Run(ctx) }()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", consolePort))
	if err != nil {
		return errors.Wrap(err, "listen on console port")
	}
	defer ln.Close()

	return serveConsole(ln, handler, life, poolDone)
}

// loadStartupPairs registers every pair from the config file and performs
// its initial file listing synchronously, the same as an "add" console
// command issued for each configured pair (spec.md §12 supplemented
// feature: config-file pairs get the same startup treatment a manual add
// would).
func loadStartupPairs(h *admincmd.NFSHandler, opLog *logrus.Logger) error {
	if configPath == "" {
		return nil
	}
	entries, err := syncconfig.ParseNFS(configPath)
	if err != nil {
		return errors.Wrap(err, "parse config")
	}
	for _, e := range entries {
		cmd := fmt.Sprintf("add %s@%s:%d %s@%s:%d",
			e.SourceDir, e.SourceHost, e.SourcePort, e.TargetDir, e.TargetHost, e.TargetPort)
		for _, line := range h.Dispatch(cmd) {
			opLog.Info(line)
		}
	}
	return nil
}

// serveConsole accepts TCP console connections one at a time, reading
// commands and writing responses until the connection closes or a
// shutdown command has been processed (spec.md §6).
func serveConsole(ln net.Listener, handler *admincmd.NFSHandler, life *lifecycle.Coordinator, poolDone <-chan error) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if life.ShuttingDown() {
				<-poolDone
				return nil
			}
			return errors.Wrap(err, "accept console connection")
		}
		if handleConsoleConn(conn, handler, life) {
			<-poolDone
			return nil
		}
	}
}

func handleConsoleConn(conn net.Conn, handler *admincmd.NFSHandler, life *lifecycle.Coordinator) (shutdown bool) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	writer := bufio.NewWriter(conn)
	defer writer.Flush()

	for scanner.Scan() {
		lines := handler.Dispatch(scanner.Text())
		for _, line := range lines {
			fmt.Fprintln(writer, line)
		}
		writer.Flush()
		if life.ShuttingDown() {
			return true
		}
	}
	return false
}

func startMetricsServer(addr string, reg *registry.Registry, queue *taskqueue.Queue) {
	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			m.QueueDepth.Set(float64(queue.Len()))
			active := 0
			for _, p := range reg.List() {
				if p.Active() {
					active++
				}
			}
			m.PairsActive.Set(float64(active))
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	go func() {
		_ = http.ListenAndServe(addr, mux)
	}()
}
