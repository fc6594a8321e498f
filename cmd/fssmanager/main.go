// Command fssmanager runs the local filesystem synchronizer: a
// single-threaded event supervisor that watches configured source
// directories for change events and dispatches per-file mirror jobs to
// child workers (spec.md §1, §4.5).
package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Vaggelis-Arg/FileSync-Systems/internal/admincmd"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/fsnotifywatch"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/fssloop"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/lifecycle"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/metrics"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/registry"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/report"
	"github.com/Vaggelis-Arg/FileSync-Systems/internal/syncconfig"
)

var (
	logPath     string
	configPath  string
	workerCount int
	workerBin   string
	metricsAddr string
)

func main() {
	root := &cobra.Command{
		Use:   "fssmanager",
		Short: "Run the local filesystem synchronizer manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
	flags := root.Flags()
	flags.StringVarP(&logPath, "logfile", "l", "manager.log", "path to the structured sync report log")
	flags.StringVarP(&configPath, "config", "c", "", "path to the FSS pair configuration file")
	flags.IntVarP(&workerCount, "workers", "n", 5, "maximum number of concurrent child workers")
	flags.StringVar(&workerBin, "worker-bin", "./fssworker", "path to the fssworker child binary")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address")
	_ = root.MarkFlagRequired("config")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	opLog := logrus.New()

	if err := createNamedPipes("fss_in", "fss_out"); err != nil {
		return errors.Wrap(err, "create named pipes")
	}

	logger, err := report.Open(logPath)
	if err != nil {
		return errors.Wrap(err, "open report log")
	}

	reg := registry.New()
	watcher, err := fsnotifywatch.New()
	if err != nil {
		return errors.Wrap(err, "create filesystem watcher")
	}
	defer watcher.Close()

	life := lifecycle.New()
	sup := fssloop.New(workerCount, reg, watcher, logger, opLog, workerBin)

	handler := &admincmd.FSSHandler{
		Registry: reg,
		Watcher:  watcher,
		Log:      logger,
		Life:     life,
		ScheduleFull: func(source, target string) {
			sup.Schedule(source, target, "ALL", "FULL")
		},
	}

	if err := loadStartupPairs(handler, reg, watcher, sup, logger, opLog); err != nil {
		return err
	}

	if metricsAddr != "" {
		startMetricsServer(metricsAddr, reg, sup)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx)

	return serveConsole(handler, life)
}

// loadStartupPairs registers every pair from the config file in file order
// (spec.md §12 supplemented feature: startup order follows the config file,
// not a reversed incidental order), starting a watch and a startup FULL job
// for each one that registers successfully.
func loadStartupPairs(h *admincmd.FSSHandler, reg *registry.Registry, watcher *fsnotifywatch.Watcher, sup *fssloop.Supervisor, logger *report.Logger, opLog *logrus.Logger) error {
	if configPath == "" {
		return nil
	}
	result, err := syncconfig.ParseFSS(configPath)
	if err != nil {
		return errors.Wrap(err, "parse config")
	}
	for _, skipped := range result.Skipped {
		opLog.WithField("line", skipped.LineNo).Warnf("invalid config line: %s", skipped.Text)
	}

	for _, entry := range result.Entries {
		p := registry.NewPair(entry.SourceDir, entry.TargetDir)
		if err := reg.Insert(p); err != nil {
			opLog.WithError(err).WithField("source", entry.SourceDir).Warn("duplicate pair in config, skipping")
			continue
		}
		if err := watcher.Watch(entry.SourceDir); err != nil {
			_ = logger.Administrative(fmt.Sprintf("Failed to monitor %s", entry.SourceDir))
			opLog.WithError(err).WithField("source", entry.SourceDir).Warn("failed to watch source directory")
			continue
		}
		p.SetWatchID(entry.SourceDir)
		_ = logger.Administrative(fmt.Sprintf("Added directory: %s -> %s", entry.SourceDir, entry.TargetDir))
		_ = logger.Administrative(fmt.Sprintf("Monitoring started for %s", entry.SourceDir))
		sup.Schedule(entry.SourceDir, entry.TargetDir, "ALL", "FULL")
	}
	return nil
}

// serveConsole reads \n-terminated commands from fss_in and writes
// responses to fss_out until a shutdown command has been processed (spec.md
// §6).
func serveConsole(handler *admincmd.FSSHandler, life *lifecycle.Coordinator) error {
	in, err := os.OpenFile("fss_in", os.O_RDONLY, 0)
	if err != nil {
		return errors.Wrap(err, "open fss_in")
	}
	defer in.Close()
	out, err := os.OpenFile("fss_out", os.O_WRONLY, 0)
	if err != nil {
		return errors.Wrap(err, "open fss_out")
	}
	defer out.Close()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		lines := handler.Dispatch(scanner.Text())
		for _, line := range lines {
			fmt.Fprintln(out, line)
		}
		if life.ShuttingDown() {
			return nil
		}
	}
	return scanner.Err()
}

func createNamedPipes(paths ...string) error {
	for _, p := range paths {
		_ = os.Remove(p)
		if err := syscall.Mkfifo(p, 0o666); err != nil {
			return errors.Wrapf(err, "mkfifo %q", p)
		}
	}
	return nil
}

func startMetricsServer(addr string, reg *registry.Registry, sup *fssloop.Supervisor) {
	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			m.ActiveWorkers.Set(float64(sup.ActiveCount()))
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
