// Command fssworker is the short-lived child process the FSS Event
// Supervisor (internal/fssloop) forks for every dispatched job. It performs
// one sync operation — a full directory pass or a single file add/modify/
// delete — and reports the outcome as a single WORKER_REPORT line on
// standard output before exiting (spec.md §4.4, §4.7).
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const reportLayout = "2006-01-02 15:04:05"

func main() {
	if len(os.Args) != 5 {
		fmt.Fprintf(os.Stderr, "usage: %s <source> <target> <filename> <operation>\n", os.Args[0])
		os.Exit(1)
	}
	source, target, filename, operation := os.Args[1], os.Args[2], os.Args[3], os.Args[4]

	switch operation {
	case "FULL":
		runFull(source, target, operation)
	case "ADDED", "MODIFIED":
		runSyncOne(source, target, filename, operation)
	case "DELETED":
		runDelete(source, target, filename, operation)
	default:
		os.Exit(1)
	}
}

func runFull(source, target, operation string) {
	entries, err := os.ReadDir(source)
	if err != nil {
		os.Exit(1)
	}

	successCount, errorCount := 0, 0
	var errBuf strings.Builder
	for _, entry := range entries {
		src := filepath.Join(source, entry.Name())
		dst := filepath.Join(target, entry.Name())
		if err := syncFile(src, dst); err != nil {
			errorCount++
			fmt.Fprintf(&errBuf, "- File %s: %s", entry.Name(), err)
			continue
		}
		successCount++
	}

	switch {
	case errorCount == 0:
		printReport("SUCCESS", fmt.Sprintf("%d files copied", successCount), "", source, target, operation)
	case successCount > 0:
		printReport("PARTIAL", fmt.Sprintf("%d files copied, %d skipped", successCount, errorCount), errBuf.String(), source, target, operation)
	default:
		printReport("ERROR", fmt.Sprintf("0 files copied, %d skipped", errorCount), errBuf.String(), source, target, operation)
	}
}

func runSyncOne(source, target, filename, operation string) {
	src := filepath.Join(source, filename)
	dst := filepath.Join(target, filename)
	if err := syncFile(src, dst); err != nil {
		printReport("ERROR", "", fmt.Sprintf("File %s: %s", filename, err), source, target, operation)
		return
	}
	printReport("SUCCESS", fmt.Sprintf("File: %s", filename), "", source, target, operation)
}

func runDelete(source, target, filename, operation string) {
	dst := filepath.Join(target, filename)
	if err := os.Remove(dst); err != nil {
		printReport("ERROR", "", fmt.Sprintf("File %s: %s", filename, err), source, target, operation)
		return
	}
	printReport("SUCCESS", fmt.Sprintf("File: %s", filename), "", source, target, operation)
}

// syncFile copies src to dest byte for byte, creating dest's parent
// directory if it doesn't already exist.
func syncFile(src, dest string) error {
	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// printReport writes the fixed WORKER_REPORT line to stdout, which the
// supervisor reads over the child's stdout pipe. details carries the
// success/partial message; errors carries the accumulated per-file error
// text, reported in the details slot only when status is ERROR (spec.md
// §4.7).
func printReport(status, details, errs, source, target, operation string) {
	message := details
	if status == "ERROR" {
		message = errs
	}
	fmt.Printf("[%s] [WORKER_REPORT] [%s] [%s] [%d] [%s] [%s] [%s]\n",
		time.Now().Format(reportLayout), source, target, os.Getpid(), operation, status, message)
}
