// Command fssconsole is the interactive client for fssmanager: it writes
// operator commands to the fss_in named pipe and prints whatever
// fssmanager writes back to fss_out, logging every command it sends
// (spec.md §6).
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func main() {
	var consoleLog string

	root := &cobra.Command{
		Use:   "fssconsole",
		Short: "Interactive console for the FSS manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(consoleLog)
		},
	}
	root.Flags().StringVarP(&consoleLog, "logfile", "l", "console.log", "path to the console command log")

	tail := &cobra.Command{
		Use:   "tail <report-log> [count]",
		Short: "Print the last lines of the domain sync report log",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			count := 20
			if len(args) == 2 {
				fmt.Sscanf(args[1], "%d", &count)
			}
			return runTail(args[0], count)
		},
	}
	root.AddCommand(tail)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runConsole(consoleLog string) error {
	in, err := os.OpenFile("fss_in", os.O_WRONLY, 0)
	if err != nil {
		return errors.Wrap(err, "open fss_in")
	}
	defer in.Close()

	out, err := os.OpenFile("fss_out", os.O_RDONLY, 0)
	if err != nil {
		return errors.Wrap(err, "open fss_out")
	}
	defer out.Close()

	done := make(chan struct{})
	go func() {
		scanner := bufio.NewScanner(out)
		for scanner.Scan() {
			line := scanner.Text()
			fmt.Println(line)
			if strings.Contains(line, "Manager shutdown complete") {
				close(done)
				return
			}
		}
	}()

	fmt.Print("> ")
	stdin := bufio.NewScanner(os.Stdin)
	for stdin.Scan() {
		command := stdin.Text()
		logCommand(consoleLog, command)
		if _, err := fmt.Fprintln(in, command); err != nil {
			return errors.Wrap(err, "write to fss_in")
		}
		select {
		case <-done:
			return nil
		default:
		}
		fmt.Print("> ")
	}
	return stdin.Err()
}

func logCommand(path, command string) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "[%s] Command: %s\n", time.Now().Format("2006-01-02 15:04:05"), command)
}

// runTail prints the last count lines of the structured report log,
// wrapping each one with a REPORT: prefix so it's visually distinct from
// console command echoes.
func runTail(path string, count int) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %q", path)
	}
	defer f.Close()

	ring := make([]string, 0, count)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		ring = append(ring, scanner.Text())
		if len(ring) > count {
			ring = ring[1:]
		}
	}
	for _, line := range ring {
		fmt.Printf("REPORT: %s\n", line)
	}
	return scanner.Err()
}
