// Command nfsconsole is the interactive client for nfsmanager: it sends
// operator commands over a TCP connection and prints every response line
// up to and including the terminating "END" line (spec.md §6).
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func main() {
	var addr string

	root := &cobra.Command{
		Use:   "nfsconsole",
		Short: "Interactive console for the NFS manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(addr)
		},
	}
	root.Flags().StringVarP(&addr, "addr", "a", "127.0.0.1:9000", "nfsmanager console address")

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

func runConsole(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "dial %q", addr)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	stdin := bufio.NewScanner(os.Stdin)

	fmt.Print("> ")
	for stdin.Scan() {
		command := stdin.Text()
		if _, err := fmt.Fprintln(conn, command); err != nil {
			return errors.Wrap(err, "send command")
		}

		shutdown, err := printUntilEnd(reader)
		if err != nil {
			return errors.Wrap(err, "read response")
		}
		if shutdown {
			return nil
		}
		fmt.Print("> ")
	}
	return stdin.Err()
}

// printUntilEnd prints every response line until the literal "END" line
// every nfsmanager response is terminated with (spec.md §4.6), and reports
// whether the response was a shutdown acknowledgement so the caller can
// stop prompting for further input.
func printUntilEnd(reader *bufio.Reader) (shutdown bool, err error) {
	for {
		line, err := reader.ReadString('\n')
		if line == "" && err != nil {
			return shutdown, err
		}
		trimmed := trimNewline(line)
		if trimmed == "END" {
			return shutdown, nil
		}
		fmt.Println(trimmed)
		if strings.Contains(trimmed, "Manager shutdown complete") {
			shutdown = true
		}
		if err != nil {
			return shutdown, err
		}
	}
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
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
