// Package syncconfig parses the line-oriented configuration file shared by
// both engines (spec.md §6): one pair per line, `<source_dir> <target_dir>`
// for FSS or `<dir>@<host>:<port> <dir>@<host>:<port>` for NFS. The wire
// format is mandated byte-for-byte by the spec, so this is hand-rolled
// rather than routed through a serialization library (see DESIGN.md).
package syncconfig

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// FSSEntry is one parsed FSS config line: a local source directory mirrored
// into a local target directory.
type FSSEntry struct {
	SourceDir string
	TargetDir string
}

// NFSEntry is one parsed NFS config line: a remote source directory
// mirrored into a remote target directory, each addressed by host:port.
type NFSEntry struct {
	SourceDir  string
	SourceHost string
	SourcePort int
	TargetDir  string
	TargetHost string
	TargetPort int
}

// ParseFSSResult carries every successfully parsed entry alongside the
// lines that were malformed, since FSS tolerates and reports bad lines
// rather than aborting startup (spec.md §6).
type ParseFSSResult struct {
	Entries []FSSEntry
	Skipped []SkippedLine
}

// SkippedLine records a malformed configuration line and why it was
// rejected, in the order it appeared in the file.
type SkippedLine struct {
	LineNo int
	Text   string
	Reason string
}

// ParseFSS reads an FSS configuration file, preserving file order in
// Entries (spec.md §12 supplemented feature: startup order follows the
// config file, not a reversed incidental order). Blank and whitespace-only
// lines are ignored; malformed lines are collected in Skipped rather than
// aborting the parse.
func ParseFSS(path string) (ParseFSSResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ParseFSSResult{}, errors.Wrapf(err, "open config %q", path)
	}
	defer f.Close()

	var result ParseFSSResult
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			result.Skipped = append(result.Skipped, SkippedLine{lineNo, line, "expected exactly two fields"})
			continue
		}
		result.Entries = append(result.Entries, FSSEntry{SourceDir: fields[0], TargetDir: fields[1]})
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return result, errors.Wrapf(err, "read config %q", path)
	}
	return result, nil
}

// ParseNFS reads an NFS configuration file. Unlike ParseFSS, a malformed
// line aborts the whole parse (spec.md §6: "abort startup" for NFS).
func ParseNFS(path string) ([]NFSEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open config %q", path)
	}
	defer f.Close()

	var entries []NFSEntry
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, errors.Errorf("config %q line %d: expected exactly two fields", path, lineNo)
		}
		src, err := parseEndpoint(fields[0])
		if err != nil {
			return nil, errors.Wrapf(err, "config %q line %d: source endpoint", path, lineNo)
		}
		tgt, err := parseEndpoint(fields[1])
		if err != nil {
			return nil, errors.Wrapf(err, "config %q line %d: target endpoint", path, lineNo)
		}
		entries = append(entries, NFSEntry{
			SourceDir: src.dir, SourceHost: src.host, SourcePort: src.port,
			TargetDir: tgt.dir, TargetHost: tgt.host, TargetPort: tgt.port,
		})
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, errors.Wrapf(err, "read config %q", path)
	}
	return entries, nil
}

type endpoint struct {
	dir  string
	host string
	port int
}

// parseEndpoint splits `<dir>@<host>:<port>` into its three parts.
func parseEndpoint(token string) (endpoint, error) {
	dir, hostport, ok := strings.Cut(token, "@")
	if !ok || dir == "" {
		return endpoint{}, errors.Errorf("%q: expected <dir>@<host>:<port>", token)
	}
	host, portStr, ok := strings.Cut(hostport, ":")
	if !ok || host == "" {
		return endpoint{}, errors.Errorf("%q: expected <host>:<port> after '@'", token)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return endpoint{}, errors.Errorf("%q: port must be a positive integer", token)
	}
	return endpoint{dir: dir, host: host, port: port}, nil
}
