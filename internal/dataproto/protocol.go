// Package dataproto implements the Data-Node Protocol (C3): the line+chunk
// TCP wire format the NFS manager speaks to remote data-node daemons, and
// the data-node side of that same protocol for cmd/datanode. The manager is
// always a client here — it dials out to a source or target host, it never
// accepts an inbound data-protocol connection (spec.md §4.3).
package dataproto

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ChunkSize is the number of file bytes carried per PUSH command, matching
// the fixed read buffer the original data-node uses for PULL (spec.md §4.3).
const ChunkSize = 1024

// ErrRemote wraps a "-1 <message>" error response the data node sent back
// for PULL.
var ErrRemote = errors.New("data node reported an error")

// Client is a single TCP connection to a data-node daemon, used to drive the
// LIST / PULL / PUSH exchanges for one task. The NFS worker pool opens one
// Client per source and one per target for the duration of a single file
// transfer (spec.md §4.4).
type Client struct {
	conn net.Conn
	r    *bufio.Reader
}

// Dial connects to a data-node daemon at addr ("host:port").
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial data node %q", addr)
	}
	return &Client{conn: conn, r: bufio.NewReader(conn)}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// SetDeadline forwards to the underlying connection's SetDeadline, used by
// callers that want a per-task timeout on top of ctx cancellation.
func (c *Client) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// List issues `LIST <dir>` and returns every name the data node reports
// before the terminating line containing exactly ".". Names are not
// filtered; the reference Server never sends "." or ".." entries.
func (c *Client) List(dir string) ([]string, error) {
	if _, err := fmt.Fprintf(c.conn, "LIST %s\n", dir); err != nil {
		return nil, errors.Wrap(err, "send LIST")
	}
	var names []string
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			return nil, errors.Wrap(err, "read LIST response")
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "." {
			return names, nil
		}
		names = append(names, line)
	}
}

// Pull issues `PULL <path>` and returns the file's full contents. On a
// remote-side error (file missing, unreadable, ...) it returns an error
// wrapping ErrRemote with the data node's message.
func (c *Client) Pull(path string) ([]byte, error) {
	if _, err := fmt.Fprintf(c.conn, "PULL %s\n", path); err != nil {
		return nil, errors.Wrap(err, "send PULL")
	}

	sizeTok, err := readToken(c.r, ' ')
	if err != nil {
		return nil, errors.Wrap(err, "read PULL size token")
	}
	size, err := strconv.ParseInt(sizeTok, 10, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "parse PULL size %q", sizeTok)
	}
	if size < 0 {
		msg, _ := c.r.ReadString('\n')
		return nil, errors.Wrapf(ErrRemote, "%s", strings.TrimRight(msg, "\r\n"))
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(c.r, data); err != nil {
		return nil, errors.Wrap(err, "read PULL payload")
	}
	return data, nil
}

// PushSession drives a single PUSH exchange: a truncating open, zero or more
// fixed-size chunks, then a closing zero-length chunk, mirroring the
// original manager's push loop (spec.md §4.4 steps 6-8).
type PushSession struct {
	c    *Client
	path string
}

// OpenPush sends the truncate-and-open chunk (`PUSH <path> -1`) that tells
// the data node to (re)create path for writing.
func (c *Client) OpenPush(path string) (*PushSession, error) {
	if _, err := fmt.Fprintf(c.conn, "PUSH %s -1\n", path); err != nil {
		return nil, errors.Wrap(err, "send PUSH truncate")
	}
	return &PushSession{c: c, path: path}, nil
}

// Chunk sends one PUSH data chunk. data must be non-empty; callers split
// payloads larger than ChunkSize into multiple Chunk calls. Per spec.md
// §4.3/§4.4, the header ends in a single space (not a newline) and the raw
// payload follows immediately after that space, framed by the declared
// length rather than any delimiter — header and payload are written as one
// Write so nothing else can interleave on the connection.
func (p *PushSession) Chunk(data []byte) error {
	if len(data) == 0 {
		return errors.New("dataproto: PUSH chunk must be non-empty, use Close to finish")
	}
	header := fmt.Sprintf("PUSH %s %d ", p.path, len(data))
	buf := make([]byte, 0, len(header)+len(data))
	buf = append(buf, header...)
	buf = append(buf, data...)
	if _, err := p.c.conn.Write(buf); err != nil {
		return errors.Wrap(err, "send PUSH chunk")
	}
	return nil
}

// Close sends the zero-length chunk (`PUSH <path> 0`) that tells the data
// node to flush and close the file.
func (p *PushSession) Close() error {
	if _, err := fmt.Fprintf(p.c.conn, "PUSH %s 0\n", p.path); err != nil {
		return errors.Wrap(err, "send PUSH close")
	}
	return nil
}

// readToken reads from r until delim (exclusive) and returns the accumulated
// bytes as a string; a newline before delim is not treated specially and is
// kept in the token. It is used to
// read the space-delimited size prefix of a PULL response without consuming
// the binary payload that immediately follows it.
func readToken(r *bufio.Reader, delim byte) (string, error) {
	var b strings.Builder
	for {
		c, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if c == delim {
			return b.String(), nil
		}
		b.WriteByte(c)
	}
}
