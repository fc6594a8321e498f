package dataproto

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Server is the data-node side of the protocol: it answers LIST, PULL and
// PUSH commands against its local filesystem. cmd/datanode runs one Server
// so that the NFS manager's Client implementation has a real counterpart to
// exercise (spec.md §4.3 describes the wire format; the reference node
// implements the receiving half of it).
type Server struct {
	log *logrus.Logger
}

// NewServer creates a Server that logs connection activity to log.
func NewServer(log *logrus.Logger) *Server {
	return &Server{log: log}
}

// Serve accepts connections on ln until it returns an error (typically from
// ln.Close() during shutdown), handling each one in its own goroutine.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return errors.Wrap(err, "accept data node connection")
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	var pushFile *os.File
	defer func() {
		if pushFile != nil {
			pushFile.Close()
		}
	}()

	for {
		cmd, err := readToken(r, ' ')
		if err != nil {
			if err != io.EOF && s.log != nil {
				s.log.WithError(err).Debug("data node connection closed")
			}
			return
		}

		switch cmd {
		case "LIST":
			dir, err := r.ReadString('\n')
			if err != nil {
				return
			}
			s.handleList(conn, strings.TrimRight(dir, "\r\n"))
		case "PULL":
			path, err := r.ReadString('\n')
			if err != nil {
				return
			}
			s.handlePull(conn, strings.TrimRight(path, "\r\n"))
		case "PUSH":
			path, err := readToken(r, ' ')
			if err != nil {
				return
			}
			sizeTok, sawSpace, err := readPushSize(r)
			if err != nil {
				return
			}
			size, err := strconv.Atoi(sizeTok)
			if err != nil {
				if s.log != nil {
					s.log.WithError(err).WithField("path", path).Warn("malformed PUSH size")
				}
				continue
			}
			pushFile, err = s.handlePush(r, pushFile, path, size, sawSpace)
			if err != nil && s.log != nil {
				s.log.WithError(err).WithField("path", path).Warn("push chunk failed")
			}
		default:
			if s.log != nil {
				s.log.WithField("command", cmd).Warn("unrecognized data node command")
			}
			if _, err := r.ReadString('\n'); err != nil {
				return
			}
		}
	}
}

// readPushSize reads the decimal size field of a PUSH header. Per spec.md
// §4.3, `n > 0` is terminated by a single space with the raw payload
// immediately following; `n` = -1 or 0 carries no payload and is
// newline-terminated instead. The caller uses sawSpace to tell which framing
// applies.
func readPushSize(r *bufio.Reader) (token string, sawSpace bool, err error) {
	var b strings.Builder
	for {
		c, err := r.ReadByte()
		if err != nil {
			return "", false, err
		}
		switch c {
		case ' ':
			return b.String(), true, nil
		case '\n':
			return strings.TrimRight(b.String(), "\r"), false, nil
		default:
			b.WriteByte(c)
		}
	}
}

func (s *Server) handleList(conn net.Conn, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintln(conn, ".")
		return
	}
	for _, e := range entries {
		fmt.Fprintln(conn, e.Name())
	}
	fmt.Fprintln(conn, ".")
}

func (s *Server) handlePull(conn net.Conn, path string) {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(conn, "-1 %s\n", err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		fmt.Fprintf(conn, "-1 %s\n", err)
		return
	}
	fmt.Fprintf(conn, "%d ", info.Size())
	io.Copy(conn, f)
}

// handlePush applies one PUSH chunk, returning the (possibly newly opened,
// possibly now-closed) file handle for the connection to carry into the
// next chunk. size -1 truncates and opens path for writing; 0 closes the
// handle; any other size reads that many raw bytes from r and appends them.
// sawSpace reports whether the size field was space-terminated, which per
// spec.md §4.3 is only valid (and only expected) when size > 0.
func (s *Server) handlePush(r *bufio.Reader, current *os.File, path string, size int, sawSpace bool) (*os.File, error) {
	switch {
	case size < 0:
		if current != nil {
			current.Close()
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrapf(err, "create parent dir for %q", path)
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, errors.Wrapf(err, "open %q for push", path)
		}
		return f, nil
	case size == 0:
		if current != nil {
			err := current.Close()
			return nil, err
		}
		return nil, nil
	default:
		if !sawSpace {
			return current, errors.New("PUSH chunk size must be followed by a single space before the payload")
		}
		// The header's trailing space is already consumed by the caller;
		// the payload follows immediately as size raw bytes with no further
		// delimiter, so it must be read by declared length rather than
		// scanned for a newline.
		buf := make([]byte, size)
		if _, err := io.ReadFull(r, buf); err != nil {
			return current, errors.Wrap(err, "read PUSH chunk payload")
		}
		if current == nil {
			return current, errors.New("PUSH chunk received with no open file")
		}
		if _, err := current.Write(buf); err != nil {
			return current, errors.Wrapf(err, "write PUSH chunk to %q", path)
		}
		return current, nil
	}
}
