// Command datanode runs a data-node daemon: the remote filesystem
// endpoint the NFS manager's worker pool talks to over the Data-Node
// Protocol (C3), answering LIST, PULL and PUSH requests against its local
// filesystem (spec.md §4.3).
package main

import (
	"fmt"
	"net"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Vaggelis-Arg/FileSync-Systems/internal/dataproto"
)

var (
	listenAddr string
	rootDir    string
)

func main() {
	root := &cobra.Command{
		Use:   "datanode",
		Short: "Run a data-node daemon answering the LIST/PULL/PUSH protocol",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
	flags := root.Flags()
	flags.StringVarP(&listenAddr, "listen", "p", ":9500", "address to listen for data-node connections on")
	flags.StringVarP(&rootDir, "root", "r", ".", "working directory the data node serves paths relative to")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	if err := os.Chdir(rootDir); err != nil {
		return errors.Wrapf(err, "chdir to %q", rootDir)
	}

	log := logrus.New()
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	defer ln.Close()

	log.WithField("addr", ln.Addr().String()).Info("data node listening")
	srv := dataproto.NewServer(log)
	return srv.Serve(ln)
}
