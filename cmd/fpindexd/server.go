package main

import (
	stderrors "errors"
	"log"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/urfave/cli.v1"

	"github.com/fpindex/fpindex/ferrors"
	"github.com/fpindex/fpindex/multiindex"
	"github.com/fpindex/fpindex/server"
)

var serverCommand = cli.Command{
	Name:  "server",
	Usage: "Runs the index server",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "host, H", Value: "", Usage: "address on which to listen"},
		cli.IntFlag{Name: "port, p", Value: 7765, Usage: "port number on which to listen"},
		cli.StringFlag{Name: "dbpath, d", Usage: "path to the directory holding all indexes"},
	},
	Action: runServer,
}

func runServer(c *cli.Context) error {
	var opener multiindex.Opener
	path := c.String("dbpath")
	if path == "" {
		opener = multiindex.NewMemOpener()
	} else {
		opener = multiindex.DiskOpener{Root: path}
	}

	log.Printf("opening indexes under %v", path)
	mi, err := multiindex.Open(opener)
	if err != nil {
		return errors.Wrap(err, "failed to open indexes")
	}
	defer mi.Close()

	addr := c.String("host") + ":" + strconv.Itoa(c.Int("port"))
	log.Printf("listening on %v", addr)
	return server.ListenAndServe(addr, mi)
}

// exitCodeFor maps a top-level command failure to the exit codes defined by
// spec §6: 0 clean shutdown, 1 fatal error, 2 corrupt index.
func exitCodeFor(err error) int {
	var ci *ferrors.CorruptIndexError
	if stderrors.As(err, &ci) {
		return 2
	}
	return 1
}
