package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pyropy/udfs/lib/logger"
	"github.com/urfave/cli/v2"
)

var log, _ = logger.New("client")

func main() {
	if err := run(os.Args, os.Stdout); err != nil {
		log.Fatalln("client", "ERROR", err)
	}
}

// run executes one invocation. Per-file results are written to out.
func run(args []string, out io.Writer) error {
	app := &cli.App{
		Name:  "client",
		Usage: "store and fetch files on the four storage nodes",
		Commands: []*cli.Command{
			listCmd,
			putCmd,
			getCmd,
		},
		Writer: out,
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() == 0 {
				return fmt.Errorf("usage: %s <list|put|get> [filename...]", ctx.App.Name)
			}
			return fmt.Errorf("unknown command %q", ctx.Args().First())
		},
	}

	return app.Run(args)
}
