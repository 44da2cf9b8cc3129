package main

import (
	"fmt"

	"github.com/pyropy/udfs/core/client"
	"github.com/urfave/cli/v2"
)

// connect reads the settings and dfc.conf and dials the nodes. Any error
// here is a configuration error and ends the command.
func connect(ctx *cli.Context) (*client.Client, error) {
	s, err := client.GetSettings()
	if err != nil {
		return nil, err
	}

	endpoints, err := client.ReadConfig(s.ConfigPath)
	if err != nil {
		return nil, err
	}

	return client.NewClient(ctx.Context, s, endpoints)
}

var listCmd = &cli.Command{
	Name:  "list",
	Usage: "List every file on the nodes and whether it can be fetched",
	Action: func(ctx *cli.Context) error {
		c, err := connect(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		entries, err := c.List(ctx.Context)
		if err != nil {
			return err
		}

		for _, entry := range entries {
			fmt.Fprintln(ctx.App.Writer, entry)
		}

		return nil
	},
}

var putCmd = &cli.Command{
	Name:      "put",
	Usage:     "Split files into chunks and store each chunk on two nodes",
	ArgsUsage: "<file>...",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() == 0 {
			return fmt.Errorf("usage: client put %s", ctx.Command.ArgsUsage)
		}

		c, err := connect(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		for _, path := range ctx.Args().Slice() {
			if err := c.Put(ctx.Context, path); err != nil {
				log.Debugw("put", "file", path, "error", err)
				fmt.Fprintf(ctx.App.Writer, "%s put failed\n", path)
			}
		}

		return nil
	},
}

var getCmd = &cli.Command{
	Name:      "get",
	Usage:     "Fetch files from the nodes into the output directory",
	ArgsUsage: "<file>...",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() == 0 {
			return fmt.Errorf("usage: client get %s", ctx.Command.ArgsUsage)
		}

		c, err := connect(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		for _, filename := range ctx.Args().Slice() {
			if err := c.Get(ctx.Context, filename); err != nil {
				log.Debugw("get", "file", filename, "error", err)
				fmt.Fprintf(ctx.App.Writer, "%s is incomplete\n", filename)
			}
		}

		return nil
	},
}
