package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/pyropy/udfs/core/node"
	"github.com/pyropy/udfs/lib/logger"
	"github.com/urfave/cli/v2"
)

var log, _ = logger.New("node")

func main() {
	if err := run(os.Args); err != nil {
		log.Fatalln("startup", "ERROR", err)
	}
}

func run(args []string) error {
	app := &cli.App{
		Name:      "node",
		Usage:     "serve file chunks from a storage directory",
		ArgsUsage: "<storage-directory> <port>",
		Action:    serve,
	}

	return app.Run(args)
}

func serve(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return fmt.Errorf("usage: %s %s", ctx.App.Name, ctx.App.ArgsUsage)
	}

	cfg, err := node.GetConfig()
	if err != nil {
		log.Errorw("startup", "error", "config error")
		return err
	}

	port, err := strconv.Atoi(ctx.Args().Get(1))
	if err != nil {
		return fmt.Errorf("%w: port %q", node.ErrBadConfig, ctx.Args().Get(1))
	}
	cfg.Chunks.Path = ctx.Args().Get(0)
	cfg.Server.Port = port

	server, err := node.NewServer(cfg)
	if err != nil {
		log.Errorw("startup", "error", "node setup failed")
		return err
	}

	l, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		log.Errorw("startup", "error", "net listen failed")
		return err
	}

	sctx, cancel := context.WithCancel(ctx.Context)
	done := make(chan error, 1)
	go func() { done <- server.Serve(sctx, l) }()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		log.Infow("shutdown", "status", "node stopping", "signal", sig.String(), "address", l.Addr().String())
		cancel()
		return <-done
	case err := <-done:
		cancel()
		return err
	}
}
