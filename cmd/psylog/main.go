package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/psylog/internal/app"
	"github.com/dmitrijs2005/psylog/internal/cli"
	"github.com/dmitrijs2005/psylog/internal/config"
	"github.com/dmitrijs2005/psylog/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := logging.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)

	root := cli.NewRootCmd(func(ctx context.Context) (*app.App, error) {
		return app.New(ctx, cfg, log)
	}, os.Stdin)
	root.SetOut(os.Stdout)

	code := cli.Execute(ctx, root)
	stop()
	os.Exit(code)
}
