package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/furiosa-ai/furiosa-client-go/internal/config"
	"github.com/furiosa-ai/furiosa-client-go/internal/logger"
	"github.com/furiosa-ai/furiosa-client-go/pkg/furiosa"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "furiosa: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := &cli{loadConfig: loadRuntime}
	c.newClient = func() (serviceClient, error) {
		return furiosa.New(
			furiosa.WithTimeout(c.cfg.RequestTimeout),
			furiosa.WithLogger(c.log),
		)
	}
	defer logger.Close()

	root := newRootCmd(c)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// loadRuntime reads the config and starts the logger.
func loadRuntime() (*config.Config, logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	logger.DebugObj("furiosa starting", "config", cfg)
	return cfg, log, nil
}
