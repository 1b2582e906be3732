package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"darkroom/internal/config"
	"darkroom/internal/logging"
)

func main() {
	flags := pflag.NewFlagSet("darkroomd", pflag.ExitOnError)
	configPath := flags.StringP("config", "c", "", "Configuration file path")
	bind := flags.String("api-bind", "", "Override the HTTP API bind address")
	_ = flags.Parse(os.Args[1:])

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *bind != "" {
		cfg.Daemon.APIBind = *bind
	}

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintln(os.Stderr, "darkroomd:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	rt, err := bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.daemon.Start(ctx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-ctx.Done()
	rt.logger.Info("darkroomd shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}
