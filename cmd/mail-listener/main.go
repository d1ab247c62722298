package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ocrr/internal/app"
	"ocrr/internal/config"
	"ocrr/internal/listener"
	"ocrr/internal/logging"
)

func main() {
	cfg, err := config.Load()
	must(err)
	log := logging.New(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	must(err)
	defer a.Close()

	conn, err := listener.NewConnector(ctx, cfg.MailListenerProvider, cfg, log)
	must(err)

	svc := listener.NewService(a.DB, cfg, cfg.MailListenerProvider, conn, a.Processor, a.Exports, log)
	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
