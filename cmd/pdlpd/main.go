package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	path := flag.String("config", "cmd/pdlpd/config.toml", "pdlpd config path (empty for defaults)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *path); err != nil {
		fmt.Fprintf(os.Stderr, "pdlpd: %v\n", err)
		os.Exit(1)
	}
}
