package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"Storefront/internal/storectl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := storectl.Execute(ctx, os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "storectl:", err)
		stop()
		os.Exit(1)
	}
}
