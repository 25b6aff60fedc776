// Package main is the entry point for the langrpc CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"langrpc/cmd/internal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := internal.Run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, internal.Describe(err))
		os.Exit(1)
	}
}
