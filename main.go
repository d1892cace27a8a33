// gostunnel relays TCP connections while adding or removing TLS on one leg.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gostunnel/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "gostunnel: %v\n", err)
		os.Exit(1)
	}
}
