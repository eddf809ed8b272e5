// lilgames - terminal client for turn-based board games played over a
// Socket.IO game server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"lilgames/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "lilgames: %v\n", err)
		os.Exit(1)
	}
}
