package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"FeedSentinel/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := app.NewRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil && !errors.Is(err, app.ErrPartial) {
		fmt.Fprintln(os.Stderr, "feedsentinel:", err)
	}
	os.Exit(app.ExitCode(err))
}
