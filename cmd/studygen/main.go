package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yungbote/neurobridge-studygen/internal/studygen/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("failed to initialize studygen: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		fmt.Printf("studygen exited: %v\n", err)
		os.Exit(1)
	}
}
