package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yungbote/roomforge-backend/internal/app"
	"github.com/yungbote/roomforge-backend/internal/platform/envutil"
)

func main() {
	envutil.LoadDotEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	role := app.Role{API: true, Worker: envutil.Bool("RUN_WORKER", false)}
	a, err := app.New(ctx, role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Start(ctx); err != nil {
		a.Log.Error("App start failed", "error", err)
		return
	}
	if err := a.Run(ctx); err != nil {
		a.Log.Error("Server failed", "error", err)
	}
}
