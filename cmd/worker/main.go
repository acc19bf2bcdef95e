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

	a, err := app.New(ctx, app.Role{Worker: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init worker: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Start(ctx); err != nil {
		a.Log.Error("Worker start failed", "error", err)
		return
	}
	a.Log.Info("Worker running")
	_ = a.Run(ctx)
	a.Log.Info("Worker stopped")
}
