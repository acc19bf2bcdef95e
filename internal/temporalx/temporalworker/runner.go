package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/yungbote/roomforge-backend/internal/platform/envutil"
	"github.com/yungbote/roomforge-backend/internal/platform/logger"
	"github.com/yungbote/roomforge-backend/internal/temporalx"
	"github.com/yungbote/roomforge-backend/internal/temporalx/projectrun"
)

// Runner polls the project task queue.
type Runner struct {
	log  *logger.Logger
	cfg  temporalx.Config
	tc   temporalsdkclient.Client
	acts *projectrun.Activities
}

func NewRunner(log *logger.Logger, cfg temporalx.Config, tc temporalsdkclient.Client, acts *projectrun.Activities) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if acts == nil || acts.Bucket == nil || acts.Chat == nil || acts.Records == nil {
		return nil, fmt.Errorf("temporal worker missing deps")
	}
	if err := acts.Providers.Validate(); err != nil {
		return nil, err
	}
	return &Runner{log: log.With("component", "TemporalWorker"), cfg: cfg, tc: tc, acts: acts}, nil
}

// Start launches the worker and returns once it is polling. The worker stops when ctx
// is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	if r == nil || r.tc == nil {
		return fmt.Errorf("temporal worker not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := r.cfg
	r.log.Info("Starting Temporal worker", "address", cfg.Address, "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue)

	maxWait := envutil.Seconds("TEMPORAL_WORKER_START_MAX_WAIT_SECONDS", 60)
	backoff := envutil.Millis("TEMPORAL_WORKER_START_BACKOFF_MS", 250)
	backoffMax := envutil.Millis("TEMPORAL_WORKER_START_BACKOFF_MAX_MS", 5000)
	deadline := time.Now().Add(maxWait)

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		w := r.newWorker()
		startErr := w.Start()
		if startErr == nil {
			go func() {
				<-ctx.Done()
				w.Stop()
			}()
			r.log.Info("Temporal worker started", "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue, "attempts", attempt)
			return nil
		}
		w.Stop()

		var nfe *serviceerror.NamespaceNotFound
		notFound := errors.As(startErr, &nfe)
		if notFound && cfg.AutoRegisterNamespace {
			if err := temporalx.EnsureNamespace(ctx, cfg, r.log); err != nil {
				r.log.Warn("Temporal namespace ensure failed", "namespace", cfg.Namespace, "error", err)
			}
		}

		if maxWait <= 0 || time.Now().After(deadline) {
			if notFound {
				return fmt.Errorf("temporal namespace not found (namespace=%s): %w", cfg.Namespace, startErr)
			}
			return startErr
		}
		r.log.Warn("Temporal worker failed to start; retrying", "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue, "attempt", attempt, "error", startErr)
		if sleep := envutil.ClampBackoff(backoff, backoffMax, attempt); sleep > 0 {
			time.Sleep(sleep)
		}
	}
}

func (r *Runner) newWorker() worker.Worker {
	concurrency := envutil.Int("WORKER_CONCURRENCY", 4)
	if concurrency < 1 {
		concurrency = 1
	}
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:      concurrency,
		MaxConcurrentLocalActivityExecutionSize: concurrency,
		MaxConcurrentWorkflowTaskExecutionSize:  concurrency,
	})
	projectrun.Register(w, r.acts)
	return w
}
