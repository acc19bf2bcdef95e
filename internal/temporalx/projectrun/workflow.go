package projectrun

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/roomforge-backend/internal/domain/project"
	"github.com/yungbote/roomforge-backend/internal/providers"
)

// historyLength reports the event count of the current run; tests replace it.
var historyLength = func(ctx workflow.Context) int {
	return workflow.GetInfo(ctx).GetCurrentHistoryLength()
}

type timerKind int

const (
	timerNone timerKind = iota
	timerInactivity
	timerPurge
)

type inflight struct {
	req    project.ActivityRequest
	future workflow.Future
	cancel workflow.CancelFunc
}

// runner owns the project for the lifetime of one workflow run. All fields are
// touched only from the workflow goroutine.
type runner struct {
	p          project.Project
	policy     Policy
	life       Lifecycle
	streak     FailureStreak
	lastSignal time.Time

	active     *inflight
	genRetried bool
	dirty      bool
	deleted    bool

	signals workflow.ReceiveChannel
	log     log.Logger
}

// Workflow is the durable owner of one project. It applies signals in arrival order,
// runs at most one activity at a time and purges the project after deletion or once
// it has been terminal for the purge delay.
func Workflow(ctx workflow.Context, in WorkflowInput) error {
	if strings.TrimSpace(in.Project.ID) == "" {
		return temporal.NewNonRetryableApplicationError("missing project id", string(providers.KindInvalidInput), nil)
	}
	r := &runner{
		p:          in.Project,
		policy:     in.Policy,
		life:       in.Policy.lifecycle(),
		streak:     in.Streak,
		lastSignal: in.LastSignalAt,
		signals:    workflow.GetSignalChannel(ctx, SignalName),
		log:        log.With(workflow.GetLogger(ctx), "project_id", in.Project.ID),
	}
	if r.lastSignal.IsZero() {
		r.lastSignal = workflow.Now(ctx)
	}
	if err := workflow.SetQueryHandler(ctx, QueryName, func() (project.Project, error) {
		return r.p.Clone(), nil
	}); err != nil {
		return err
	}
	return r.loop(ctx)
}

func (r *runner) loop(ctx workflow.Context) error {
	if r.p.PendingActivity != "" {
		// A continued run never carries work in flight; recover by forgetting it.
		r.p.PendingActivity = ""
	}
	r.sync(ctx)

	for {
		timerCtx, cancelTimer := workflow.WithCancel(ctx)
		fired := timerNone

		sel := workflow.NewSelector(ctx)
		sel.AddReceive(r.signals, func(c workflow.ReceiveChannel, _ bool) {
			var env project.Envelope
			c.Receive(ctx, &env)
			r.onSignal(ctx, env)
		})
		if act := r.active; act != nil {
			sel.AddFuture(act.future, func(f workflow.Future) {
				r.onResult(ctx, act, f)
			})
		}
		if d, kind := r.nextDeadline(ctx); kind != timerNone {
			sel.AddFuture(workflow.NewTimer(timerCtx, d), func(f workflow.Future) {
				if f.Get(ctx, nil) == nil {
					fired = kind
				}
			})
		}
		sel.Select(ctx)
		cancelTimer()

		switch fired {
		case timerInactivity:
			r.log.Info("Project inactive; abandoning", "step", r.p.Step)
			r.commit(project.Abandon(r.p, "inactive", fmt.Sprintf("no activity for %s", r.life.Inactivity), workflow.Now(ctx)))
		case timerPurge:
			r.purge(ctx)
			return nil
		}

		if r.deleted {
			r.purge(ctx)
			return nil
		}
		r.flush(ctx)

		if r.active == nil && historyLength(ctx) >= r.life.ContinueAsNewHistory {
			r.drain(ctx)
			if r.deleted {
				r.purge(ctx)
				return nil
			}
			r.flush(ctx)
			if r.active == nil {
				r.log.Info("Continuing as new", "history_length", historyLength(ctx))
				return workflow.NewContinueAsNewError(ctx, WorkflowName, WorkflowInput{
					Project:      r.p,
					Policy:       r.policy,
					LastSignalAt: r.lastSignal,
					Streak:       r.streak,
				})
			}
		}
	}
}

// nextDeadline picks the lifecycle timer for the current state. Busy projects wait
// on their activity instead.
func (r *runner) nextDeadline(ctx workflow.Context) (time.Duration, timerKind) {
	now := workflow.Now(ctx)
	if r.p.Step.Terminal() {
		base := r.lastSignal
		if r.p.TerminalAt != nil && r.p.TerminalAt.After(base) {
			base = *r.p.TerminalAt
		}
		return atLeast(base.Add(r.life.PurgeDelay).Sub(now)), timerPurge
	}
	if r.active != nil {
		return 0, timerNone
	}
	base := r.lastSignal
	if r.p.UpdatedAt.After(base) {
		base = r.p.UpdatedAt
	}
	return atLeast(base.Add(r.life.Inactivity).Sub(now)), timerInactivity
}

func atLeast(d time.Duration) time.Duration {
	if d < time.Millisecond {
		return time.Millisecond
	}
	return d
}

func (r *runner) onSignal(ctx workflow.Context, env project.Envelope) {
	now := workflow.Now(ctx)
	r.lastSignal = now

	sig, err := project.Decode(env)
	if err != nil {
		r.log.Warn("Malformed project signal", "type", env.Type, "error", err)
		r.commit(project.Malformed(r.p, err, now))
		return
	}

	next, eff := project.Apply(r.p, sig, now)
	switch eff.Outcome {
	case project.OutcomeApplied, project.OutcomeDeleted:
		r.log.Debug("Signal applied", "signal", sig.Type(), "step", next.Step)
	default:
		r.log.Info("Signal not applied", "signal", sig.Type(), "outcome", eff.Outcome.String(), "step", r.p.Step)
	}

	if eff.Cancel && r.active != nil {
		r.log.Info("Cancelling in-flight activity", "activity", r.active.req.Kind, "signal", sig.Type())
		r.active.cancel()
		r.active = nil
		r.genRetried = false
	}
	if eff.Outcome.Mutated() {
		r.commit(next)
	}
	if eff.Outcome == project.OutcomeDeleted {
		r.deleted = true
		return
	}
	if eff.Activity != nil {
		r.schedule(ctx, *eff.Activity)
	}
}

func (r *runner) schedule(ctx workflow.Context, req project.ActivityRequest) {
	actCtx, cancel := workflow.WithCancel(ctx)
	actCtx = workflow.WithActivityOptions(actCtx, r.policy.ActivityOptions(req.Kind))
	fut := workflow.ExecuteActivity(actCtx, string(req.Kind), r.activityInput(req))
	r.active = &inflight{req: req, future: fut, cancel: cancel}
}

func (r *runner) activityInput(req project.ActivityRequest) any {
	p := r.p
	switch req.Kind {
	case project.ActivityValidatePhoto:
		in := PhotoInput{ProjectID: p.ID}
		if req.Photo != nil {
			in.Photo = *req.Photo
		}
		return in
	case project.ActivityGenerateDesigns:
		return GenerateInput{
			ProjectID: p.ID,
			Photos:    append([]project.Photo{}, p.Photos...),
			Scan:      p.ScanData,
			Brief:     p.DesignBrief,
			Count:     project.RequestedOptions,
		}
	case project.ActivityEditImage:
		in := EditInput{ProjectID: p.ID, Number: len(p.RevisionHistory) + 1, Brief: p.DesignBrief}
		if req.Revision != nil {
			in.Revision = *req.Revision
		}
		return in
	case project.ActivityIntakeTurn:
		in := IntakeInput{
			ProjectID: p.ID,
			ChatKey:   p.ChatHistoryKey,
			Message:   req.Message,
			Opening:   req.Opening,
			FinalTurn: req.FinalTurn,
			Known:     p.DesignBrief,
		}
		if s := p.Intake; s != nil {
			in.Mode = s.Mode
			in.TurnsLeft = s.MaxTurns - s.TurnCount
			if !req.Opening {
				in.TurnsLeft--
			}
			if s.DraftBrief != nil {
				in.Known = s.DraftBrief
			}
		}
		return in
	case project.ActivityBuildShoppingList:
		in := ShoppingInput{ProjectID: p.ID, DesignKey: p.CurrentImage, Brief: p.DesignBrief}
		if p.ScanData != nil {
			dims := p.ScanData.Dimensions
			in.Dimensions = &dims
		}
		return in
	default:
		return nil
	}
}

func (r *runner) onResult(ctx workflow.Context, act *inflight, f workflow.Future) {
	if r.active != act {
		return
	}
	r.active = nil
	req := act.req
	now := workflow.Now(ctx)

	var (
		next project.Project
		ok   bool
		err  error
	)
	switch req.Kind {
	case project.ActivityValidatePhoto:
		var check project.PhotoCheck
		if err = f.Get(ctx, &check); err == nil {
			next, ok = project.CompletePhotoValidation(r.p, req, check, now)
		}
	case project.ActivityGenerateDesigns:
		var options []project.DesignOption
		if err = f.Get(ctx, &options); err == nil {
			if len(options) < project.MinViableOptions {
				if !r.genRetried {
					r.genRetried = true
					r.log.Warn("Generation returned too few options; retrying once", "options", len(options))
					r.schedule(ctx, req)
					return
				}
				err = temporal.NewApplicationError("generation returned no usable options", string(providers.KindTransient))
			} else {
				next, ok = project.CompleteGeneration(r.p, options, now)
			}
		}
		r.genRetried = false
	case project.ActivityEditImage:
		var key string
		if err = f.Get(ctx, &key); err == nil && req.Revision != nil {
			next, ok = project.CompleteEdit(r.p, *req.Revision, key, now)
		}
	case project.ActivityIntakeTurn:
		var res project.IntakeTurnResult
		if err = f.Get(ctx, &res); err == nil {
			next, ok = project.CompleteIntakeTurn(r.p, req, res, now)
		}
	case project.ActivityBuildShoppingList:
		var list project.ShoppingList
		if err = f.Get(ctx, &list); err == nil {
			next, ok = project.CompleteShopping(r.p, list, now)
		}
	default:
		err = temporal.NewNonRetryableApplicationError(fmt.Sprintf("unknown activity %s", req.Kind), string(providers.KindInvalidInput), nil)
	}

	if err != nil {
		if temporal.IsCanceledError(err) {
			return
		}
		r.fail(req, err, now)
		return
	}
	if !ok {
		r.log.Warn("Dropping activity result", "activity", req.Kind, "pending", r.p.PendingActivity)
		return
	}
	if r.streak.Activity == req.Kind {
		r.streak = FailureStreak{}
	}
	r.commit(next)
}

// fail records err on the project. Consecutive permanent failures of the same
// activity abandon the project.
func (r *runner) fail(req project.ActivityRequest, err error, now time.Time) {
	perr := projectError(err)
	next, ok := project.FailActivity(r.p, req, perr, now)
	if !ok {
		return
	}
	r.log.Warn("Activity failed", "activity", req.Kind, "code", perr.Code, "retryable", perr.Retryable, "error", err)
	if perr.Category == project.CategoryPermanent {
		if r.streak.Activity == req.Kind {
			r.streak.Count++
		} else {
			r.streak = FailureStreak{Activity: req.Kind, Count: 1}
		}
		if r.streak.Count >= r.life.MaxPermanentFailures {
			msg := fmt.Sprintf("%s failed %d times in a row", req.Kind, r.streak.Count)
			next = project.Abandon(next, "repeated_failures", msg, now)
			r.streak = FailureStreak{}
		}
	}
	r.commit(next)
}

func (r *runner) commit(p project.Project) {
	r.p = p
	r.dirty = true
}

func (r *runner) drain(ctx workflow.Context) {
	for {
		var env project.Envelope
		if !r.signals.ReceiveAsync(&env) {
			return
		}
		r.onSignal(ctx, env)
	}
}

func (r *runner) flush(ctx workflow.Context) {
	if !r.dirty {
		return
	}
	r.dirty = false
	r.sync(ctx)
}

// sync mirrors the committed state into the project index. Failures are logged; the
// workflow stays the source of truth.
func (r *runner) sync(ctx workflow.Context) {
	lctx := workflow.WithLocalActivityOptions(ctx, r.policy.LocalActivityOptions(project.ActivitySyncProjectRecord))
	err := workflow.ExecuteLocalActivity(lctx, string(project.ActivitySyncProjectRecord), SyncInput{Project: r.p}).Get(ctx, nil)
	if err != nil {
		r.log.Warn("Project index sync failed", "step", r.p.Step, "error", err)
	}
}

// purge cancels outstanding work and deletes every trace of the project. A failed
// purge is logged; the project never comes back.
func (r *runner) purge(ctx workflow.Context) {
	if r.active != nil {
		r.active.cancel()
		r.active = nil
	}
	in := PurgeInput{
		ProjectID: r.p.ID,
		Keys:      r.p.BlobKeys(),
		ChatKey:   project.ChatKey(r.p.ID),
	}
	actCtx := workflow.WithActivityOptions(ctx, r.policy.ActivityOptions(project.ActivityPurgeProject))
	var res PurgeResult
	if err := workflow.ExecuteActivity(actCtx, string(project.ActivityPurgeProject), in).Get(ctx, &res); err != nil {
		r.log.Error("Project purge failed", "step", r.p.Step, "error", err)
		return
	}
	r.log.Info("Project purged", "step", r.p.Step, "blobs", res.Blobs)
}
