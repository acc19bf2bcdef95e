package projectrun

import (
	"context"
	"errors"
	"fmt"
	"strings"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/roomforge-backend/internal/domain/project"
)

// Engine is the gateway's handle on project workflows.
type Engine struct {
	tc        temporalsdkclient.Client
	taskQueue string
	policy    Policy
}

func NewEngine(tc temporalsdkclient.Client, taskQueue string, policy Policy) (*Engine, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	tq := strings.TrimSpace(taskQueue)
	if tq == "" {
		return nil, fmt.Errorf("missing temporal task queue")
	}
	return &Engine{tc: tc, taskQueue: tq, policy: policy}, nil
}

// Start launches the workflow that owns p. Starting a project that already has a
// workflow is not an error.
func (e *Engine) Start(ctx context.Context, p project.Project) error {
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                    project.WorkflowID(p.ID),
		TaskQueue:             e.taskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}
	_, err := e.tc.ExecuteWorkflow(ctx, opts, WorkflowName, WorkflowInput{Project: p, Policy: e.policy})
	if err == nil {
		return nil
	}
	var started *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &started) {
		return nil
	}
	return fmt.Errorf("start project workflow %s: %w", p.ID, err)
}

// Snapshot queries the current project state.
func (e *Engine) Snapshot(ctx context.Context, id string) (project.Project, error) {
	var p project.Project
	resp, err := e.tc.QueryWorkflow(ctx, project.WorkflowID(id), "", QueryName)
	if err != nil {
		return p, mapNotFound(err)
	}
	if err := resp.Get(&p); err != nil {
		return p, fmt.Errorf("decode project %s: %w", id, err)
	}
	return p, nil
}

// Signal delivers sig to the project's workflow. Delivery is fire-and-forget; the
// outcome shows up in the next snapshot.
func (e *Engine) Signal(ctx context.Context, id string, sig project.Signal) error {
	env, err := project.Encode(sig)
	if err != nil {
		return err
	}
	if err := e.tc.SignalWorkflow(ctx, project.WorkflowID(id), "", SignalName, env); err != nil {
		return mapNotFound(err)
	}
	return nil
}

func mapNotFound(err error) error {
	var nf *serviceerror.NotFound
	if errors.As(err, &nf) {
		return fmt.Errorf("%w: %s", project.ErrNotFound, nf.Error())
	}
	return err
}
