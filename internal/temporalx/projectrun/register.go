package projectrun

import (
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/roomforge-backend/internal/domain/project"
)

// Registrar is satisfied by worker.Worker and the SDK test environment.
type Registrar interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

// Register wires the project workflow and every activity it schedules by name.
func Register(r Registrar, acts *Activities) {
	r.RegisterWorkflowWithOptions(Workflow, workflow.RegisterOptions{Name: WorkflowName})
	for name, fn := range acts.byName() {
		r.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: string(name)})
	}
}

func (a *Activities) byName() map[project.ActivityKind]any {
	return map[project.ActivityKind]any{
		project.ActivityValidatePhoto:     a.ValidatePhoto,
		project.ActivityGenerateDesigns:   a.GenerateDesigns,
		project.ActivityEditImage:         a.EditImage,
		project.ActivityIntakeTurn:        a.IntakeTurn,
		project.ActivityBuildShoppingList: a.BuildShoppingList,
		project.ActivityPurgeProject:      a.PurgeProject,
		project.ActivitySyncProjectRecord: a.SyncProjectRecord,
	}
}
