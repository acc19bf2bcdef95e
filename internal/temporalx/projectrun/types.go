package projectrun

import (
	"time"

	"github.com/yungbote/roomforge-backend/internal/domain/project"
)

const (
	WorkflowName = "project_lifecycle"
	SignalName   = "project_signal"
	QueryName    = "project_state"
)

// WorkflowInput starts or continues a project workflow. Continue-as-new carries the
// committed state forward in the same shape.
type WorkflowInput struct {
	Project project.Project `json:"project"`
	Policy  Policy          `json:"policy"`

	// LastSignalAt is the workflow time the last signal arrived.
	LastSignalAt time.Time     `json:"lastSignalAt,omitempty"`
	Streak       FailureStreak `json:"streak"`
}

// FailureStreak counts consecutive permanent failures of one activity.
type FailureStreak struct {
	Activity project.ActivityKind `json:"activity,omitempty"`
	Count    int                  `json:"count"`
}

type PhotoInput struct {
	ProjectID string        `json:"projectId"`
	Photo     project.Photo `json:"photo"`
}

type GenerateInput struct {
	ProjectID string               `json:"projectId"`
	Photos    []project.Photo      `json:"photos"`
	Scan      *project.ScanData    `json:"scan,omitempty"`
	Brief     *project.DesignBrief `json:"brief,omitempty"`
	Count     int                  `json:"count"`
}

type EditInput struct {
	ProjectID string                  `json:"projectId"`
	Number    int                     `json:"number"`
	Revision  project.RevisionRequest `json:"revision"`
	Brief     *project.DesignBrief    `json:"brief,omitempty"`
}

type IntakeInput struct {
	ProjectID string               `json:"projectId"`
	ChatKey   string               `json:"chatKey"`
	Mode      project.IntakeMode   `json:"mode"`
	Message   string               `json:"message,omitempty"`
	Opening   bool                 `json:"opening,omitempty"`
	FinalTurn bool                 `json:"finalTurn,omitempty"`
	TurnsLeft int                  `json:"turnsLeft"`
	Known     *project.DesignBrief `json:"known,omitempty"`
}

type ShoppingInput struct {
	ProjectID  string                  `json:"projectId"`
	DesignKey  string                  `json:"designKey"`
	Brief      *project.DesignBrief    `json:"brief,omitempty"`
	Dimensions *project.RoomDimensions `json:"dimensions,omitempty"`
}

type PurgeInput struct {
	ProjectID string   `json:"projectId"`
	Keys      []string `json:"keys"`
	ChatKey   string   `json:"chatKey,omitempty"`
}

type PurgeResult struct {
	Blobs int `json:"blobs"`
}

// SyncInput is the slice of project state mirrored into the index row.
type SyncInput struct {
	Project project.Project `json:"project"`
}
