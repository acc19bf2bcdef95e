package project

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// ProjectRecord is the queryable index row kept next to the workflow. The workflow
// remains the source of truth; the row serves ownership checks, listings and 404s
// after purge.
type ProjectRecord struct {
	ID             string         `gorm:"column:id;primaryKey" json:"id"`
	OwnerID        string         `gorm:"column:owner_id;index" json:"owner_id,omitempty"`
	WorkflowID     string         `gorm:"column:workflow_id;not null;uniqueIndex" json:"workflow_id"`
	Step           string         `gorm:"column:step;not null;index" json:"step"`
	IterationCount int            `gorm:"column:iteration_count;not null;default:0" json:"iteration_count"`
	ErrorCode      string         `gorm:"column:error_code" json:"error_code,omitempty"`
	Summary        datatypes.JSON `gorm:"column:summary;type:jsonb" json:"summary"`
	TerminalAt     *time.Time     `gorm:"column:terminal_at;index" json:"terminal_at,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;index" json:"updated_at"`
}

func (ProjectRecord) TableName() string { return "project_record" }

// Summary is the small denormalized view stored on the index row.
type Summary struct {
	Photos       int    `json:"photos"`
	HasScan      bool   `json:"hasScan"`
	RoomType     string `json:"roomType,omitempty"`
	Options      int    `json:"options"`
	CurrentImage string `json:"currentImage,omitempty"`
	Approved     bool   `json:"approved"`
	ItemCount    int    `json:"itemCount"`
	TotalCents   int64  `json:"totalCents"`
}

func (p Project) Summary() Summary {
	s := Summary{
		Photos:       len(p.Photos),
		HasScan:      p.ScanData != nil,
		Options:      len(p.GeneratedOptions),
		CurrentImage: p.CurrentImage,
		Approved:     p.Approved,
	}
	if p.DesignBrief != nil {
		s.RoomType = p.DesignBrief.RoomType
	}
	if p.ShoppingList != nil {
		s.ItemCount = len(p.ShoppingList.Items)
		s.TotalCents = p.ShoppingList.TotalCents
	}
	return s
}

// WorkflowID is the Temporal workflow id owning project id.
func WorkflowID(id string) string {
	return "project-" + id
}

// Record builds the index row mirroring p.
func (p Project) Record() (*ProjectRecord, error) {
	summary, err := json.Marshal(p.Summary())
	if err != nil {
		return nil, err
	}
	rec := &ProjectRecord{
		ID:             p.ID,
		OwnerID:        p.OwnerID,
		WorkflowID:     WorkflowID(p.ID),
		Step:           string(p.Step),
		IterationCount: p.IterationCount,
		Summary:        datatypes.JSON(summary),
		TerminalAt:     p.TerminalAt,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
	if p.Error != nil {
		rec.ErrorCode = p.Error.Code
	}
	return rec, nil
}
