package project

// ActivityKind names a unit of external work. The values double as the registered
// Temporal activity names.
type ActivityKind string

const (
	ActivityValidatePhoto     ActivityKind = "validate_photo"
	ActivityGenerateDesigns   ActivityKind = "generate_designs"
	ActivityEditImage         ActivityKind = "edit_image"
	ActivityIntakeTurn        ActivityKind = "intake_turn"
	ActivityBuildShoppingList ActivityKind = "build_shopping_list"
	ActivityPurgeProject      ActivityKind = "purge_project"
	ActivitySyncProjectRecord ActivityKind = "sync_project_record"
)

// ActivityRequest is what a transition asks the workflow to run next. Only the fields
// relevant to Kind are set.
type ActivityRequest struct {
	Kind ActivityKind `json:"kind"`

	Photo *Photo `json:"photo,omitempty"`

	Message   string `json:"message,omitempty"`
	Opening   bool   `json:"opening,omitempty"`
	FinalTurn bool   `json:"finalTurn,omitempty"`

	Revision *RevisionRequest `json:"revision,omitempty"`
}

type RevisionRequest struct {
	Type         RevisionType `json:"type"`
	BaseImage    string       `json:"baseImage"`
	Instructions []string     `json:"instructions"`
	Annotations  []Annotation `json:"annotations,omitempty"`
}
