package project

const (
	MaxIterations = 5

	MinRoomPhotos        = 2
	MaxRoomPhotos        = 4
	MaxInspirationPhotos = 3
	MaxPhotoNoteLength   = 200

	MaxIntakeMessageLength = 2000
	MaxFeedbackLength      = 1000
	MaxAnnotations         = 5
	MaxInstructionLength   = 500
	MaxBriefListLength     = 20

	// RequestedOptions is how many designs a generation asks for; MinViableOptions is
	// how many must come back for the step to advance.
	RequestedOptions = 2
	MinViableOptions = 1
)

// IntakeMode selects the depth of the intake conversation.
type IntakeMode string

const (
	IntakeModeQuick IntakeMode = "quick"
	IntakeModeFull  IntakeMode = "full"
	IntakeModeOpen  IntakeMode = "open"
)

var intakeTurnBudget = map[IntakeMode]int{
	IntakeModeQuick: 3,
	IntakeModeFull:  10,
	IntakeModeOpen:  15,
}

// MaxTurns is the number of user messages allowed in mode, or 0 for an unknown mode.
func (m IntakeMode) MaxTurns() int {
	return intakeTurnBudget[m]
}

func (m IntakeMode) Valid() bool {
	return m.MaxTurns() > 0
}
