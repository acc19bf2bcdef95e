package project

// Step is the lifecycle stage of a project. Non-terminal steps are totally ordered.
type Step string

const (
	StepPhotoUpload Step = "photo_upload"
	StepScan        Step = "scan"
	StepIntake      Step = "intake"
	StepGeneration  Step = "generation"
	StepSelection   Step = "selection"
	StepIteration   Step = "iteration"
	StepApproval    Step = "approval"
	StepShopping    Step = "shopping"
	StepCompleted   Step = "completed"
	StepAbandoned   Step = "abandoned"
	StepCancelled   Step = "cancelled"
)

var stepOrder = map[Step]int{
	StepPhotoUpload: 0,
	StepScan:        1,
	StepIntake:      2,
	StepGeneration:  3,
	StepSelection:   4,
	StepIteration:   5,
	StepApproval:    6,
	StepShopping:    7,
	StepCompleted:   8,
	StepAbandoned:   8,
	StepCancelled:   8,
}

// AllSteps lists every step in lifecycle order.
func AllSteps() []Step {
	return []Step{
		StepPhotoUpload, StepScan, StepIntake, StepGeneration, StepSelection,
		StepIteration, StepApproval, StepShopping, StepCompleted, StepAbandoned, StepCancelled,
	}
}

func (s Step) Valid() bool {
	_, ok := stepOrder[s]
	return ok
}

// Order is the position of s in the forward order; terminal steps share the last slot.
func (s Step) Order() int {
	if o, ok := stepOrder[s]; ok {
		return o
	}
	return -1
}

func (s Step) Terminal() bool {
	return s == StepCompleted || s == StepAbandoned || s == StepCancelled
}

func (s Step) After(other Step) bool {
	return s.Order() > other.Order()
}

// AsyncStep reports whether entering s requires an activity result to leave it.
func (s Step) AsyncStep() bool {
	return s == StepGeneration || s == StepShopping
}
