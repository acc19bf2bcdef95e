package project

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Outcome classifies what Apply did with a signal.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeNoop
	OutcomeRejected
	OutcomeInvalid
	OutcomeBusy
	OutcomeAbsorbed
	OutcomeDeleted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeNoop:
		return "noop"
	case OutcomeRejected:
		return "rejected"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeBusy:
		return "busy"
	case OutcomeAbsorbed:
		return "absorbed"
	case OutcomeDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Mutated reports whether the returned project differs from the input.
func (o Outcome) Mutated() bool {
	return o == OutcomeApplied || o == OutcomeRejected || o == OutcomeInvalid || o == OutcomeDeleted || o == OutcomeBusy
}

// Effect tells the caller what to do after a signal has been applied.
type Effect struct {
	Outcome Outcome
	// Activity is the single unit of work to schedule, if any.
	Activity *ActivityRequest
	// Cancel asks the caller to cancel the activity that was in flight.
	Cancel bool
	// Err describes why the signal did not apply. For rejected and invalid signals it
	// is also recorded on the project.
	Err *ProjectError
}

const (
	CodeWrongStep          = "wrong_step"
	CodeActivityInProgress = "activity_in_progress"
	CodeTerminal           = "project_terminal"
)

var errNoop = errors.New("noop")

type rule struct {
	from []Step
	// idempotentAfter makes the signal a no-op once the project is past every from step.
	idempotentAfter bool
	apply           func(p *Project, sig Signal, now time.Time) (*ActivityRequest, error)
}

func (r rule) allows(s Step) bool {
	for _, f := range r.from {
		if f == s {
			return true
		}
	}
	return false
}

func (r rule) passed(s Step) bool {
	if !r.idempotentAfter || s.Terminal() {
		return false
	}
	for _, f := range r.from {
		if !s.After(f) {
			return false
		}
	}
	return true
}

var nonTerminal = []Step{
	StepPhotoUpload, StepScan, StepIntake, StepGeneration,
	StepSelection, StepIteration, StepApproval, StepShopping,
}

var rules = map[SignalType]rule{
	SignalUploadPhoto:          {from: []Step{StepPhotoUpload}, apply: applyUploadPhoto},
	SignalRemovePhoto:          {from: []Step{StepPhotoUpload}, apply: applyRemovePhoto},
	SignalConfirmPhotos:        {from: []Step{StepPhotoUpload}, idempotentAfter: true, apply: applyConfirmPhotos},
	SignalUploadScan:           {from: []Step{StepScan}, idempotentAfter: true, apply: applyUploadScan},
	SignalSkipScan:             {from: []Step{StepScan}, idempotentAfter: true, apply: applySkipScan},
	SignalStartIntake:          {from: []Step{StepIntake}, idempotentAfter: true, apply: applyStartIntake},
	SignalSendIntakeMessage:    {from: []Step{StepIntake}, apply: applySendIntakeMessage},
	SignalConfirmIntake:        {from: []Step{StepIntake}, idempotentAfter: true, apply: applyConfirmIntake},
	SignalSkipIntake:           {from: []Step{StepIntake}, idempotentAfter: true, apply: applySkipIntake},
	SignalSelectOption:         {from: []Step{StepSelection}, idempotentAfter: true, apply: applySelectOption},
	SignalSubmitAnnotationEdit: {from: []Step{StepIteration}, idempotentAfter: true, apply: applyAnnotationEdit},
	SignalSubmitTextFeedback:   {from: []Step{StepIteration}, idempotentAfter: true, apply: applyTextFeedback},
	SignalApprove:              {from: []Step{StepIteration, StepApproval}, idempotentAfter: true, apply: applyApprove},
	SignalStartOver:            {from: nonTerminal, apply: applyStartOver},
	SignalRetry:                {from: nonTerminal, apply: applyRetry},
}

// Apply evaluates sig against p and returns the next project state. It never mutates
// p: rule functions work on a clone that is discarded when validation fails, so a
// rejected signal leaves every field but Error untouched.
func Apply(p Project, sig Signal, now time.Time) (Project, Effect) {
	if sig == nil {
		return p, Effect{Outcome: OutcomeRejected, Err: clientError("unknown_signal", "signal is empty")}
	}

	if _, ok := sig.(Delete); ok {
		out := p.Clone()
		eff := Effect{Outcome: OutcomeDeleted, Cancel: out.PendingActivity != ""}
		out.PendingActivity = ""
		if !out.Step.Terminal() {
			out.Step = StepCancelled
			out.TerminalAt = &now
		}
		out.UpdatedAt = now
		return out, eff
	}

	if p.Step.Terminal() {
		return p, Effect{Outcome: OutcomeAbsorbed, Err: &ProjectError{
			Message:  fmt.Sprintf("project is %s", p.Step),
			Category: CategoryLifecycle,
			Code:     CodeTerminal,
		}}
	}

	r, ok := rules[sig.Type()]
	if !ok {
		return p, Effect{Outcome: OutcomeRejected, Err: clientError("unknown_signal", fmt.Sprintf("unknown signal %q", sig.Type()))}
	}

	if r.passed(p.Step) {
		return p, Effect{Outcome: OutcomeNoop}
	}

	_, startOver := sig.(StartOver)
	if p.PendingActivity != "" && !startOver {
		// The dropped signal is recorded so a client that raced the gateway sees it.
		perr := &ProjectError{
			Message:   fmt.Sprintf("%s was dropped: %s is still running", sig.Type(), p.PendingActivity),
			Retryable: true,
			Category:  CategoryTransient,
			Code:      CodeActivityInProgress,
			Activity:  p.PendingActivity,
		}
		out := p.Clone()
		out.Error = perr
		out.UpdatedAt = now
		return out, Effect{Outcome: OutcomeBusy, Err: perr}
	}

	if !r.allows(p.Step) {
		perr := clientError(CodeWrongStep, fmt.Sprintf("%s is not accepted in step %s", sig.Type(), p.Step))
		out := p.Clone()
		out.Error = perr
		out.UpdatedAt = now
		return out, Effect{Outcome: OutcomeRejected, Err: perr}
	}

	next := p.Clone()
	req, err := r.apply(&next, sig, now)
	if errors.Is(err, errNoop) {
		return p, Effect{Outcome: OutcomeNoop}
	}
	if err != nil {
		var ve *ValidationError
		perr := clientError("invalid_signal", err.Error())
		if errors.As(err, &ve) {
			perr = clientError(ve.Code, ve.Message)
		}
		out := p.Clone()
		out.Error = perr
		out.UpdatedAt = now
		return out, Effect{Outcome: OutcomeInvalid, Err: perr}
	}

	next.Error = nil
	next.UpdatedAt = now
	if req != nil {
		next.PendingActivity = req.Kind
	}
	return next, Effect{Outcome: OutcomeApplied, Activity: req, Cancel: startOver && p.PendingActivity != ""}
}

// Evaluate is Apply without the resulting state, for callers that only need to know
// how a signal would be received.
func Evaluate(p Project, sig Signal, now time.Time) Effect {
	_, eff := Apply(p, sig, now)
	return eff
}

func applyUploadPhoto(p *Project, sig Signal, _ time.Time) (*ActivityRequest, error) {
	ph := sig.(UploadPhoto).Photo
	if strings.TrimSpace(ph.ID) == "" {
		return nil, invalid("invalid_photo", "photo id is required")
	}
	if !ph.Type.Valid() {
		return nil, invalid("invalid_photo_type", "photo type must be room or inspiration, got %q", ph.Type)
	}
	if !OwnsKey(p.ID, ph.StorageKey) {
		return nil, invalid("invalid_storage_key", "photo storage key must live under %s", Prefix(p.ID))
	}
	if p.photoIndex(ph.ID) >= 0 {
		return nil, invalid("duplicate_photo", "photo %s already uploaded", ph.ID)
	}
	if utf8.RuneCountInString(ph.Note) > MaxPhotoNoteLength {
		return nil, invalid("note_too_long", "photo note exceeds %d characters", MaxPhotoNoteLength)
	}
	switch ph.Type {
	case PhotoTypeRoom:
		if p.countPhotos(PhotoTypeRoom) >= MaxRoomPhotos {
			return nil, invalid("too_many_photos", "at most %d room photos allowed", MaxRoomPhotos)
		}
	case PhotoTypeInspiration:
		if p.countPhotos(PhotoTypeInspiration) >= MaxInspirationPhotos {
			return nil, invalid("too_many_photos", "at most %d inspiration photos allowed", MaxInspirationPhotos)
		}
	}
	p.Photos = append(p.Photos, ph)
	return &ActivityRequest{Kind: ActivityValidatePhoto, Photo: &ph}, nil
}

func applyRemovePhoto(p *Project, sig Signal, _ time.Time) (*ActivityRequest, error) {
	id := sig.(RemovePhoto).PhotoID
	i := p.photoIndex(id)
	if i < 0 {
		return nil, invalid("photo_not_found", "photo %s not found", id)
	}
	p.Photos = append(p.Photos[:i], p.Photos[i+1:]...)
	return nil, nil
}

func applyConfirmPhotos(p *Project, _ Signal, _ time.Time) (*ActivityRequest, error) {
	if n := p.RoomPhotoCount(); n < MinRoomPhotos {
		return nil, invalid("not_enough_photos", "at least %d room photos required, have %d", MinRoomPhotos, n)
	}
	p.Step = StepScan
	return nil, nil
}

func applyUploadScan(p *Project, sig Signal, _ time.Time) (*ActivityRequest, error) {
	scan := sig.(UploadScan).Scan
	d := scan.Dimensions
	if d.WidthM <= 0 || d.LengthM <= 0 || d.HeightM <= 0 {
		return nil, invalid("invalid_dimensions", "room dimensions must be positive")
	}
	if !OwnsKey(p.ID, scan.StorageKey) {
		return nil, invalid("invalid_storage_key", "scan storage key must live under %s", Prefix(p.ID))
	}
	p.ScanData = &scan
	p.Step = StepIntake
	return nil, nil
}

func applySkipScan(p *Project, _ Signal, _ time.Time) (*ActivityRequest, error) {
	p.Step = StepIntake
	return nil, nil
}

func applyStartIntake(p *Project, sig Signal, _ time.Time) (*ActivityRequest, error) {
	if p.Intake != nil {
		return nil, errNoop
	}
	mode := sig.(StartIntake).Mode
	if mode == "" {
		mode = IntakeModeQuick
	}
	if !mode.Valid() {
		return nil, invalid("invalid_intake_mode", "unknown intake mode %q", mode)
	}
	p.Intake = &IntakeSession{Mode: mode, MaxTurns: mode.MaxTurns()}
	p.ChatHistoryKey = ChatKey(p.ID)
	return &ActivityRequest{Kind: ActivityIntakeTurn, Opening: true}, nil
}

func applySendIntakeMessage(p *Project, sig Signal, _ time.Time) (*ActivityRequest, error) {
	s := p.Intake
	if s == nil {
		return nil, invalid("intake_not_started", "start the intake before sending messages")
	}
	if s.Done || s.BudgetSpent() {
		return nil, invalid("intake_budget_spent", "intake allows %d messages; confirm or skip the brief", s.MaxTurns)
	}
	msg := strings.TrimSpace(sig.(SendIntakeMessage).Message)
	if msg == "" {
		return nil, invalid("empty_message", "message is required")
	}
	if utf8.RuneCountInString(msg) > MaxIntakeMessageLength {
		return nil, invalid("message_too_long", "message exceeds %d characters", MaxIntakeMessageLength)
	}
	return &ActivityRequest{
		Kind:      ActivityIntakeTurn,
		Message:   msg,
		FinalTurn: s.TurnCount+1 >= s.MaxTurns,
	}, nil
}

func applyConfirmIntake(p *Project, sig Signal, _ time.Time) (*ActivityRequest, error) {
	brief := sig.(ConfirmIntake).Brief
	if brief == nil && p.Intake != nil {
		brief = p.Intake.DraftBrief
	}
	if brief == nil {
		return nil, invalid("brief_missing", "no design brief to confirm")
	}
	if err := ValidateBrief(*brief); err != nil {
		return nil, err
	}
	p.DesignBrief = brief.Clone()
	return enterGeneration(p), nil
}

func applySkipIntake(p *Project, sig Signal, _ time.Time) (*ActivityRequest, error) {
	if brief := sig.(SkipIntake).Brief; brief != nil {
		if err := ValidateBrief(*brief); err != nil {
			return nil, err
		}
		p.DesignBrief = brief.Clone()
	}
	return enterGeneration(p), nil
}

func enterGeneration(p *Project) *ActivityRequest {
	if p.Intake != nil {
		p.Intake.Done = true
	}
	p.Step = StepGeneration
	return &ActivityRequest{Kind: ActivityGenerateDesigns}
}

func applySelectOption(p *Project, sig Signal, _ time.Time) (*ActivityRequest, error) {
	idx := sig.(SelectOption).Index
	if idx < 0 || idx >= len(p.GeneratedOptions) {
		return nil, invalid("invalid_option_index", "option index %d out of range [0,%d)", idx, len(p.GeneratedOptions))
	}
	p.SelectedOption = &idx
	p.CurrentImage = p.GeneratedOptions[idx].ImageKey
	p.Step = StepIteration
	return nil, nil
}

func applyAnnotationEdit(p *Project, sig Signal, _ time.Time) (*ActivityRequest, error) {
	if capIterations(p) {
		return nil, nil
	}
	anns := sig.(SubmitAnnotationEdit).Annotations
	if err := ValidateAnnotations(anns); err != nil {
		return nil, err
	}
	instructions := make([]string, 0, len(anns))
	for _, a := range anns {
		instructions = append(instructions, strings.TrimSpace(a.Instruction))
	}
	return &ActivityRequest{
		Kind: ActivityEditImage,
		Revision: &RevisionRequest{
			Type:         RevisionAnnotation,
			BaseImage:    p.CurrentImage,
			Instructions: instructions,
			Annotations:  append([]Annotation(nil), anns...),
		},
	}, nil
}

func applyTextFeedback(p *Project, sig Signal, _ time.Time) (*ActivityRequest, error) {
	if capIterations(p) {
		return nil, nil
	}
	fb := strings.TrimSpace(sig.(SubmitTextFeedback).Feedback)
	if fb == "" {
		return nil, invalid("empty_feedback", "feedback is required")
	}
	if utf8.RuneCountInString(fb) > MaxFeedbackLength {
		return nil, invalid("feedback_too_long", "feedback exceeds %d characters", MaxFeedbackLength)
	}
	return &ActivityRequest{
		Kind: ActivityEditImage,
		Revision: &RevisionRequest{
			Type:         RevisionFeedback,
			BaseImage:    p.CurrentImage,
			Instructions: []string{fb},
		},
	}, nil
}

// capIterations forces approval once the revision budget is used up.
func capIterations(p *Project) bool {
	if p.IterationCount < MaxIterations {
		return false
	}
	p.Step = StepApproval
	return true
}

// applyApprove enters approval and hands straight on to shopping, since approval
// itself has no work. An early approve from iteration takes the same path, so no
// snapshot ever rests in approval after an approve.
func applyApprove(p *Project, _ Signal, _ time.Time) (*ActivityRequest, error) {
	p.Approved = true
	p.Step = StepShopping
	return &ActivityRequest{Kind: ActivityBuildShoppingList}, nil
}

// applyStartOver rewinds to intake. Photos, scan and brief survive.
func applyStartOver(p *Project, _ Signal, _ time.Time) (*ActivityRequest, error) {
	p.Step = StepIntake
	p.GeneratedOptions = []DesignOption{}
	p.SelectedOption = nil
	p.CurrentImage = ""
	p.RevisionHistory = []Revision{}
	p.IterationCount = 0
	p.Approved = false
	p.ShoppingList = nil
	p.ChatHistoryKey = ""
	p.Intake = nil
	p.PendingActivity = ""
	return nil, nil
}

func applyRetry(p *Project, _ Signal, _ time.Time) (*ActivityRequest, error) {
	if req := missingResult(p); req != nil {
		return req, nil
	}
	if p.Error == nil {
		return nil, errNoop
	}
	return nil, nil
}

func missingResult(p *Project) *ActivityRequest {
	switch p.Step {
	case StepGeneration:
		if len(p.GeneratedOptions) == 0 {
			return &ActivityRequest{Kind: ActivityGenerateDesigns}
		}
	case StepShopping:
		if p.ShoppingList == nil {
			return &ActivityRequest{Kind: ActivityBuildShoppingList}
		}
	}
	return nil
}

var budgetTiers = map[string]bool{"": true, "low": true, "medium": true, "high": true, "luxury": true}

// ValidateBrief checks a design brief supplied by the client or drafted by the agent.
func ValidateBrief(b DesignBrief) error {
	if strings.TrimSpace(b.RoomType) == "" {
		return invalid("invalid_brief", "brief roomType is required")
	}
	if !budgetTiers[strings.ToLower(b.BudgetTier)] {
		return invalid("invalid_brief", "unknown budget tier %q", b.BudgetTier)
	}
	lists := map[string][]string{
		"styles": b.Styles, "colors": b.Colors, "materials": b.Materials,
		"keep": b.Keep, "avoid": b.Avoid, "painPoints": b.PainPoints,
	}
	for name, l := range lists {
		if len(l) > MaxBriefListLength {
			return invalid("invalid_brief", "brief %s has more than %d entries", name, MaxBriefListLength)
		}
	}
	return nil
}

func ValidateAnnotations(anns []Annotation) error {
	if len(anns) == 0 {
		return invalid("invalid_annotations", "at least one annotation is required")
	}
	if len(anns) > MaxAnnotations {
		return invalid("invalid_annotations", "at most %d annotations allowed", MaxAnnotations)
	}
	seen := make(map[int]bool, len(anns))
	for _, a := range anns {
		if seen[a.RegionID] {
			return invalid("invalid_annotations", "region %d listed twice", a.RegionID)
		}
		seen[a.RegionID] = true
		if a.X < 0 || a.X > 1 || a.Y < 0 || a.Y > 1 {
			return invalid("invalid_annotations", "region %d lies outside the image", a.RegionID)
		}
		if a.Radius <= 0 || a.Radius > 1 {
			return invalid("invalid_annotations", "region %d radius must be in (0,1]", a.RegionID)
		}
		instr := strings.TrimSpace(a.Instruction)
		if instr == "" {
			return invalid("invalid_annotations", "region %d has no instruction", a.RegionID)
		}
		if utf8.RuneCountInString(instr) > MaxInstructionLength {
			return invalid("invalid_annotations", "region %d instruction exceeds %d characters", a.RegionID, MaxInstructionLength)
		}
	}
	return nil
}

// Malformed records a signal that could not be decoded. Terminal projects are left
// untouched.
func Malformed(p Project, err error, now time.Time) Project {
	if p.Step.Terminal() || err == nil {
		return p
	}
	out := p.Clone()
	out.Error = clientError("invalid_signal", err.Error())
	out.UpdatedAt = now
	return out
}
