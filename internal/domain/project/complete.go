package project

import (
	"time"
)

// PhotoCheck is the verdict of photo validation.
type PhotoCheck struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// IntakeTurnResult is one assistant turn of the intake conversation.
type IntakeTurnResult struct {
	Reply      AssistantReply `json:"reply"`
	DraftBrief *DesignBrief   `json:"draftBrief,omitempty"`
	Done       bool           `json:"done"`
}

// The Complete* functions fold an activity result into the project. Each returns
// false without touching p when the result no longer matches the in-flight activity,
// which happens when start_over or delete cancelled it.

func CompletePhotoValidation(p Project, req ActivityRequest, check PhotoCheck, now time.Time) (Project, bool) {
	if !pending(p, ActivityValidatePhoto) || req.Photo == nil {
		return p, false
	}
	out := p.Clone()
	out.PendingActivity = ""
	out.UpdatedAt = now
	if !check.Accepted {
		out.dropPhoto(req.Photo.ID)
		reason := check.Reason
		if reason == "" {
			reason = "photo was rejected"
		}
		out.Error = clientError("photo_rejected", reason)
	}
	return out, true
}

func CompleteIntakeTurn(p Project, req ActivityRequest, res IntakeTurnResult, now time.Time) (Project, bool) {
	if !pending(p, ActivityIntakeTurn) || p.Intake == nil {
		return p, false
	}
	out := p.Clone()
	out.PendingActivity = ""
	out.UpdatedAt = now
	s := out.Intake
	if !req.Opening {
		s.TurnCount++
	}
	reply := res.Reply
	reply.QuickReplies = append([]string(nil), res.Reply.QuickReplies...)
	s.LastReply = &reply
	if res.DraftBrief != nil {
		s.DraftBrief = res.DraftBrief.Clone()
	}
	s.Done = res.Done || s.BudgetSpent()
	return out, true
}

// CompleteGeneration records the generated options. Fewer than MinViableOptions is
// not a completion; the caller decides whether to retry.
func CompleteGeneration(p Project, options []DesignOption, now time.Time) (Project, bool) {
	if !pending(p, ActivityGenerateDesigns) || len(options) < MinViableOptions {
		return p, false
	}
	if len(options) > RequestedOptions {
		options = options[:RequestedOptions]
	}
	out := p.Clone()
	out.PendingActivity = ""
	out.UpdatedAt = now
	out.GeneratedOptions = append([]DesignOption{}, options...)
	out.Step = StepSelection
	return out, true
}

// CompleteEdit appends a revision and advances the iteration count. The fifth
// revision moves the project to approval.
func CompleteEdit(p Project, req RevisionRequest, revisedImage string, now time.Time) (Project, bool) {
	if !pending(p, ActivityEditImage) || revisedImage == "" {
		return p, false
	}
	out := p.Clone()
	out.PendingActivity = ""
	out.UpdatedAt = now
	out.RevisionHistory = append(out.RevisionHistory, Revision{
		Number:       len(out.RevisionHistory) + 1,
		Type:         req.Type,
		BaseImage:    req.BaseImage,
		RevisedImage: revisedImage,
		Instructions: append([]string{}, req.Instructions...),
	})
	out.CurrentImage = revisedImage
	out.IterationCount++
	if out.IterationCount >= MaxIterations {
		out.Step = StepApproval
	}
	return out, true
}

func CompleteShopping(p Project, list ShoppingList, now time.Time) (Project, bool) {
	if !pending(p, ActivityBuildShoppingList) {
		return p, false
	}
	out := p.Clone()
	out.PendingActivity = ""
	out.UpdatedAt = now
	list.Items = append([]ShoppingItem{}, list.Items...)
	list.Unmatched = append([]string(nil), list.Unmatched...)
	out.ShoppingList = &list
	out.Step = StepCompleted
	out.TerminalAt = &now
	return out, true
}

// FailActivity records perr for the in-flight activity. A photo whose validation
// failed is dropped so the client can upload it again.
func FailActivity(p Project, req ActivityRequest, perr ProjectError, now time.Time) (Project, bool) {
	if !pending(p, req.Kind) {
		return p, false
	}
	out := p.Clone()
	out.PendingActivity = ""
	out.UpdatedAt = now
	if req.Kind == ActivityValidatePhoto && req.Photo != nil {
		out.dropPhoto(req.Photo.ID)
	}
	perr.Activity = req.Kind
	out.Error = &perr
	return out, true
}

// Abandon moves a non-terminal project to abandoned with a lifecycle error.
func Abandon(p Project, code, message string, now time.Time) Project {
	if p.Step.Terminal() {
		return p
	}
	out := p.Clone()
	out.Step = StepAbandoned
	out.PendingActivity = ""
	out.TerminalAt = &now
	out.UpdatedAt = now
	out.Error = &ProjectError{Message: message, Category: CategoryLifecycle, Code: code}
	return out
}

func pending(p Project, kind ActivityKind) bool {
	return kind != "" && p.PendingActivity == kind && !p.Step.Terminal()
}

func (p *Project) dropPhoto(id string) {
	if i := p.photoIndex(id); i >= 0 {
		p.Photos = append(p.Photos[:i], p.Photos[i+1:]...)
	}
}
