// Package providers declares the external AI collaborators the project activities
// call. Implementations live in subpackages.
package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/roomforge-backend/internal/chathistory"
	"github.com/yungbote/roomforge-backend/internal/domain/project"
)

// ErrorKind is the failure class of a provider call. The values double as Temporal
// application error types.
type ErrorKind string

const (
	KindTransient     ErrorKind = "Transient"
	KindContentPolicy ErrorKind = "ContentPolicy"
	KindAuth          ErrorKind = "Auth"
	KindInvalidInput  ErrorKind = "InvalidInput"
)

// Retryable reports whether repeating the call may succeed.
func (k ErrorKind) Retryable() bool {
	return k == KindTransient
}

type Error struct {
	Kind    ErrorKind
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s (status=%d): %s", e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf classifies err. Errors that carry no classification (timeouts, resets,
// refused connections) are transient.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransient
}

// ClassifyStatus maps an HTTP status and optional provider error code to a kind.
func ClassifyStatus(status int, code string) ErrorKind {
	switch {
	case code == "content_policy" || code == "safety":
		return KindContentPolicy
	case status == 429 || status == 408 || status >= 500:
		return KindTransient
	case status == 401 || status == 403:
		return KindAuth
	case status >= 400:
		return KindInvalidInput
	default:
		return KindTransient
	}
}

type Image struct {
	Key         string `json:"key,omitempty"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

type PhotoRequest struct {
	ProjectID string            `json:"projectId"`
	Type      project.PhotoType `json:"type"`
	Photo     Image             `json:"photo"`
}

type PhotoValidator interface {
	Validate(ctx context.Context, req PhotoRequest) (project.PhotoCheck, error)
}

type GenerateRequest struct {
	ProjectID   string                  `json:"projectId"`
	RoomPhotos  []Image                 `json:"roomPhotos"`
	Inspiration []Image                 `json:"inspiration,omitempty"`
	Notes       []string                `json:"notes,omitempty"`
	Brief       *project.DesignBrief    `json:"brief,omitempty"`
	Dimensions  *project.RoomDimensions `json:"dimensions,omitempty"`
	Count       int                     `json:"count"`
}

type GeneratedDesign struct {
	Image   Image  `json:"image"`
	Caption string `json:"caption"`
}

type EditRequest struct {
	ProjectID    string               `json:"projectId"`
	Base         Image                `json:"base"`
	Type         project.RevisionType `json:"type"`
	Instructions []string             `json:"instructions"`
	Annotations  []project.Annotation `json:"annotations,omitempty"`
	Brief        *project.DesignBrief `json:"brief,omitempty"`
}

// ImageStudio generates and edits room images.
type ImageStudio interface {
	Generate(ctx context.Context, req GenerateRequest) ([]GeneratedDesign, error)
	Edit(ctx context.Context, req EditRequest) (Image, error)
}

type TurnRequest struct {
	ProjectID string                `json:"projectId"`
	Mode      project.IntakeMode    `json:"mode"`
	History   []chathistory.Message `json:"history"`
	Message   string                `json:"message,omitempty"`
	Opening   bool                  `json:"opening,omitempty"`
	// FinalTurn obliges the agent to return a draft brief.
	FinalTurn bool                 `json:"finalTurn,omitempty"`
	TurnsLeft int                  `json:"turnsLeft"`
	Known     *project.DesignBrief `json:"known,omitempty"`
}

type IntakeAgent interface {
	Turn(ctx context.Context, req TurnRequest) (project.IntakeTurnResult, error)
}

type SearchRequest struct {
	ProjectID  string                  `json:"projectId"`
	Brief      *project.DesignBrief    `json:"brief,omitempty"`
	Design     Image                   `json:"design"`
	Dimensions *project.RoomDimensions `json:"dimensions,omitempty"`
	MaxItems   int                     `json:"maxItems"`
}

// ProductSearch turns an approved design into purchasable items.
type ProductSearch interface {
	Search(ctx context.Context, req SearchRequest) (project.ShoppingList, error)
}

// Set bundles one implementation of each collaborator.
type Set struct {
	Photos   PhotoValidator
	Studio   ImageStudio
	Intake   IntakeAgent
	Shopping ProductSearch
}

func (s Set) Validate() error {
	if s.Photos == nil || s.Studio == nil || s.Intake == nil || s.Shopping == nil {
		return fmt.Errorf("providers: incomplete set")
	}
	return nil
}
