package project

import (
	"encoding/json"
	"fmt"
)

type SignalType string

const (
	SignalUploadPhoto          SignalType = "upload_photo"
	SignalRemovePhoto          SignalType = "remove_photo"
	SignalConfirmPhotos        SignalType = "confirm_photos"
	SignalUploadScan           SignalType = "upload_scan"
	SignalSkipScan             SignalType = "skip_scan"
	SignalStartIntake          SignalType = "start_intake"
	SignalSendIntakeMessage    SignalType = "send_intake_message"
	SignalConfirmIntake        SignalType = "confirm_intake"
	SignalSkipIntake           SignalType = "skip_intake"
	SignalSelectOption         SignalType = "select_option"
	SignalSubmitAnnotationEdit SignalType = "submit_annotation_edit"
	SignalSubmitTextFeedback   SignalType = "submit_text_feedback"
	SignalApprove              SignalType = "approve"
	SignalStartOver            SignalType = "start_over"
	SignalRetry                SignalType = "retry"
	SignalDelete               SignalType = "delete"
)

// Signal is the closed set of events a project accepts. The unexported marker keeps
// the set sealed to this package.
type Signal interface {
	Type() SignalType
	isSignal()
}

type UploadPhoto struct {
	Photo Photo `json:"photo"`
}

type RemovePhoto struct {
	PhotoID string `json:"photoId"`
}

type ConfirmPhotos struct{}

type UploadScan struct {
	Scan ScanData `json:"scan"`
}

type SkipScan struct{}

type StartIntake struct {
	Mode IntakeMode `json:"mode"`
}

type SendIntakeMessage struct {
	Message string `json:"message"`
}

type ConfirmIntake struct {
	Brief *DesignBrief `json:"brief,omitempty"`
}

type SkipIntake struct {
	Brief *DesignBrief `json:"brief,omitempty"`
}

type SelectOption struct {
	Index int `json:"index"`
}

type SubmitAnnotationEdit struct {
	Annotations []Annotation `json:"annotations"`
}

type SubmitTextFeedback struct {
	Feedback string `json:"feedback"`
}

type Approve struct{}

type StartOver struct{}

type Retry struct{}

type Delete struct{}

func (UploadPhoto) Type() SignalType          { return SignalUploadPhoto }
func (RemovePhoto) Type() SignalType          { return SignalRemovePhoto }
func (ConfirmPhotos) Type() SignalType        { return SignalConfirmPhotos }
func (UploadScan) Type() SignalType           { return SignalUploadScan }
func (SkipScan) Type() SignalType             { return SignalSkipScan }
func (StartIntake) Type() SignalType          { return SignalStartIntake }
func (SendIntakeMessage) Type() SignalType    { return SignalSendIntakeMessage }
func (ConfirmIntake) Type() SignalType        { return SignalConfirmIntake }
func (SkipIntake) Type() SignalType           { return SignalSkipIntake }
func (SelectOption) Type() SignalType         { return SignalSelectOption }
func (SubmitAnnotationEdit) Type() SignalType { return SignalSubmitAnnotationEdit }
func (SubmitTextFeedback) Type() SignalType   { return SignalSubmitTextFeedback }
func (Approve) Type() SignalType              { return SignalApprove }
func (StartOver) Type() SignalType            { return SignalStartOver }
func (Retry) Type() SignalType                { return SignalRetry }
func (Delete) Type() SignalType               { return SignalDelete }

func (UploadPhoto) isSignal()          {}
func (RemovePhoto) isSignal()          {}
func (ConfirmPhotos) isSignal()        {}
func (UploadScan) isSignal()           {}
func (SkipScan) isSignal()             {}
func (StartIntake) isSignal()          {}
func (SendIntakeMessage) isSignal()    {}
func (ConfirmIntake) isSignal()        {}
func (SkipIntake) isSignal()           {}
func (SelectOption) isSignal()         {}
func (SubmitAnnotationEdit) isSignal() {}
func (SubmitTextFeedback) isSignal()   {}
func (Approve) isSignal()              {}
func (StartOver) isSignal()            {}
func (Retry) isSignal()                {}
func (Delete) isSignal()               {}

// AllSignalTypes lists every signal variant.
func AllSignalTypes() []SignalType {
	return []SignalType{
		SignalUploadPhoto, SignalRemovePhoto, SignalConfirmPhotos, SignalUploadScan, SignalSkipScan,
		SignalStartIntake, SignalSendIntakeMessage, SignalConfirmIntake, SignalSkipIntake,
		SignalSelectOption, SignalSubmitAnnotationEdit, SignalSubmitTextFeedback, SignalApprove,
		SignalStartOver, SignalRetry, SignalDelete,
	}
}

// Envelope is the wire form of a Signal carried on the workflow signal channel.
type Envelope struct {
	Type    SignalType      `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func Encode(sig Signal) (Envelope, error) {
	if sig == nil {
		return Envelope{}, fmt.Errorf("encode signal: nil signal")
	}
	raw, err := json.Marshal(sig)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode signal %s: %w", sig.Type(), err)
	}
	return Envelope{Type: sig.Type(), Payload: raw}, nil
}

func Decode(env Envelope) (Signal, error) {
	switch env.Type {
	case SignalUploadPhoto:
		return decodeAs[UploadPhoto](env)
	case SignalRemovePhoto:
		return decodeAs[RemovePhoto](env)
	case SignalConfirmPhotos:
		return decodeAs[ConfirmPhotos](env)
	case SignalUploadScan:
		return decodeAs[UploadScan](env)
	case SignalSkipScan:
		return decodeAs[SkipScan](env)
	case SignalStartIntake:
		return decodeAs[StartIntake](env)
	case SignalSendIntakeMessage:
		return decodeAs[SendIntakeMessage](env)
	case SignalConfirmIntake:
		return decodeAs[ConfirmIntake](env)
	case SignalSkipIntake:
		return decodeAs[SkipIntake](env)
	case SignalSelectOption:
		return decodeAs[SelectOption](env)
	case SignalSubmitAnnotationEdit:
		return decodeAs[SubmitAnnotationEdit](env)
	case SignalSubmitTextFeedback:
		return decodeAs[SubmitTextFeedback](env)
	case SignalApprove:
		return decodeAs[Approve](env)
	case SignalStartOver:
		return decodeAs[StartOver](env)
	case SignalRetry:
		return decodeAs[Retry](env)
	case SignalDelete:
		return decodeAs[Delete](env)
	default:
		return nil, fmt.Errorf("decode signal: unknown type %q", env.Type)
	}
}

func decodeAs[T Signal](env Envelope) (Signal, error) {
	var out T
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(env.Payload, &out); err != nil {
		return nil, fmt.Errorf("decode signal %s: %w", env.Type, err)
	}
	return out, nil
}
