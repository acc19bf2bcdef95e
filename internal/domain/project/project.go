package project

import (
	"time"
)

type PhotoType string

const (
	PhotoTypeRoom        PhotoType = "room"
	PhotoTypeInspiration PhotoType = "inspiration"
)

func (t PhotoType) Valid() bool {
	return t == PhotoTypeRoom || t == PhotoTypeInspiration
}

type Photo struct {
	ID         string    `json:"id"`
	StorageKey string    `json:"storageKey"`
	Type       PhotoType `json:"type"`
	Note       string    `json:"note,omitempty"`
}

type RoomDimensions struct {
	WidthM  float64 `json:"widthM"`
	LengthM float64 `json:"lengthM"`
	HeightM float64 `json:"heightM"`
}

func (d RoomDimensions) FloorAreaM2() float64 {
	return d.WidthM * d.LengthM
}

type ScanData struct {
	StorageKey string         `json:"storageKey"`
	Dimensions RoomDimensions `json:"dimensions"`
}

// DesignBrief is the structured outcome of the intake conversation.
type DesignBrief struct {
	RoomType       string   `json:"roomType"`
	Styles         []string `json:"styles,omitempty"`
	Colors         []string `json:"colors,omitempty"`
	Materials      []string `json:"materials,omitempty"`
	BudgetTier     string   `json:"budgetTier,omitempty"`
	Keep           []string `json:"keep,omitempty"`
	Avoid          []string `json:"avoid,omitempty"`
	PainPoints     []string `json:"painPoints,omitempty"`
	LifestyleNotes string   `json:"lifestyleNotes,omitempty"`
}

type DesignOption struct {
	ImageKey string `json:"imageKey"`
	Caption  string `json:"caption"`
}

type RevisionType string

const (
	RevisionAnnotation RevisionType = "annotation"
	RevisionFeedback   RevisionType = "feedback"
)

type Revision struct {
	Number       int          `json:"number"`
	Type         RevisionType `json:"type"`
	BaseImage    string       `json:"baseImage"`
	RevisedImage string       `json:"revisedImage"`
	Instructions []string     `json:"instructions"`
}

// Annotation marks a circular region of the current image, in normalized coordinates.
type Annotation struct {
	RegionID    int     `json:"regionId"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Radius      float64 `json:"radius"`
	Instruction string  `json:"instruction"`
}

type ShoppingItem struct {
	Name       string  `json:"name"`
	Category   string  `json:"category"`
	Retailer   string  `json:"retailer,omitempty"`
	URL        string  `json:"url"`
	ImageURL   string  `json:"imageUrl,omitempty"`
	PriceCents int64   `json:"priceCents"`
	Score      float64 `json:"score"`
	Rationale  string  `json:"rationale,omitempty"`
}

type ShoppingList struct {
	Items      []ShoppingItem `json:"items"`
	TotalCents int64          `json:"totalCents"`
	Currency   string         `json:"currency"`
	Unmatched  []string       `json:"unmatched,omitempty"`
}

type AssistantReply struct {
	Text         string   `json:"text"`
	QuickReplies []string `json:"quickReplies,omitempty"`
}

// IntakeSession tracks the bounded intake conversation. Only counters and the latest
// reply live here; the transcript sits behind the chat history store.
type IntakeSession struct {
	Mode       IntakeMode      `json:"mode"`
	TurnCount  int             `json:"turnCount"`
	MaxTurns   int             `json:"maxTurns"`
	LastReply  *AssistantReply `json:"lastReply,omitempty"`
	DraftBrief *DesignBrief    `json:"draftBrief,omitempty"`
	Done       bool            `json:"done"`
}

func (s *IntakeSession) BudgetSpent() bool {
	return s != nil && s.TurnCount >= s.MaxTurns
}

// Project is the root aggregate held by a project's workflow.
type Project struct {
	ID               string         `json:"id"`
	OwnerID          string         `json:"ownerId,omitempty"`
	Step             Step           `json:"step"`
	Photos           []Photo        `json:"photos"`
	ScanData         *ScanData      `json:"scanData"`
	DesignBrief      *DesignBrief   `json:"designBrief"`
	GeneratedOptions []DesignOption `json:"generatedOptions"`
	SelectedOption   *int           `json:"selectedOption"`
	CurrentImage     string         `json:"currentImage"`
	RevisionHistory  []Revision     `json:"revisionHistory"`
	IterationCount   int            `json:"iterationCount"`
	ShoppingList     *ShoppingList  `json:"shoppingList"`
	Approved         bool           `json:"approved"`
	Error            *ProjectError  `json:"error"`
	ChatHistoryKey   string         `json:"chatHistoryKey"`

	Intake          *IntakeSession `json:"intake,omitempty"`
	PendingActivity ActivityKind   `json:"pendingActivity,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	TerminalAt      *time.Time     `json:"terminalAt,omitempty"`
}

// New returns an empty project waiting for photos.
func New(id, ownerID string, now time.Time) Project {
	return Project{
		ID:               id,
		OwnerID:          ownerID,
		Step:             StepPhotoUpload,
		Photos:           []Photo{},
		GeneratedOptions: []DesignOption{},
		RevisionHistory:  []Revision{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (p Project) RoomPhotoCount() int {
	return p.countPhotos(PhotoTypeRoom)
}

func (p Project) countPhotos(t PhotoType) int {
	n := 0
	for _, ph := range p.Photos {
		if ph.Type == t {
			n++
		}
	}
	return n
}

func (p Project) photoIndex(id string) int {
	for i, ph := range p.Photos {
		if ph.ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy; the workflow hands clones to queries so readers never
// observe a half-applied mutation.
func (p Project) Clone() Project {
	out := p
	out.Photos = append([]Photo{}, p.Photos...)
	if p.ScanData != nil {
		sd := *p.ScanData
		out.ScanData = &sd
	}
	out.DesignBrief = p.DesignBrief.Clone()
	out.GeneratedOptions = append([]DesignOption{}, p.GeneratedOptions...)
	if p.SelectedOption != nil {
		idx := *p.SelectedOption
		out.SelectedOption = &idx
	}
	out.RevisionHistory = make([]Revision, 0, len(p.RevisionHistory))
	for _, r := range p.RevisionHistory {
		r.Instructions = append([]string{}, r.Instructions...)
		out.RevisionHistory = append(out.RevisionHistory, r)
	}
	if p.ShoppingList != nil {
		sl := *p.ShoppingList
		sl.Items = append([]ShoppingItem{}, p.ShoppingList.Items...)
		sl.Unmatched = append([]string(nil), p.ShoppingList.Unmatched...)
		out.ShoppingList = &sl
	}
	if p.Error != nil {
		e := *p.Error
		out.Error = &e
	}
	if p.Intake != nil {
		s := *p.Intake
		if p.Intake.LastReply != nil {
			r := *p.Intake.LastReply
			r.QuickReplies = append([]string(nil), p.Intake.LastReply.QuickReplies...)
			s.LastReply = &r
		}
		s.DraftBrief = p.Intake.DraftBrief.Clone()
		out.Intake = &s
	}
	if p.TerminalAt != nil {
		t := *p.TerminalAt
		out.TerminalAt = &t
	}
	return out
}

func (b *DesignBrief) Clone() *DesignBrief {
	if b == nil {
		return nil
	}
	out := *b
	out.Styles = append([]string(nil), b.Styles...)
	out.Colors = append([]string(nil), b.Colors...)
	out.Materials = append([]string(nil), b.Materials...)
	out.Keep = append([]string(nil), b.Keep...)
	out.Avoid = append([]string(nil), b.Avoid...)
	out.PainPoints = append([]string(nil), b.PainPoints...)
	return &out
}
