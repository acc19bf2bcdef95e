// Package mock provides deterministic stand-ins for the AI collaborators so the
// workflow runs end to end without vendor credentials.
package mock

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"sort"
	"strings"

	"github.com/yungbote/roomforge-backend/internal/chathistory"
	"github.com/yungbote/roomforge-backend/internal/domain/project"
	"github.com/yungbote/roomforge-backend/internal/providers"
)

// New returns a complete provider set backed by the mocks.
func New() providers.Set {
	return providers.Set{
		Photos:   PhotoValidator{},
		Studio:   Studio{},
		Intake:   IntakeAgent{},
		Shopping: Catalog{},
	}
}

type PhotoValidator struct{}

func (PhotoValidator) Validate(ctx context.Context, req providers.PhotoRequest) (project.PhotoCheck, error) {
	if len(req.Photo.Data) == 0 {
		return project.PhotoCheck{Accepted: false, Reason: "photo is empty"}, nil
	}
	if ct := req.Photo.ContentType; ct != "" && !strings.HasPrefix(ct, "image/") {
		return project.PhotoCheck{Accepted: false, Reason: fmt.Sprintf("unsupported content type %s", ct)}, nil
	}
	return project.PhotoCheck{Accepted: true}, nil
}

type Studio struct{}

func (Studio) Generate(ctx context.Context, req providers.GenerateRequest) ([]providers.GeneratedDesign, error) {
	if len(req.RoomPhotos) == 0 {
		return nil, providers.Errorf(providers.KindInvalidInput, "at least one room photo is required")
	}
	n := req.Count
	if n <= 0 {
		n = project.RequestedOptions
	}
	room, style := "room", "modern"
	if req.Brief != nil {
		if req.Brief.RoomType != "" {
			room = req.Brief.RoomType
		}
		if len(req.Brief.Styles) > 0 {
			style = req.Brief.Styles[0]
		}
	}
	out := make([]providers.GeneratedDesign, 0, n)
	for i := 0; i < n; i++ {
		img, err := swatch(fmt.Sprintf("%s|%s|%d", req.ProjectID, style, i))
		if err != nil {
			return nil, err
		}
		out = append(out, providers.GeneratedDesign{
			Image:   img,
			Caption: fmt.Sprintf("Option %d: %s %s", i+1, style, room),
		})
	}
	return out, nil
}

func (Studio) Edit(ctx context.Context, req providers.EditRequest) (providers.Image, error) {
	if len(req.Instructions) == 0 {
		return providers.Image{}, providers.Errorf(providers.KindInvalidInput, "no edit instructions")
	}
	return swatch(req.Base.Key + "|" + strings.Join(req.Instructions, "|"))
}

// swatch renders a small solid PNG whose colour is derived from seed.
func swatch(seed string) (providers.Image, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	sum := h.Sum32()
	c := color.RGBA{R: uint8(sum), G: uint8(sum >> 8), B: uint8(sum >> 16), A: 255}

	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return providers.Image{}, fmt.Errorf("mock studio: encode: %w", err)
	}
	return providers.Image{ContentType: "image/png", Data: buf.Bytes()}, nil
}

type IntakeAgent struct{}

var (
	roomWords   = []string{"living room", "bedroom", "kitchen", "bathroom", "office", "dining room", "nursery"}
	styleWords  = []string{"japandi", "scandinavian", "mid-century", "industrial", "bohemian", "minimalist", "coastal", "farmhouse"}
	colorWords  = []string{"white", "black", "beige", "green", "blue", "terracotta", "grey", "oak"}
	budgetWords = map[string]string{"cheap": "low", "budget": "low", "affordable": "medium", "splurge": "high", "luxury": "luxury"}
)

func (IntakeAgent) Turn(ctx context.Context, req providers.TurnRequest) (project.IntakeTurnResult, error) {
	if req.Opening {
		return project.IntakeTurnResult{Reply: project.AssistantReply{
			Text:         "Which room are we redesigning, and what should it feel like?",
			QuickReplies: []string{"Living room", "Bedroom", "Kitchen"},
		}}, nil
	}

	var said []string
	for _, m := range req.History {
		if m.Role == chathistory.RoleUser {
			said = append(said, m.Text)
		}
	}
	said = append(said, req.Message)
	brief := extractBrief(strings.ToLower(strings.Join(said, " ")), req.Known)

	res := project.IntakeTurnResult{}
	switch {
	case req.FinalTurn:
		if brief.RoomType == "" {
			brief.RoomType = "room"
		}
		res.DraftBrief = &brief
		res.Done = true
		res.Reply = project.AssistantReply{Text: "Thanks! Here is the brief I put together. Confirm it or tweak it before we design."}
	case brief.RoomType == "":
		res.Reply = project.AssistantReply{Text: "Which room is this for?", QuickReplies: []string{"Living room", "Bedroom", "Office"}}
	case len(brief.Styles) == 0:
		res.DraftBrief = &brief
		res.Reply = project.AssistantReply{Text: "Any styles you love?", QuickReplies: []string{"Japandi", "Scandinavian", "Industrial"}}
	default:
		res.DraftBrief = &brief
		res.Reply = project.AssistantReply{Text: fmt.Sprintf("Got it: a %s %s. Anything to keep or avoid? (%d messages left)", brief.Styles[0], brief.RoomType, req.TurnsLeft)}
	}
	return res, nil
}

func extractBrief(text string, known *project.DesignBrief) project.DesignBrief {
	var b project.DesignBrief
	if known != nil {
		b = *known.Clone()
	}
	for _, r := range roomWords {
		if strings.Contains(text, r) {
			b.RoomType = r
			break
		}
	}
	b.Styles = mergeWords(b.Styles, text, styleWords)
	b.Colors = mergeWords(b.Colors, text, colorWords)
	keys := make([]string, 0, len(budgetWords))
	for k := range budgetWords {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.Contains(text, k) {
			b.BudgetTier = budgetWords[k]
		}
	}
	return b
}

func mergeWords(have []string, text string, vocab []string) []string {
	seen := map[string]bool{}
	out := append([]string(nil), have...)
	for _, w := range have {
		seen[w] = true
	}
	for _, w := range vocab {
		if !seen[w] && strings.Contains(text, w) && len(out) < project.MaxBriefListLength {
			out = append(out, w)
			seen[w] = true
		}
	}
	return out
}

type Catalog struct{}

type product struct {
	name, category, retailer string
	style                    string
	tier                     string
	cents                    int64
}

var catalog = []product{
	{"Oak slat bench", "seating", "Northwood", "japandi", "medium", 32900},
	{"Linen sofa", "seating", "Casa", "scandinavian", "high", 189900},
	{"Rattan lounge chair", "seating", "Casa", "bohemian", "medium", 41900},
	{"Steel frame shelf", "storage", "Forge&Co", "industrial", "low", 12900},
	{"Walnut sideboard", "storage", "Northwood", "mid-century", "high", 149000},
	{"Paper pendant lamp", "lighting", "Lumen", "japandi", "low", 5900},
	{"Brass arc lamp", "lighting", "Lumen", "mid-century", "medium", 24900},
	{"Jute rug 200x300", "textiles", "Loom", "coastal", "medium", 29900},
	{"Wool rug 160x230", "textiles", "Loom", "minimalist", "high", 64900},
	{"Ceramic vase set", "decor", "Kiln", "minimalist", "low", 4900},
	{"Reclaimed wood table", "tables", "Barnyard", "farmhouse", "high", 119000},
	{"Marble coffee table", "tables", "Casa", "luxury", "luxury", 329000},
}

var tierRank = map[string]int{"low": 0, "medium": 1, "high": 2, "luxury": 3}

// smallest floor area, in m², a piece fits in
var minFloorM2 = map[string]float64{
	"Linen sofa":           10,
	"Walnut sideboard":     8,
	"Jute rug 200x300":     9,
	"Wool rug 160x230":     5,
	"Reclaimed wood table": 7,
}

func (Catalog) Search(ctx context.Context, req providers.SearchRequest) (project.ShoppingList, error) {
	limit := req.MaxItems
	if limit <= 0 {
		limit = 8
	}
	styles := map[string]bool{}
	budget := "high"
	if req.Brief != nil {
		for _, s := range req.Brief.Styles {
			styles[strings.ToLower(s)] = true
		}
		if req.Brief.BudgetTier != "" {
			budget = strings.ToLower(req.Brief.BudgetTier)
		}
	}

	var area float64
	if req.Dimensions != nil {
		area = req.Dimensions.FloorAreaM2()
	}

	list := project.ShoppingList{Items: []project.ShoppingItem{}, Currency: "USD"}
	categories := map[string]bool{}
	for _, p := range catalog {
		if tierRank[p.tier] > tierRank[budget] {
			continue
		}
		if area > 0 && area < minFloorM2[p.name] {
			continue
		}
		score := 0.5
		if styles[p.style] {
			score = 0.9
		}
		if len(styles) > 0 && !styles[p.style] && categories[p.category] {
			continue
		}
		categories[p.category] = true
		list.Items = append(list.Items, project.ShoppingItem{
			Name:       p.name,
			Category:   p.category,
			Retailer:   p.retailer,
			URL:        "https://example.com/products/" + slug(p.name),
			PriceCents: p.cents,
			Score:      score,
			Rationale:  fmt.Sprintf("%s piece within a %s budget", p.style, budget),
		})
	}
	sort.SliceStable(list.Items, func(i, j int) bool { return list.Items[i].Score > list.Items[j].Score })
	if len(list.Items) > limit {
		list.Items = list.Items[:limit]
	}
	for _, it := range list.Items {
		list.TotalCents += it.PriceCents
	}
	for _, c := range []string{"seating", "lighting", "textiles", "storage"} {
		if !categories[c] {
			list.Unmatched = append(list.Unmatched, c)
		}
	}
	return list, nil
}

func slug(s string) string {
	s = strings.ToLower(s)
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}), "-")
}
