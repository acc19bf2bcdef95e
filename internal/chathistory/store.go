// Package chathistory persists the intake conversation outside the workflow. The
// project only keeps the opaque key; transcripts never enter workflow history.
package chathistory

import (
	"context"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

type History struct {
	Messages []Message `json:"messages"`
}

// Store is the capability the intake activity needs. Load of an unknown key
// returns an empty history.
type Store interface {
	Load(ctx context.Context, key string) (History, error)
	Save(ctx context.Context, key string, h History) error
	Delete(ctx context.Context, key string) error
}

// Trim keeps the most recent max messages.
func (h History) Trim(max int) History {
	if max <= 0 || len(h.Messages) <= max {
		return h
	}
	return History{Messages: append([]Message(nil), h.Messages[len(h.Messages)-max:]...)}
}
