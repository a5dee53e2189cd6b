package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrStateCorrupt is returned by stores when a persisted conversation fails
// shape validation on load.
var ErrStateCorrupt = errors.New("conversation state is corrupt")

// Role identifies the speaker of a conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// TurnMetadata carries the labels assigned while the turn was processed.
type TurnMetadata struct {
	Category  Category  `json:"category,omitempty"`
	Sentiment Sentiment `json:"sentiment,omitempty"`
}

// ConversationTurn is a single persisted message. Turns are values and are
// never modified after they are appended.
type ConversationTurn struct {
	Role      Role          `json:"role"`
	Content   string        `json:"content"`
	Metadata  *TurnMetadata `json:"metadata,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

// ConversationState is the stored history of one session. Turns are in
// insertion order.
type ConversationState struct {
	SessionKey string             `json:"sessionKey"`
	Turns      []ConversationTurn `json:"turns"`
	UpdatedAt  time.Time          `json:"updatedAt"`

	// Version is the stored turn count this state was read at, zero when
	// nothing was stored. Stores reject a Put whose Version no longer
	// matches the stored record.
	Version int `json:"-"`
	// Replace tells a store to overwrite whatever it holds for the session,
	// unreadable records included, without checking Version.
	Replace bool `json:"-"`
}

// NewConversationState returns an empty state for key.
func NewConversationState(key string) ConversationState {
	return ConversationState{SessionKey: key, Turns: []ConversationTurn{}}
}

// Clone returns a copy whose turn slice does not alias s.
func (s ConversationState) Clone() ConversationState {
	out := s
	out.Turns = CloneTurns(s.Turns)
	return out
}

// Validate performs basic shape validation: a session key, known roles, and
// user/agent alternation starting with the user.
func (s ConversationState) Validate() error {
	if strings.TrimSpace(s.SessionKey) == "" {
		return fmt.Errorf("%w: missing session key", ErrStateCorrupt)
	}
	for i, t := range s.Turns {
		want := RoleUser
		if i%2 == 1 {
			want = RoleAgent
		}
		if t.Role != want {
			return fmt.Errorf("%w: turn %d has role %q, want %q", ErrStateCorrupt, i, t.Role, want)
		}
	}
	if len(s.Turns)%2 != 0 {
		return fmt.Errorf("%w: dangling user turn", ErrStateCorrupt)
	}
	return nil
}

// CloneTurns copies a turn slice, including metadata pointers.
func CloneTurns(turns []ConversationTurn) []ConversationTurn {
	out := make([]ConversationTurn, len(turns))
	for i, t := range turns {
		if t.Metadata != nil {
			md := *t.Metadata
			t.Metadata = &md
		}
		out[i] = t
	}
	return out
}

// LastTurns returns a copy of at most the last n turns.
func LastTurns(turns []ConversationTurn, n int) []ConversationTurn {
	if n <= 0 || len(turns) == 0 {
		return nil
	}
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return CloneTurns(turns)
}
