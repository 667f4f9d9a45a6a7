// Package transcript holds the canonical conversation model shared by the
// payload extractor, the DOM scraper and the Markdown renderer.
package transcript

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultTitle is used whenever no title could be resolved from the source.
const DefaultTitle = "Untitled Conversation"

// generatedPrefix marks conversation IDs that were not found in the source.
const generatedPrefix = "generated_"

// Role identifies the speaker of a turn. Only RoleUser and RoleModel are valid.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Valid reports whether r is one of the two known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleModel
}

// Turn is one message of a conversation.
type Turn struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Transcript is an ordered, immutable conversation. Build one with New.
type Transcript struct {
	title string
	id    string
	turns []Turn
}

// New builds a transcript. Content is trimmed, turns with empty content or an
// unknown role are dropped, an empty title becomes DefaultTitle and an empty id
// becomes a generated placeholder. The turns slice is copied.
func New(title, id string, turns []Turn) Transcript {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}
	id = strings.TrimSpace(id)
	if id == "" {
		id = GeneratedID(time.Now())
	}
	kept := make([]Turn, 0, len(turns))
	for _, t := range turns {
		t.Content = strings.TrimSpace(t.Content)
		t.Timestamp = strings.TrimSpace(t.Timestamp)
		if t.Content == "" || !t.Role.Valid() {
			continue
		}
		kept = append(kept, t)
	}
	return Transcript{title: title, id: id, turns: kept}
}

// GeneratedID returns the placeholder identifier generated_<epoch-millis>.
func GeneratedID(now time.Time) string {
	return fmt.Sprintf("%s%d", generatedPrefix, now.UnixMilli())
}

// IsGeneratedID reports whether id was produced by GeneratedID.
func IsGeneratedID(id string) bool {
	return strings.HasPrefix(id, generatedPrefix)
}

func (t Transcript) Title() string { return t.title }

func (t Transcript) ConversationID() string { return t.id }

// Turns returns a copy of the turns in conversational order.
func (t Transcript) Turns() []Turn {
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

func (t Transcript) Len() int { return len(t.turns) }

// Empty reports whether the transcript has no turns. Callers treat an empty
// transcript as "no content found".
func (t Transcript) Empty() bool { return len(t.turns) == 0 }

type transcriptJSON struct {
	ConversationID string `json:"conversationId"`
	Title          string `json:"title"`
	Turns          []Turn `json:"turns"`
}

// MarshalJSON encodes the transcript for storage and the HTTP API.
func (t Transcript) MarshalJSON() ([]byte, error) {
	turns := t.turns
	if turns == nil {
		turns = []Turn{}
	}
	return json.Marshal(transcriptJSON{ConversationID: t.id, Title: t.title, Turns: turns})
}

// UnmarshalJSON decodes a stored transcript, applying the same rules as New.
func (t *Transcript) UnmarshalJSON(b []byte) error {
	var raw transcriptJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*t = New(raw.Title, raw.ConversationID, raw.Turns)
	return nil
}
