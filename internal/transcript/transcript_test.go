package transcript

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNew_TrimsAndFiltersTurns(t *testing.T) {
	tr := New("  T  ", "abc", []Turn{
		{Role: RoleUser, Content: "  Hi \n"},
		{Role: RoleModel, Content: "   "},
		{Role: Role("system"), Content: "ignored"},
		{Role: RoleModel, Content: "Hello", Timestamp: " 10:00 "},
	})
	if tr.Title() != "T" {
		t.Fatalf("title: got %q", tr.Title())
	}
	if tr.ConversationID() != "abc" {
		t.Fatalf("id: got %q", tr.ConversationID())
	}
	turns := tr.Turns()
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Content != "Hi" || turns[0].Role != RoleUser {
		t.Fatalf("turn 0: %+v", turns[0])
	}
	if turns[1].Timestamp != "10:00" {
		t.Fatalf("timestamp not trimmed: %q", turns[1].Timestamp)
	}
}

func TestNew_Defaults(t *testing.T) {
	tr := New("", "", nil)
	if tr.Title() != DefaultTitle {
		t.Fatalf("expected default title, got %q", tr.Title())
	}
	if !IsGeneratedID(tr.ConversationID()) {
		t.Fatalf("expected generated id, got %q", tr.ConversationID())
	}
	if !tr.Empty() || tr.Len() != 0 {
		t.Fatalf("expected empty transcript")
	}
}

func TestGeneratedID_EpochMillis(t *testing.T) {
	now := time.UnixMilli(1712345678901)
	if got := GeneratedID(now); got != "generated_1712345678901" {
		t.Fatalf("got %q", got)
	}
}

func TestTurns_ReturnsCopy(t *testing.T) {
	tr := New("T", "id", []Turn{{Role: RoleUser, Content: "Hi"}})
	turns := tr.Turns()
	turns[0].Content = "changed"
	if tr.Turns()[0].Content != "Hi" {
		t.Fatalf("transcript mutated through Turns()")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	tr := New("Title", "conv-1", []Turn{{Role: RoleUser, Content: "Hi"}, {Role: RoleModel, Content: "Hello"}})
	b, err := json.Marshal(tr)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Transcript
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Title() != "Title" || back.ConversationID() != "conv-1" || back.Len() != 2 {
		t.Fatalf("round trip mismatch: %s", string(b))
	}
}
