package engine

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Burtson-Labs/bandit-sync/internal/model"
	"github.com/Burtson-Labs/bandit-sync/internal/protocol"
)

// conversationOfSize builds a conversation whose serialized wire form is
// exactly target bytes, by padding the single answer with ASCII.
func conversationOfSize(t *testing.T, name string, target int) model.Conversation {
	t.Helper()

	base := model.Conversation{
		ID:        "size-" + name,
		Name:      name,
		History:   []model.Turn{{ID: "0", Question: "q", Answer: ""}},
		CreatedAt: time.Unix(0, 0).UTC(),
		UpdatedAt: time.Unix(0, 0).UTC(),
	}
	data, err := json.Marshal(protocol.ConversationToDTO(base))
	if err != nil {
		t.Fatalf("failed to marshal base conversation: %v", err)
	}
	overhead := len(data)
	if target < overhead {
		t.Fatalf("target %d smaller than fixed overhead %d", target, overhead)
	}

	// Each ASCII byte in the answer adds exactly one byte on the wire.
	base.History[0].Answer = strings.Repeat("x", target-overhead)
	data, err = json.Marshal(protocol.ConversationToDTO(base))
	if err != nil {
		t.Fatalf("failed to marshal padded conversation: %v", err)
	}
	if len(data) != target {
		t.Fatalf("padding miscalculated: got %d bytes, want %d", len(data), target)
	}
	return base
}

func TestAnalyzeConversationsBoundaries(t *testing.T) {
	small := conversationOfSize(t, "small", 4096)
	underSoft := conversationOfSize(t, "under-soft", SoftSizeLimit-1)
	atSoft := conversationOfSize(t, "at-soft", SoftSizeLimit)
	underHard := conversationOfSize(t, "under-hard", HardSizeLimit-1)
	atHard := conversationOfSize(t, "at-hard", HardSizeLimit)

	report := AnalyzeConversations([]model.Conversation{small, underSoft, atSoft, underHard, atHard})

	if len(report.Allowed) != 4 {
		t.Fatalf("expected 4 allowed, got %d", len(report.Allowed))
	}
	for _, c := range report.Allowed {
		if c.ID == atHard.ID {
			t.Fatal("conversation at the hard cap must not be allowed")
		}
	}

	warnNames := report.WarningNames()
	if len(warnNames) != 2 {
		t.Fatalf("expected 2 warnings, got %v", warnNames)
	}
	if warnNames[0] != "at-soft" || warnNames[1] != "under-hard" {
		t.Fatalf("unexpected warning names: %v", warnNames)
	}

	overNames := report.OversizedNames()
	if len(overNames) != 1 || overNames[0] != "at-hard" {
		t.Fatalf("expected only at-hard oversized, got %v", overNames)
	}
}

func TestAnalyzeConversationsEmpty(t *testing.T) {
	report := AnalyzeConversations(nil)
	if len(report.Allowed) != 0 || report.WarningNames() != nil || report.OversizedNames() != nil {
		t.Fatalf("empty input produced non-empty report: %+v", report)
	}
}
