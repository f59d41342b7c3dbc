package engine

import (
	"encoding/json"

	"github.com/Burtson-Labs/bandit-sync/internal/model"
	"github.com/Burtson-Labs/bandit-sync/internal/protocol"
)

const (
	// SoftSizeLimit is the serialized size at which a conversation still
	// syncs but is flagged for a user-visible warning.
	SoftSizeLimit = 10 << 20 // 10 MiB

	// HardSizeLimit is the serialized size at or above which a
	// conversation is excluded from sync until the user shrinks it.
	HardSizeLimit = 12 << 20 // 12 MiB
)

// SizeReport classifies candidate conversations by serialized payload size.
// Oversized entries are excluded from Allowed and block themselves (only
// themselves) from sync; warning entries are included in Allowed but
// flagged.
type SizeReport struct {
	Allowed   []model.Conversation
	Warnings  []model.Conversation
	Oversized []model.Conversation
}

// WarningNames returns the names of conversations near the size limit.
func (r SizeReport) WarningNames() []string {
	return conversationNames(r.Warnings)
}

// OversizedNames returns the names of conversations blocked by size.
func (r SizeReport) OversizedNames() []string {
	return conversationNames(r.Oversized)
}

func conversationNames(convs []model.Conversation) []string {
	if len(convs) == 0 {
		return nil
	}
	names := make([]string, len(convs))
	for i, c := range convs {
		names[i] = c.Name
	}
	return names
}

// AnalyzeConversations measures each candidate's wire representation in
// UTF-8 bytes and classifies it against the soft and hard caps. A record
// that fails to serialize is treated as oversized; it could never be
// transmitted either way.
func AnalyzeConversations(convs []model.Conversation) SizeReport {
	var report SizeReport
	for _, c := range convs {
		data, err := json.Marshal(protocol.ConversationToDTO(c))
		if err != nil {
			report.Oversized = append(report.Oversized, c)
			continue
		}
		size := len(data)
		switch {
		case size >= HardSizeLimit:
			report.Oversized = append(report.Oversized, c)
		case size >= SoftSizeLimit:
			report.Warnings = append(report.Warnings, c)
			report.Allowed = append(report.Allowed, c)
		default:
			report.Allowed = append(report.Allowed, c)
		}
	}
	return report
}
