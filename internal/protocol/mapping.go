package protocol

import (
	"strconv"

	"github.com/Burtson-Labs/bandit-sync/internal/model"
)

// ConversationToDTO converts a local conversation to its wire shape.
// Turns without an explicit ID get their history index as a fallback ID,
// so round-trips keep the append order stable.
func ConversationToDTO(c model.Conversation) ConversationRecordDTO {
	dto := ConversationRecordDTO{
		ID:        c.ID,
		Name:      c.Name,
		Model:     c.Model,
		ProjectID: c.ProjectID,
		Summary:   c.Summary,
		Tags:      c.Tags,
		Metadata:  c.Metadata,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Version:   c.Version,
		UpdatedBy: c.UpdatedBy,
		DeletedAt: c.DeletedAt,
	}
	if len(c.History) > 0 {
		dto.History = make([]TurnDTO, len(c.History))
		for i, turn := range c.History {
			id := turn.ID
			if id == "" {
				id = strconv.Itoa(i)
			}
			dto.History[i] = TurnDTO{
				ID:            id,
				Question:      turn.Question,
				Answer:        turn.Answer,
				SourceFiles:   turn.SourceFiles,
				MemoryUpdated: turn.MemoryUpdated,
				Cancelled:     turn.Cancelled,
			}
		}
	}
	return dto
}

// ConversationFromDTO converts a wire record back to the local shape.
func ConversationFromDTO(dto ConversationRecordDTO) model.Conversation {
	c := model.Conversation{
		ID:        dto.ID,
		Name:      dto.Name,
		Model:     dto.Model,
		ProjectID: dto.ProjectID,
		Summary:   dto.Summary,
		Tags:      dto.Tags,
		Metadata:  dto.Metadata,
		CreatedAt: dto.CreatedAt,
		UpdatedAt: dto.UpdatedAt,
		Version:   dto.Version,
		UpdatedBy: dto.UpdatedBy,
		DeletedAt: dto.DeletedAt,
	}
	if len(dto.History) > 0 {
		c.History = make([]model.Turn, len(dto.History))
		for i, turn := range dto.History {
			c.History[i] = model.Turn{
				ID:            turn.ID,
				Question:      turn.Question,
				Answer:        turn.Answer,
				SourceFiles:   turn.SourceFiles,
				MemoryUpdated: turn.MemoryUpdated,
				Cancelled:     turn.Cancelled,
			}
		}
	}
	return c
}

// ProjectToDTO converts a local project to its wire shape.
func ProjectToDTO(p model.Project) ProjectRecordDTO {
	return ProjectRecordDTO{
		ID:                p.ID,
		Name:              p.Name,
		Description:       p.Description,
		Color:             p.Color,
		Order:             p.Order,
		ConversationCount: p.ConversationCount,
		LastActivityAt:    p.LastActivityAt,
		Summary:           p.Summary,
		Metadata:          p.Metadata,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
		Version:           p.Version,
		UpdatedBy:         p.UpdatedBy,
		DeletedAt:         p.DeletedAt,
	}
}

// ProjectFromDTO converts a wire record back to the local shape.
func ProjectFromDTO(dto ProjectRecordDTO) model.Project {
	return model.Project{
		ID:                dto.ID,
		Name:              dto.Name,
		Description:       dto.Description,
		Color:             dto.Color,
		Order:             dto.Order,
		ConversationCount: dto.ConversationCount,
		LastActivityAt:    dto.LastActivityAt,
		Summary:           dto.Summary,
		Metadata:          dto.Metadata,
		CreatedAt:         dto.CreatedAt,
		UpdatedAt:         dto.UpdatedAt,
		Version:           dto.Version,
		UpdatedBy:         dto.UpdatedBy,
		DeletedAt:         dto.DeletedAt,
	}
}
