package dto

import (
	"time"

	"app/internal/model"
)

// NicheSummaryDTO is the catalog listing shape; prompt templates and pools
// are operator-only and never leave the server.
type NicheSummaryDTO struct {
	ID                  string              `json:"id"`
	Slug                string              `json:"slug"`
	Name                string              `json:"name"`
	Version             int                 `json:"version"`
	Description         string              `json:"description"`
	Category            model.NicheCategory `json:"category"`
	ContentStyle        string              `json:"content_style"`
	EstimatedCreditCost int                 `json:"estimated_credit_cost"`
	AverageDuration     int                 `json:"average_duration"`
	IsPremium           bool                `json:"is_premium"`
	Tags                []string            `json:"tags"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// NicheDetailDTO adds per-platform configuration for the detail endpoint.
type NicheDetailDTO struct {
	NicheSummaryDTO
	TargetAudience []string                                `json:"target_audience"`
	Platforms      map[model.Platform]model.PlatformConfig `json:"platforms"`
}

func NicheSummaryFromModel(n *model.Niche) NicheSummaryDTO {
	return NicheSummaryDTO{
		ID:                  n.ID,
		Slug:                n.Slug,
		Name:                n.Name,
		Version:             n.Version,
		Description:         n.Description,
		Category:            n.Category,
		ContentStyle:        n.ContentStyle,
		EstimatedCreditCost: n.EstimatedCreditCost,
		AverageDuration:     n.AverageDuration,
		IsPremium:           n.IsPremium,
		Tags:                n.Tags,
		CreatedAt:           n.CreatedAt,
		UpdatedAt:           n.UpdatedAt,
	}
}

func NicheDetailFromModel(n *model.Niche) NicheDetailDTO {
	return NicheDetailDTO{
		NicheSummaryDTO: NicheSummaryFromModel(n),
		TargetAudience:  n.TargetAudience,
		Platforms:       n.Platforms,
	}
}

// NichePreviewDTO is returned by GET /niches/{nicheId}/preview.
type NichePreviewDTO struct {
	SampleIdeas      []SampleIdeaDTO `json:"sample_ideas"`
	EstimatedCredits int             `json:"estimated_credits"`
}

type SampleIdeaDTO struct {
	Topic       string `json:"topic"`
	Hook        string `json:"hook"`
	VisualStyle string `json:"visual_style"`
}

// NicheUpdateDTO is the operator-facing body for PUT /niches/{nicheId}.
// Any non-nil content field bumps the niche version and snapshots the prior
// content.
type NicheUpdateDTO struct {
	Name           *string                                  `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Description    *string                                  `json:"description,omitempty" validate:"omitempty,max=2000"`
	ContentStyle   *string                                  `json:"content_style,omitempty"`
	TargetAudience *[]string                                `json:"target_audience,omitempty"`
	Platforms      *map[model.Platform]model.PlatformConfig `json:"platforms,omitempty"`
	Prompts        *model.PromptSet                         `json:"prompts,omitempty"`
	Pools          *model.RandomizationPools                `json:"pools,omitempty"`
	AntiRepetition *model.AntiRepetitionConfig              `json:"anti_repetition,omitempty"`
	IsActive       *bool                                    `json:"is_active,omitempty"`
	IsPremium      *bool                                    `json:"is_premium,omitempty"`
	Tags           *[]string                                `json:"tags,omitempty"`
}
