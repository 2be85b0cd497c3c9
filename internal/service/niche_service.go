package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"app/internal/apierr"
	"app/internal/model"
	"app/internal/pipeline"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// SampleIdea is one randomized preview draw from a niche's pools.
type SampleIdea struct {
	Topic       string
	Hook        string
	VisualStyle string
}

// NicheUpdate carries the operator edit; nil fields are left unchanged.
// Content-affecting fields bump the version, flag flips do not.
type NicheUpdate struct {
	Name           *string
	Description    *string
	ContentStyle   *string
	TargetAudience *[]string
	Platforms      *map[model.Platform]model.PlatformConfig
	Prompts        *model.PromptSet
	Pools          *model.RandomizationPools
	AntiRepetition *model.AntiRepetitionConfig
	IsActive       *bool
	IsPremium      *bool
	Tags           *[]string
}

// NicheService exposes the niche catalog to users and editing to operators.
type NicheService interface {
	ListNiches(ctx context.Context, category model.NicheCategory, platform model.Platform, limit int, after *string) ([]model.Niche, error)
	GetNiche(ctx context.Context, id string) (*model.Niche, error)
	// PreviewNiche draws sample ideas from the niche's pools without touching
	// usage counters or charging credits.
	PreviewNiche(ctx context.Context, id string, count int) ([]SampleIdea, int, error)
	UpdateNiche(ctx context.Context, id string, update NicheUpdate) (*model.Niche, error)
}

type nicheService struct {
	repo        repository.NicheRepository
	nicheLogger zerolog.Logger
}

// NewNicheService creates a new NicheService.
func NewNicheService(repo repository.NicheRepository, logger zerolog.Logger) NicheService {
	return &nicheService{
		repo:        repo,
		nicheLogger: logger.With().Str("service", "NicheService").Logger(),
	}
}

func (s *nicheService) ListNiches(ctx context.Context, category model.NicheCategory, platform model.Platform, limit int, after *string) ([]model.Niche, error) {
	niches, err := s.repo.ListNiches(ctx, category, platform, limit, after)
	if err != nil {
		s.nicheLogger.Error().Err(err).Msg("Failed to list niches")
		return nil, err
	}
	return niches, nil
}

func (s *nicheService) GetNiche(ctx context.Context, id string) (*model.Niche, error) {
	niche, err := s.repo.GetNicheByID(ctx, id)
	if err != nil {
		s.nicheLogger.Error().Err(err).Str("niche_id", id).Msg("Failed to get niche")
		return nil, err
	}
	if niche == nil || !niche.IsActive {
		return nil, apierr.New(apierr.CodeNotFound, "Niche not found")
	}
	return niche, nil
}

func (s *nicheService) PreviewNiche(ctx context.Context, id string, count int) ([]SampleIdea, int, error) {
	niche, err := s.GetNiche(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	if count < 1 {
		count = 1
	}
	if count > 10 {
		count = 10
	}

	// The picker bumps usage counters on its working copy only; previews
	// must not influence anti-repetition state for real jobs.
	picker := pipeline.NewPicker(time.Now().UnixNano())
	preview := *niche
	preview.Pools = niche.Pools.Clone()
	ideas := make([]SampleIdea, 0, count)
	for i := 0; i < count; i++ {
		ideas = append(ideas, SampleIdea{
			Topic:       picker.PickTopic(&preview, nil),
			Hook:        picker.PickHook(&preview),
			VisualStyle: picker.PickVisualStyle(&preview),
		})
	}
	return ideas, niche.EstimatedCreditCost, nil
}

// UpdateNiche applies an operator edit. Content edits snapshot the prior
// version before the bump so any job in flight keeps a stable reference.
func (s *nicheService) UpdateNiche(ctx context.Context, id string, update NicheUpdate) (*model.Niche, error) {
	niche, err := s.repo.GetNicheByID(ctx, id)
	if err != nil {
		s.nicheLogger.Error().Err(err).Str("niche_id", id).Msg("Failed to get niche for update")
		return nil, err
	}
	if niche == nil {
		return nil, apierr.New(apierr.CodeNotFound, "Niche not found")
	}

	var priorSnapshot []byte
	contentChanged := update.Name != nil || update.Description != nil ||
		update.ContentStyle != nil || update.TargetAudience != nil ||
		update.Platforms != nil || update.Prompts != nil ||
		update.Pools != nil || update.AntiRepetition != nil
	if contentChanged {
		priorSnapshot, err = json.Marshal(niche)
		if err != nil {
			return nil, fmt.Errorf("snapshotting niche %s: %w", id, err)
		}
	}

	if update.Name != nil {
		niche.Name = *update.Name
	}
	if update.Description != nil {
		niche.Description = *update.Description
	}
	if update.ContentStyle != nil {
		niche.ContentStyle = *update.ContentStyle
	}
	if update.TargetAudience != nil {
		niche.TargetAudience = *update.TargetAudience
	}
	if update.Platforms != nil {
		niche.Platforms = *update.Platforms
	}
	if update.Prompts != nil {
		niche.Prompts = *update.Prompts
	}
	if update.Pools != nil {
		niche.Pools = *update.Pools
	}
	if update.AntiRepetition != nil {
		niche.AntiRepetition = *update.AntiRepetition
	}
	if update.IsActive != nil {
		niche.IsActive = *update.IsActive
	}
	if update.IsPremium != nil {
		niche.IsPremium = *update.IsPremium
	}
	if update.Tags != nil {
		niche.Tags = *update.Tags
	}
	if contentChanged {
		niche.Version++
	}

	if err := s.repo.UpdateNiche(ctx, niche, priorSnapshot); err != nil {
		s.nicheLogger.Error().Err(err).Str("niche_id", id).Msg("Failed to update niche")
		return nil, fmt.Errorf("updating niche %s: %w", id, err)
	}
	return niche, nil
}
