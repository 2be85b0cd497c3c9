package service

import (
	"context"
	"testing"

	"app/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubNicheRepo struct {
	niche *model.Niche
}

func (s *stubNicheRepo) GetNicheByID(_ context.Context, id string) (*model.Niche, error) {
	if s.niche == nil || s.niche.ID != id {
		return nil, nil
	}
	cp := *s.niche
	return &cp, nil
}

func (s *stubNicheRepo) ListNiches(_ context.Context, _ model.NicheCategory, _ model.Platform, _ int, _ *string) ([]model.Niche, error) {
	return nil, nil
}

func (s *stubNicheRepo) UpdateNiche(_ context.Context, n *model.Niche, _ []byte) error {
	cp := *n
	s.niche = &cp
	return nil
}

func (s *stubNicheRepo) TouchPools(_ context.Context, _ string, _ model.RandomizationPools) error {
	return nil
}

func pooledNiche() *model.Niche {
	return &model.Niche{
		ID:       "niche-1",
		Name:     "Motivation",
		IsActive: true,
		Pools: model.RandomizationPools{
			Topics: []model.PoolItem{
				{Value: "morning mindset", Weight: 3},
				{Value: "success habits", Weight: 2},
			},
			Hooks: []model.PoolItem{
				{Value: "The secret nobody tells you about...", Weight: 1},
			},
			VisualStyles: []model.PoolItem{
				{Value: "cinematic", Weight: 1},
			},
		},
		EstimatedCreditCost: 21,
	}
}

func TestPreviewNicheDoesNotTouchPoolState(t *testing.T) {
	repo := &stubNicheRepo{niche: pooledNiche()}
	svc := NewNicheService(repo, zerolog.Nop())

	ideas, cost, err := svc.PreviewNiche(context.Background(), "niche-1", 5)
	require.NoError(t, err)
	require.Len(t, ideas, 5)
	assert.Equal(t, 21, cost)
	for _, idea := range ideas {
		assert.NotEmpty(t, idea.Topic)
		assert.NotEmpty(t, idea.Hook)
	}

	// Previews pick from a detached copy; the stored pools keep their
	// counters so real jobs see unchanged anti-repetition state.
	pools := []([]model.PoolItem){repo.niche.Pools.Topics, repo.niche.Pools.Hooks, repo.niche.Pools.VisualStyles}
	for _, pool := range pools {
		for _, it := range pool {
			assert.Zero(t, it.UsageCount)
			assert.Nil(t, it.LastUsedAt)
		}
	}
}

func TestPreviewNicheInactiveRejected(t *testing.T) {
	niche := pooledNiche()
	niche.IsActive = false
	svc := NewNicheService(&stubNicheRepo{niche: niche}, zerolog.Nop())

	_, _, err := svc.PreviewNiche(context.Background(), "niche-1", 3)
	assert.Error(t, err)
}
