package pipeline

import (
	"testing"
	"time"

	"app/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func poolNiche() *model.Niche {
	return &model.Niche{
		Pools: model.RandomizationPools{
			Topics: []model.PoolItem{
				{Value: "morning mindset", Weight: 3},
				{Value: "success habits", Weight: 2},
				{Value: "goal setting", Weight: 1},
			},
			Hooks: []model.PoolItem{
				{Value: "The secret nobody tells you about...", Weight: 1},
				{Value: "Stop doing this if you want success...", Weight: 1},
			},
		},
		AntiRepetition: model.AntiRepetitionConfig{
			MinTopicGap: 2,
			MinHookGap:  1,
		},
	}
}

func TestPickTopicBumpsUsage(t *testing.T) {
	niche := poolNiche()
	p := NewPicker(1)
	topic := p.PickTopic(niche, nil)
	require.NotEmpty(t, topic)

	used := 0
	for _, it := range niche.Pools.Topics {
		if it.UsageCount > 0 {
			assert.Equal(t, topic, it.Value)
			assert.NotNil(t, it.LastUsedAt)
			used++
		}
	}
	assert.Equal(t, 1, used)
}

func TestPickTopicHonorsMinGap(t *testing.T) {
	niche := poolNiche()
	p := NewPicker(42)
	first := p.PickTopic(niche, nil)
	second := p.PickTopic(niche, nil)
	// With MinTopicGap=2 and 3 topics, consecutive picks never repeat.
	assert.NotEqual(t, first, second)
	third := p.PickTopic(niche, nil)
	assert.NotEqual(t, first, third)
	assert.NotEqual(t, second, third)
}

func TestPickTopicExclusion(t *testing.T) {
	niche := poolNiche()
	p := NewPicker(7)
	for i := 0; i < 20; i++ {
		topic := p.PickTopic(niche, []string{"morning mindset", "success habits"})
		assert.Equal(t, "goal setting", topic)
	}
}

func TestPickRelaxesGapWhenExhausted(t *testing.T) {
	now := time.Now()
	niche := &model.Niche{
		Pools: model.RandomizationPools{
			Topics: []model.PoolItem{
				{Value: "only topic", Weight: 1, UsageCount: 5, LastUsedAt: &now},
			},
		},
		AntiRepetition: model.AntiRepetitionConfig{MinTopicGap: 3},
	}
	p := NewPicker(3)
	assert.Equal(t, "only topic", p.PickTopic(niche, nil))
}

func TestPickEmptyPool(t *testing.T) {
	p := NewPicker(9)
	assert.Empty(t, p.PickCTA(&model.Niche{}))
}
