package credit

import (
	"testing"

	"app/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNiche() *model.Niche {
	return &model.Niche{
		ID:                  "niche_motivational",
		Name:                "Motivational Quotes",
		AverageDuration:     30,
		EstimatedCreditCost: 3,
	}
}

func TestEstimateBreakdownSumsToTotal(t *testing.T) {
	opts := []model.JobOptions{
		{},
		{Duration: 15},
		{Duration: 60, Resolution: "1080p"},
		{Duration: 60, Resolution: "4K"},
		{Duration: 5, Resolution: "720p"},
	}
	for _, o := range opts {
		est := Estimate(DefaultConfig, testNiche(), o, 100)
		sum := est.Breakdown.ScriptGeneration + est.Breakdown.ImageGeneration +
			est.Breakdown.VideoGeneration + est.Breakdown.AudioSelection + est.Breakdown.Assembly
		assert.Equal(t, est.TotalCredits, sum, "opts %+v", o)
		assert.Equal(t, est.TotalCredits, est.Breakdown.Total)
	}
}

func TestEstimateIdempotent(t *testing.T) {
	opts := model.JobOptions{Duration: 45, Resolution: "1080p"}
	first := Estimate(DefaultConfig, testNiche(), opts, 10)
	second := Estimate(DefaultConfig, testNiche(), opts, 10)
	assert.Equal(t, first, second)
}

func TestEstimateMinimumCharge(t *testing.T) {
	cfg := DefaultConfig
	cfg.MinimumCharge = 10
	est := Estimate(cfg, testNiche(), model.JobOptions{Duration: 5}, 50)
	require.Equal(t, 10, est.TotalCredits)
	sum := est.Breakdown.ScriptGeneration + est.Breakdown.ImageGeneration +
		est.Breakdown.VideoGeneration + est.Breakdown.AudioSelection + est.Breakdown.Assembly
	assert.Equal(t, 10, sum)
}

func TestEstimateCanAfford(t *testing.T) {
	est := Estimate(DefaultConfig, testNiche(), model.JobOptions{Duration: 30}, 2)
	require.Greater(t, est.TotalCredits, 2)
	assert.False(t, est.CanAfford)
	assert.Equal(t, est.TotalCredits-2, est.CreditsNeeded)

	est = Estimate(DefaultConfig, testNiche(), model.JobOptions{Duration: 30}, 1000)
	assert.True(t, est.CanAfford)
	assert.Zero(t, est.CreditsNeeded)
}

func TestEstimate4KScalesSceneCosts(t *testing.T) {
	hd := Estimate(DefaultConfig, testNiche(), model.JobOptions{Duration: 60, Resolution: "1080p"}, 100)
	uhd := Estimate(DefaultConfig, testNiche(), model.JobOptions{Duration: 60, Resolution: "4K"}, 100)
	assert.Greater(t, uhd.Breakdown.VideoGeneration, hd.Breakdown.VideoGeneration)
	// Per-job components are not resolution scaled.
	assert.Equal(t, hd.Breakdown.ScriptGeneration, uhd.Breakdown.ScriptGeneration)
}

func TestSceneCountFallsBackToNicheAverage(t *testing.T) {
	assert.Equal(t, 6, SceneCount(testNiche(), model.JobOptions{}))
	assert.Equal(t, 3, SceneCount(testNiche(), model.JobOptions{Duration: 15}))
	assert.Equal(t, 1, SceneCount(testNiche(), model.JobOptions{Duration: 3}))
}
