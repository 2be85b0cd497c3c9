// Package credit implements cost estimation for generation jobs. Estimation
// is pure: it never touches the ledger and returns identical results for
// identical inputs.
package credit

import (
	"math"

	"app/internal/model"
)

// EstimateConfig holds the fixed per-unit cost multipliers, in credits.
type EstimateConfig struct {
	ScriptGeneration int // per job
	ImagePerScene    int // per scene
	VideoPerScene    int // per scene
	AudioSelection   int // per job
	Assembly         int // per job
	MinimumCharge    int
	USDPerCredit     float64
	// ResolutionFactor scales scene costs per resolution tier, in percent.
	ResolutionFactor map[string]int
}

// DefaultConfig are the production multipliers.
var DefaultConfig = EstimateConfig{
	ScriptGeneration: 1,
	ImagePerScene:    1,
	VideoPerScene:    2,
	AudioSelection:   1,
	Assembly:         1,
	MinimumCharge:    3,
	USDPerCredit:     0.10,
	ResolutionFactor: map[string]int{
		"720p":  100,
		"1080p": 100,
		"4K":    200,
	},
}

// SceneCount derives the scene count from the requested duration and the
// niche's average, assuming roughly one scene per five seconds of video.
func SceneCount(niche *model.Niche, opts model.JobOptions) int {
	duration := opts.Duration
	if duration <= 0 {
		duration = niche.AverageDuration
	}
	if duration <= 0 {
		duration = 30
	}
	n := duration / 5
	if n < 1 {
		n = 1
	}
	return n
}

// Estimate produces the credit cost projection for a prospective job. The
// breakdown components always sum to TotalCredits; when the raw sum falls
// under MinimumCharge the difference is folded into Assembly so the invariant
// holds after rounding.
func Estimate(cfg EstimateConfig, niche *model.Niche, opts model.JobOptions, userCredits int) model.CreditEstimate {
	scenes := SceneCount(niche, opts)

	factor := cfg.ResolutionFactor[opts.Resolution]
	if factor == 0 {
		factor = 100
	}
	scale := func(c int) int {
		return int(math.Ceil(float64(c*factor) / 100))
	}

	breakdown := model.CostBreakdown{
		ScriptGeneration: cfg.ScriptGeneration,
		ImageGeneration:  scale(cfg.ImagePerScene * scenes),
		VideoGeneration:  scale(cfg.VideoPerScene * scenes),
		AudioSelection:   cfg.AudioSelection,
		Assembly:         cfg.Assembly,
	}
	total := breakdown.ScriptGeneration + breakdown.ImageGeneration +
		breakdown.VideoGeneration + breakdown.AudioSelection + breakdown.Assembly
	if total < cfg.MinimumCharge {
		breakdown.Assembly += cfg.MinimumCharge - total
		total = cfg.MinimumCharge
	}
	breakdown.Total = total

	needed := total - userCredits
	if needed < 0 {
		needed = 0
	}
	return model.CreditEstimate{
		Breakdown:     breakdown,
		TotalCredits:  total,
		TotalUSD:      float64(total) * cfg.USDPerCredit,
		UserCredits:   userCredits,
		CanAfford:     userCredits >= total,
		CreditsNeeded: needed,
	}
}
