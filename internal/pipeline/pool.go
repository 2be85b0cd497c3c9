package pipeline

import (
	"math/rand"
	"strings"
	"time"

	"app/internal/model"
)

// Picker draws weighted items from a niche's randomization pools while
// honoring the anti-repetition thresholds. Picks bump the item's usage
// counter; recently used items are excluded until minGap other picks have
// happened.
type Picker struct {
	rng *rand.Rand
	now func() time.Time
}

func NewPicker(seed int64) *Picker {
	return &Picker{
		rng: rand.New(rand.NewSource(seed)),
		now: time.Now,
	}
}

// PickTopic selects a topic honoring MinTopicGap and the caller's exclusion
// list. Falls back to ignoring the gap when every candidate is excluded.
func (p *Picker) PickTopic(niche *model.Niche, exclude []string) string {
	return p.pick(niche.Pools.Topics, niche.AntiRepetition.MinTopicGap, exclude)
}

// PickHook selects a hook honoring MinHookGap.
func (p *Picker) PickHook(niche *model.Niche) string {
	return p.pick(niche.Pools.Hooks, niche.AntiRepetition.MinHookGap, nil)
}

// PickVisualStyle selects a visual style; styles have no gap threshold.
func (p *Picker) PickVisualStyle(niche *model.Niche) string {
	return p.pick(niche.Pools.VisualStyles, 0, nil)
}

// PickCTA selects a call to action.
func (p *Picker) PickCTA(niche *model.Niche) string {
	return p.pick(niche.Pools.CTAs, 0, nil)
}

// PickMusicMood selects a music mood.
func (p *Picker) PickMusicMood(niche *model.Niche) string {
	return p.pick(niche.Pools.MusicMoods, 0, nil)
}

func (p *Picker) pick(items []model.PoolItem, minGap int, exclude []string) string {
	if len(items) == 0 {
		return ""
	}

	eligible := eligibleItems(items, minGap, exclude)
	if len(eligible) == 0 {
		// Every item was recently used or excluded; relax the gap rather
		// than fail the pick.
		eligible = eligibleItems(items, 0, exclude)
	}
	if len(eligible) == 0 {
		eligible = indexesOf(items)
	}

	totalWeight := 0
	for _, i := range eligible {
		w := items[i].Weight
		if w <= 0 {
			w = 1
		}
		totalWeight += w
	}
	roll := p.rng.Intn(totalWeight)
	for _, i := range eligible {
		w := items[i].Weight
		if w <= 0 {
			w = 1
		}
		if roll < w {
			now := p.now()
			items[i].UsageCount++
			items[i].LastUsedAt = &now
			return items[i].Value
		}
		roll -= w
	}
	return items[eligible[0]].Value
}

// eligibleItems returns the indexes of items not excluded and not among the
// minGap most recently used.
func eligibleItems(items []model.PoolItem, minGap int, exclude []string) []int {
	recent := recentIndexes(items, minGap)
	out := make([]int, 0, len(items))
	for i, it := range items {
		if recent[i] || excluded(it.Value, exclude) {
			continue
		}
		out = append(out, i)
	}
	return out
}

// recentIndexes marks the minGap items with the latest LastUsedAt.
func recentIndexes(items []model.PoolItem, minGap int) map[int]bool {
	out := map[int]bool{}
	if minGap <= 0 {
		return out
	}
	for n := 0; n < minGap && n < len(items)-1; n++ {
		latest := -1
		var latestAt time.Time
		for i, it := range items {
			if out[i] || it.LastUsedAt == nil {
				continue
			}
			if latest == -1 || it.LastUsedAt.After(latestAt) {
				latest = i
				latestAt = *it.LastUsedAt
			}
		}
		if latest == -1 {
			break
		}
		out[latest] = true
	}
	return out
}

func excluded(value string, exclude []string) bool {
	for _, e := range exclude {
		if strings.EqualFold(strings.TrimSpace(e), value) {
			return true
		}
	}
	return false
}

func indexesOf(items []model.PoolItem) []int {
	out := make([]int, len(items))
	for i := range items {
		out[i] = i
	}
	return out
}
