package model

import "time"

type Platform string

const (
	PlatformTikTok           Platform = "tiktok"
	PlatformYouTubeShorts    Platform = "youtube_shorts"
	PlatformInstagramReels   Platform = "instagram_reels"
	PlatformInstagramStories Platform = "instagram_stories"
)

type NicheCategory string

const (
	CategoryLifestyle     NicheCategory = "lifestyle"
	CategoryBusiness      NicheCategory = "business"
	CategoryEducation     NicheCategory = "education"
	CategoryEntertainment NicheCategory = "entertainment"
	CategoryHealth        NicheCategory = "health"
	CategoryTechnology    NicheCategory = "technology"
	CategoryFinance       NicheCategory = "finance"
	CategorySports        NicheCategory = "sports"
	CategoryFood          NicheCategory = "food"
	CategoryTravel        NicheCategory = "travel"
)

// Niche is a versioned content template driving generation. It is authored by
// operators and read-only to end users; deactivation happens via IsActive,
// never deletion, because historical jobs weakly reference it.
type Niche struct {
	ID                  string                      `db:"id" json:"id"`
	Slug                string                      `db:"slug" json:"slug"`
	Name                string                      `db:"name" json:"name"`
	Version             int                         `db:"version" json:"version"`
	Description         string                      `db:"description" json:"description"`
	Category            NicheCategory               `db:"category" json:"category"`
	ContentStyle        string                      `db:"content_style" json:"content_style"`
	TargetAudience      []string                    `db:"target_audience" json:"target_audience"`
	Platforms           map[Platform]PlatformConfig `db:"platforms" json:"platforms"`
	Prompts             PromptSet                   `db:"prompts" json:"prompts"`
	Pools               RandomizationPools          `db:"pools" json:"pools"`
	AntiRepetition      AntiRepetitionConfig        `db:"anti_repetition" json:"anti_repetition"`
	EstimatedCreditCost int                         `db:"estimated_credit_cost" json:"estimated_credit_cost"`
	AverageDuration     int                         `db:"average_duration" json:"average_duration"`
	IsActive            bool                        `db:"is_active" json:"is_active"`
	IsPremium           bool                        `db:"is_premium" json:"is_premium"`
	Tags                []string                    `db:"tags" json:"tags"`
	CreatedAt           time.Time                   `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time                   `db:"updated_at" json:"updated_at"`
}

// PlatformConfig captures per-platform generation constraints.
type PlatformConfig struct {
	Enabled         bool          `json:"enabled"`
	Duration        DurationRange `json:"duration"`
	AspectRatio     string        `json:"aspect_ratio"`
	HashtagStrategy string        `json:"hashtag_strategy"`
	MaxHashtags     int           `json:"max_hashtags"`
	CaptionStyle    string        `json:"caption_style"`
}

type DurationRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// PromptSet holds the five prompt templates a niche owns.
type PromptSet struct {
	Idea    PromptTemplate `json:"idea"`
	Script  PromptTemplate `json:"script"`
	Image   PromptTemplate `json:"image"`
	Motion  PromptTemplate `json:"motion"`
	Caption PromptTemplate `json:"caption"`
}

type PromptTemplate struct {
	ID                 string  `json:"id"`
	Version            int     `json:"version"`
	SystemPrompt       string  `json:"system_prompt"`
	UserPromptTemplate string  `json:"user_prompt_template"`
	Model              string  `json:"model"`
	Temperature        float64 `json:"temperature"`
	MaxTokens          int     `json:"max_tokens"`
}

// PoolItem is a weighted randomization candidate with a usage counter.
type PoolItem struct {
	Value      string     `json:"value"`
	Weight     int        `json:"weight"`
	UsageCount int        `json:"usage_count"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// RandomizationPools are the weighted item pools the idea step draws from.
type RandomizationPools struct {
	Topics       []PoolItem `json:"topics"`
	Hooks        []PoolItem `json:"hooks"`
	CTAs         []PoolItem `json:"ctas"`
	VisualStyles []PoolItem `json:"visual_styles"`
	Tones        []PoolItem `json:"tones"`
	MusicMoods   []PoolItem `json:"music_moods"`
}

// Clone returns pools backed by fresh slices, so picks against the copy never
// touch the original's usage counters.
func (p RandomizationPools) Clone() RandomizationPools {
	clone := func(items []PoolItem) []PoolItem {
		if items == nil {
			return nil
		}
		out := make([]PoolItem, len(items))
		copy(out, items)
		return out
	}
	return RandomizationPools{
		Topics:       clone(p.Topics),
		Hooks:        clone(p.Hooks),
		CTAs:         clone(p.CTAs),
		VisualStyles: clone(p.VisualStyles),
		Tones:        clone(p.Tones),
		MusicMoods:   clone(p.MusicMoods),
	}
}

// AntiRepetitionConfig bounds how often pool items may recur.
type AntiRepetitionConfig struct {
	// MinTopicGap is the minimum number of other picks before a topic repeats.
	MinTopicGap int `json:"min_topic_gap"`
	// MinHookGap is the minimum number of other picks before a hook repeats.
	MinHookGap int `json:"min_hook_gap"`
	// SimilarityThreshold rejects generated ideas whose similarity to a recent
	// idea meets or exceeds this value (0..1).
	SimilarityThreshold float64 `json:"similarity_threshold"`
}

// NicheVersion is an immutable snapshot retained whenever a content-affecting
// edit bumps the niche version.
type NicheVersion struct {
	NicheID   string    `db:"niche_id" json:"niche_id"`
	Version   int       `db:"version" json:"version"`
	Snapshot  []byte    `db:"snapshot" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
