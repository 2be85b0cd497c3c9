// Package entitlement resolves a user's role into its fixed limit
// configuration. Lookup only; there are no dynamic overrides.
package entitlement

import "app/internal/model"

// Unlimited is the sentinel for "no limit" in integer limit fields. Consumers
// must treat it as +infinity, never as a literal bound.
const Unlimited = -1

// Config is the fixed limit set for one role.
type Config struct {
	CreditsPerMonth   int
	MaxConcurrentJobs int
	MaxResolution     string
	MaxNiches         int
	AllowedPlatforms  []model.Platform
	RateLimitPerMin   int
}

var allPlatforms = []model.Platform{
	model.PlatformTikTok,
	model.PlatformYouTubeShorts,
	model.PlatformInstagramReels,
	model.PlatformInstagramStories,
}

var roleConfigs = map[model.Role]Config{
	model.RoleFree: {
		CreditsPerMonth:   5,
		MaxConcurrentJobs: 1,
		MaxResolution:     "720p",
		MaxNiches:         3,
		AllowedPlatforms:  []model.Platform{model.PlatformTikTok, model.PlatformYouTubeShorts},
		RateLimitPerMin:   10,
	},
	model.RoleStarter: {
		CreditsPerMonth:   30,
		MaxConcurrentJobs: 2,
		MaxResolution:     "1080p",
		MaxNiches:         10,
		AllowedPlatforms:  allPlatforms,
		RateLimitPerMin:   30,
	},
	model.RolePro: {
		CreditsPerMonth:   100,
		MaxConcurrentJobs: 5,
		MaxResolution:     "1080p",
		MaxNiches:         Unlimited,
		AllowedPlatforms:  allPlatforms,
		RateLimitPerMin:   60,
	},
	model.RoleAgency: {
		CreditsPerMonth:   500,
		MaxConcurrentJobs: 10,
		MaxResolution:     "4K",
		MaxNiches:         Unlimited,
		AllowedPlatforms:  allPlatforms,
		RateLimitPerMin:   120,
	},
	model.RoleAdmin: {
		CreditsPerMonth:   Unlimited,
		MaxConcurrentJobs: Unlimited,
		MaxResolution:     "4K",
		MaxNiches:         Unlimited,
		AllowedPlatforms:  allPlatforms,
		RateLimitPerMin:   Unlimited,
	},
}

// ForRole returns the limit configuration for a role. Unknown roles resolve
// to the free tier so a bad role fails closed, not open.
func ForRole(role model.Role) Config {
	cfg, ok := roleConfigs[role]
	if !ok {
		return roleConfigs[model.RoleFree]
	}
	return cfg
}

// WithinLimit reports whether count fits under limit, honoring the Unlimited
// sentinel.
func WithinLimit(count, limit int) bool {
	if limit == Unlimited {
		return true
	}
	return count < limit
}

// PlatformAllowed reports whether the role may target the platform.
func (c Config) PlatformAllowed(p model.Platform) bool {
	for _, allowed := range c.AllowedPlatforms {
		if allowed == p {
			return true
		}
	}
	return false
}

// ResolutionAllowed reports whether the requested resolution is at or below
// the role's ceiling.
func (c Config) ResolutionAllowed(resolution string) bool {
	return resolutionRank(resolution) <= resolutionRank(c.MaxResolution)
}

func resolutionRank(res string) int {
	switch res {
	case "720p":
		return 0
	case "1080p":
		return 1
	case "4K":
		return 2
	default:
		// Unknown resolutions rank above every ceiling so they are rejected.
		return 3
	}
}
