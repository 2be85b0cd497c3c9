package dto

import (
	"time"

	"app/internal/model"
)

// UserCreateDTO is used for first sign-in provisioning.
type UserCreateDTO struct {
	Email       string `json:"email" validate:"required,email"`
	DisplayName string `json:"display_name" validate:"omitempty,max=100"`
}

// UserResponseDTO is returned in API responses.
type UserResponseDTO struct {
	UserID          string                `json:"user_id"`
	Email           string                `json:"email"`
	DisplayName     string                `json:"display_name"`
	Role            model.Role            `json:"role"`
	Status          model.UserStatus      `json:"status"`
	Credits         int                   `json:"credits"`
	LifetimeCredits int                   `json:"lifetime_credits"`
	Preferences     model.UserPreferences `json:"preferences"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// ProfileResponseDTO pairs the account with its tier limits.
type ProfileResponseDTO struct {
	User   UserResponseDTO `json:"user"`
	Limits EntitlementDTO  `json:"limits"`
}

// EntitlementDTO is the client-facing view of a tier's limits. -1 means
// unlimited.
type EntitlementDTO struct {
	CreditsPerMonth   int              `json:"credits_per_month"`
	MaxConcurrentJobs int              `json:"max_concurrent_jobs"`
	MaxResolution     string           `json:"max_resolution"`
	MaxNiches         int              `json:"max_niches"`
	AllowedPlatforms  []model.Platform `json:"allowed_platforms"`
	RateLimitPerMin   int              `json:"rate_limit_per_min"`
}

func UserResponseFromModel(u *model.User) UserResponseDTO {
	return UserResponseDTO{
		UserID:          u.UserID,
		Email:           u.Email,
		DisplayName:     u.DisplayName,
		Role:            u.Role,
		Status:          u.Status,
		Credits:         u.Credits,
		LifetimeCredits: u.LifetimeCredits,
		Preferences:     u.Preferences,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

// UserPreferencesUpdateDTO is the body for PATCH /user/preferences.
type UserPreferencesUpdateDTO struct {
	DefaultPlatform   *model.Platform `json:"default_platform,omitempty" validate:"omitempty,oneof=tiktok youtube_shorts instagram_reels instagram_stories"`
	DefaultResolution *string         `json:"default_resolution,omitempty" validate:"omitempty,oneof=720p 1080p 4K"`
	NotifyOnComplete  *bool           `json:"notify_on_complete,omitempty"`
	NotifyOnFailure   *bool           `json:"notify_on_failure,omitempty"`
}
