package entitlement

import (
	"testing"

	"app/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestForRoleUnknownFallsBackToFree(t *testing.T) {
	cfg := ForRole(model.Role("enterprise"))
	assert.Equal(t, ForRole(model.RoleFree), cfg)
}

func TestWithinLimitUnlimitedSentinel(t *testing.T) {
	// -1 means unlimited and must never be compared as a literal cap.
	assert.True(t, WithinLimit(0, Unlimited))
	assert.True(t, WithinLimit(1_000_000, Unlimited))
}

func TestWithinLimitBounded(t *testing.T) {
	assert.True(t, WithinLimit(0, 1))
	assert.False(t, WithinLimit(1, 1))
	assert.False(t, WithinLimit(5, 2))
}

func TestUnlimitedFieldsAcceptAnyCount(t *testing.T) {
	for _, role := range []model.Role{model.RolePro, model.RoleAgency, model.RoleAdmin} {
		cfg := ForRole(role)
		if cfg.MaxNiches == Unlimited {
			assert.True(t, WithinLimit(9999, cfg.MaxNiches), "role %s", role)
		}
	}
}

func TestResolutionCeilings(t *testing.T) {
	tests := []struct {
		role       model.Role
		resolution string
		allowed    bool
	}{
		{model.RoleFree, "720p", true},
		{model.RoleFree, "1080p", false},
		{model.RoleStarter, "1080p", true},
		{model.RoleStarter, "4K", false},
		{model.RoleAgency, "4K", true},
		{model.RolePro, "8K", false},
	}
	for _, tt := range tests {
		cfg := ForRole(tt.role)
		assert.Equal(t, tt.allowed, cfg.ResolutionAllowed(tt.resolution), "%s/%s", tt.role, tt.resolution)
	}
}

func TestPlatformAllowed(t *testing.T) {
	free := ForRole(model.RoleFree)
	assert.True(t, free.PlatformAllowed(model.PlatformTikTok))
	assert.False(t, free.PlatformAllowed(model.PlatformInstagramReels))

	pro := ForRole(model.RolePro)
	assert.True(t, pro.PlatformAllowed(model.PlatformInstagramStories))
}

func TestRoleOrdering(t *testing.T) {
	assert.True(t, model.RoleAdmin.AtLeast(model.RoleAgency))
	assert.True(t, model.RolePro.AtLeast(model.RolePro))
	assert.False(t, model.RoleStarter.AtLeast(model.RolePro))
	// Unknown roles rank below free.
	assert.False(t, model.Role("mystery").AtLeast(model.RoleFree))
}
