package service

import (
	"context"
	"errors"

	"app/internal/entitlement"
	"app/internal/model"
	"app/internal/repository"
)

var (
	ErrUserNotFound           = errors.New("user not found")
	ErrEmailAlreadyRegistered = errors.New("email already registered")
)

// Profile is a user together with the entitlements their role grants.
type Profile struct {
	User        *model.User
	Entitlement entitlement.Config
}

type UserService interface {
	Create(ctx context.Context, u *model.User) (*model.User, error)
	Get(ctx context.Context, id string) (*model.User, error)
	GetProfile(ctx context.Context, id string) (*Profile, error)
	UpdatePreferences(ctx context.Context, id string, prefs model.UserPreferences) (*model.User, error)
	// SetRole is the operator path for role changes outside the billing flow.
	SetRole(ctx context.Context, id string, role model.Role) error
	SetStatus(ctx context.Context, id string, status model.UserStatus) error
}

type userService struct {
	userRepo repository.UserRepository
}

func NewUserService(userRepo repository.UserRepository) UserService {
	return &userService{userRepo: userRepo}
}

func (s *userService) Create(ctx context.Context, u *model.User) (*model.User, error) {
	if u.Role == "" {
		u.Role = model.RoleFree
	}
	if u.Status == "" {
		u.Status = model.UserPendingVerification
	}
	err := s.userRepo.CreateUser(ctx, u)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *userService) Get(ctx context.Context, id string) (*model.User, error) {
	u, err := s.userRepo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (s *userService) GetProfile(ctx context.Context, id string) (*Profile, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Profile{User: u, Entitlement: entitlement.ForRole(u.Role)}, nil
}

func (s *userService) UpdatePreferences(ctx context.Context, id string, prefs model.UserPreferences) (*model.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.userRepo.UpdatePreferences(ctx, id, prefs); err != nil {
		return nil, err
	}
	u.Preferences = prefs
	return u, nil
}

func (s *userService) SetRole(ctx context.Context, id string, role model.Role) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.userRepo.UpdateRole(ctx, id, role)
}

func (s *userService) SetStatus(ctx context.Context, id string, status model.UserStatus) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.userRepo.UpdateStatus(ctx, id, status)
}
