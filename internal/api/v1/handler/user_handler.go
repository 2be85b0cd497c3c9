package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"app/internal/api/v1/dto"
	"app/internal/apierr"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
)

type UserHandler struct {
	userService   service.UserService
	creditService service.CreditService
	subService    service.SubscriptionService
	validate      *validator.Validate
}

func NewUserHandler(userService service.UserService, creditService service.CreditService, subService service.SubscriptionService, v *validator.Validate) *UserHandler {
	return &UserHandler{userService: userService, creditService: creditService, subService: subService, validate: v}
}

// RegisterRoutes mounts v1 user routes
func (h *UserHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/users/me", authMw(http.HandlerFunc(h.handleUsers)))
	mux.Handle("/users/me/preferences", authMw(http.HandlerFunc(h.updatePreferences)))
	mux.Handle("/users/me/credits", authMw(http.HandlerFunc(h.getCredits)))
	mux.Handle("/users/me/subscription", authMw(http.HandlerFunc(h.getSubscription)))
}

func (h *UserHandler) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createUser(w, r)
	case http.MethodGet:
		h.getProfile(w, r)
	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// createUser godoc
// @Summary Provision the authenticated user's account
// @Description Creates the account row on first sign-in. New accounts start on
// @Description the free tier in pending_verification.
// @Tags users
// @Accept json
// @Produce json
// @Param user body dto.UserCreateDTO true "User provisioning request"
// @Success 201 {object} dto.UserResponseDTO
// @Failure 400 {object} dto.APIResponse
// @Failure 409 {object} dto.APIResponse "already registered"
// @Router /users/me [post]
func (h *UserHandler) createUser(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	var req dto.UserCreateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidJSON(w)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeValidationError(w, err)
		return
	}

	created, err := h.userService.Create(r.Context(), &model.User{
		UserID:      userID,
		Email:       req.Email,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		if err == service.ErrEmailAlreadyRegistered {
			writeError(w, apierr.New(apierr.CodeAlreadyExists, "Email already registered"))
			return
		}
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, dto.UserResponseFromModel(created))
}

// getProfile godoc
// @Summary Get the authenticated user's profile
// @Description Account detail plus the concrete limits of the user's tier.
// @Tags users
// @Produce json
// @Success 200 {object} dto.ProfileResponseDTO
// @Failure 404 {object} dto.APIResponse
// @Router /users/me [get]
func (h *UserHandler) getProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	profile, err := h.userService.GetProfile(r.Context(), userID)
	if err != nil {
		if err == service.ErrUserNotFound {
			writeError(w, apierr.New(apierr.CodeNotFound, "User not found"))
			return
		}
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, dto.ProfileResponseDTO{
		User: dto.UserResponseFromModel(profile.User),
		Limits: dto.EntitlementDTO{
			CreditsPerMonth:   profile.Entitlement.CreditsPerMonth,
			MaxConcurrentJobs: profile.Entitlement.MaxConcurrentJobs,
			MaxResolution:     profile.Entitlement.MaxResolution,
			MaxNiches:         profile.Entitlement.MaxNiches,
			AllowedPlatforms:  profile.Entitlement.AllowedPlatforms,
			RateLimitPerMin:   profile.Entitlement.RateLimitPerMin,
		},
	})
}

// updatePreferences godoc
// @Summary Update export and notification preferences
// @Tags users
// @Accept json
// @Produce json
// @Param preferences body model.UserPreferences true "New preferences"
// @Success 200 {object} dto.UserResponseDTO
// @Failure 400 {object} dto.APIResponse
// @Router /users/me/preferences [put]
func (h *UserHandler) updatePreferences(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := middleware.UserID(r.Context())

	var prefs model.UserPreferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		writeInvalidJSON(w)
		return
	}

	updated, err := h.userService.UpdatePreferences(r.Context(), userID, prefs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, dto.UserResponseFromModel(updated))
}

// getCredits godoc
// @Summary Get the credit balance and recent transactions
// @Description Balance is derived from the append-only ledger, so it always
// @Description reconciles with the transaction history.
// @Tags users
// @Produce json
// @Param limit query int false "Number of recent transactions (1-100, default 20)"
// @Success 200 {object} dto.CreditsResponseDTO
// @Router /users/me/credits [get]
func (h *UserHandler) getCredits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := middleware.UserID(r.Context())

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			writeError(w, apierr.New(apierr.CodeInvalidInput, "limit must be between 1 and 100"))
			return
		}
		limit = n
	}

	balance, err := h.creditService.GetBalance(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	txns, err := h.creditService.GetTransactions(r.Context(), userID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, dto.CreditsResponseDTO{Balance: *balance, RecentTransactions: txns})
}

// getSubscription godoc
// @Summary Get the current subscription
// @Tags users
// @Produce json
// @Success 200 {object} model.UserSubscription
// @Failure 404 {object} dto.APIResponse
// @Router /users/me/subscription [get]
func (h *UserHandler) getSubscription(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := middleware.UserID(r.Context())

	sub, err := h.subService.GetSubscription(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if sub == nil {
		writeError(w, apierr.New(apierr.CodeNotFound, "No subscription on file"))
		return
	}
	writeData(w, http.StatusOK, sub)
}
