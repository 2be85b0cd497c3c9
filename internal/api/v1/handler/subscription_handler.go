package handler

import (
	"encoding/json"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
)

// SubscriptionHandler handles billing endpoints: Stripe checkout, the
// customer portal, and the public tier and package catalogs.
type SubscriptionHandler struct {
	stripeSvc *service.StripeService
	subSvc    service.SubscriptionService
	creditSvc service.CreditService
	validate  *validator.Validate
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(stripeSvc *service.StripeService, subSvc service.SubscriptionService, creditSvc service.CreditService, v *validator.Validate) *SubscriptionHandler {
	return &SubscriptionHandler{stripeSvc: stripeSvc, subSvc: subSvc, creditSvc: creditSvc, validate: v}
}

// RegisterRoutes registers the billing endpoints. The Stripe webhook is
// mounted separately without auth; Stripe signs its own requests.
func (h *SubscriptionHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/billing/subscription/checkout", authMw(http.HandlerFunc(h.subscriptionCheckout)))
	mux.Handle("/billing/credits/checkout", authMw(http.HandlerFunc(h.creditCheckout)))
	mux.Handle("/billing/portal", authMw(http.HandlerFunc(h.portal)))
	mux.Handle("/billing/tiers", authMw(http.HandlerFunc(h.listTiers)))
	mux.Handle("/billing/packages", authMw(http.HandlerFunc(h.listPackages)))
}

// subscriptionCheckout godoc
// @Summary Start a Stripe Checkout session for a plan upgrade
// @Description Creates a subscription-mode checkout session and returns its URL.
// @Tags billing
// @Accept json
// @Produce json
// @Param checkout body dto.SubscriptionCheckoutRequestDTO true "Target tier"
// @Success 200 {object} dto.CheckoutResponseDTO
// @Failure 400 {object} dto.APIResponse
// @Router /billing/subscription/checkout [post]
func (h *SubscriptionHandler) subscriptionCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := middleware.UserID(r.Context())

	var req dto.SubscriptionCheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidJSON(w)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeValidationError(w, err)
		return
	}

	url, err := h.stripeSvc.CreateCheckoutSession(r.Context(), userID, req.Tier)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, dto.CheckoutResponseDTO{CheckoutURL: url})
}

// creditCheckout godoc
// @Summary Start a Stripe Checkout session for a credit package
// @Description Creates a payment-mode checkout session; credits are granted by
// @Description the webhook once payment settles.
// @Tags billing
// @Accept json
// @Produce json
// @Param checkout body dto.CheckoutRequestDTO true "Credit package"
// @Success 200 {object} dto.CheckoutResponseDTO
// @Failure 400 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse "unknown package"
// @Router /billing/credits/checkout [post]
func (h *SubscriptionHandler) creditCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := middleware.UserID(r.Context())

	var req dto.CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidJSON(w)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeValidationError(w, err)
		return
	}

	url, err := h.stripeSvc.CreateCreditCheckoutSession(r.Context(), userID, req.PackageID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, dto.CheckoutResponseDTO{CheckoutURL: url})
}

// portal godoc
// @Summary Create a Stripe Customer Portal session
// @Tags billing
// @Produce json
// @Success 200 {object} map[string]string "URL of the portal session"
// @Router /billing/portal [get]
func (h *SubscriptionHandler) portal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := middleware.UserID(r.Context())

	url, err := h.stripeSvc.CreatePortalSession(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"url": url})
}

// listTiers godoc
// @Summary List subscription tiers
// @Tags billing
// @Produce json
// @Success 200 {array} model.SubscriptionTier
// @Router /billing/tiers [get]
func (h *SubscriptionHandler) listTiers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	tiers, err := h.subSvc.ListTiers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, tiers)
}

// listPackages godoc
// @Summary List purchasable credit packages
// @Tags billing
// @Produce json
// @Success 200 {array} model.CreditPackage
// @Router /billing/packages [get]
func (h *SubscriptionHandler) listPackages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	packages, err := h.creditSvc.ListPackages(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, packages)
}
