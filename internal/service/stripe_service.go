package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"app/internal/config"
	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	billingsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	customerpkg "github.com/stripe/stripe-go/v82/customer"
	subscriptionpkg "github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeService manages Stripe integration: subscription checkout, one-time
// credit package purchases, the customer portal, and webhook processing.
type StripeService struct {
	cfg        *config.Config
	userRepo   repository.UserRepository
	creditRepo repository.CreditRepository
	subSvc     SubscriptionService
	logger     zerolog.Logger
}

// NewStripeService initializes Stripe key and returns service with a scoped logger
func NewStripeService(cfg *config.Config, userRepo repository.UserRepository, creditRepo repository.CreditRepository, subSvc SubscriptionService, logger zerolog.Logger) *StripeService {
	stripe.Key = cfg.StripeSecretKey
	lg := logger.With().Str("service", "StripeService").Logger()
	return &StripeService{cfg: cfg, userRepo: userRepo, creditRepo: creditRepo, subSvc: subSvc, logger: lg}
}

// tierForPrice maps a Stripe price ID back to a subscription tier.
func (s *StripeService) tierForPrice(priceID string) string {
	switch priceID {
	case s.cfg.StripePriceStarter:
		return string(model.RoleStarter)
	case s.cfg.StripePricePro:
		return string(model.RolePro)
	case s.cfg.StripePriceAgency:
		return string(model.RoleAgency)
	}
	return ""
}

func (s *StripeService) priceForTier(tier string) string {
	switch tier {
	case string(model.RoleStarter):
		return s.cfg.StripePriceStarter
	case string(model.RolePro):
		return s.cfg.StripePricePro
	case string(model.RoleAgency):
		return s.cfg.StripePriceAgency
	}
	return ""
}

// getUserIDFromEvent resolves a user ID from webhook metadata or customer ID.
func (s *StripeService) getUserIDFromEvent(ctx context.Context, metadata map[string]string, customerID string) (string, error) {
	if userID, ok := metadata["user_id"]; ok && userID != "" {
		return userID, nil
	}
	if customerID == "" {
		return "", errors.New("cannot determine user: missing metadata and customer id")
	}
	s.logger.Warn().Str("stripe_customer_id", customerID).Msg("Missing user_id metadata; looking up user by customer ID")
	u, err := s.userRepo.GetUserByStripeCustomerID(ctx, customerID)
	if err != nil {
		return "", fmt.Errorf("failed to lookup user by Stripe customer ID: %w", err)
	}
	if u == nil {
		return "", fmt.Errorf("no user found for customer ID: %s", customerID)
	}
	return u.UserID, nil
}

// GetOrCreateCustomer ensures a Stripe Customer exists for a user.
func (s *StripeService) GetOrCreateCustomer(ctx context.Context, user *model.User) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}
	s.logger.Warn().Str("user_id", user.UserID).Msg("No Stripe customer ID found, creating customer as fallback")
	return s.CreateCustomer(ctx, user)
}

// CreateCustomer creates a new Stripe customer for a user
func (s *StripeService) CreateCustomer(ctx context.Context, user *model.User) (string, error) {
	params := &stripe.CustomerParams{
		Email:    stripe.String(user.Email),
		Name:     stripe.String(user.DisplayName),
		Metadata: map[string]string{"user_id": user.UserID},
	}
	cust, err := customerpkg.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("Failed to create Stripe customer")
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	if err := s.userRepo.UpdateStripeCustomerID(ctx, user.UserID, cust.ID); err != nil {
		s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("Failed to store stripe customer id")
		return "", fmt.Errorf("store stripe customer id: %w", err)
	}
	return cust.ID, nil
}

// CreateCheckoutSession creates a subscription checkout session for a tier.
func (s *StripeService) CreateCheckoutSession(ctx context.Context, userID, tier string) (string, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch user for checkout session")
		return "", fmt.Errorf("fetch user: %w", err)
	}
	if user == nil {
		return "", fmt.Errorf("user not found: %s", userID)
	}
	customerID, err := s.GetOrCreateCustomer(ctx, user)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to get or create Stripe customer for checkout session")
		return "", err
	}
	priceID := s.priceForTier(tier)
	if priceID == "" {
		return "", fmt.Errorf("invalid tier: %s", tier)
	}
	sessParams := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(customerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems:          []*stripe.CheckoutSessionLineItemParams{{Price: stripe.String(priceID), Quantity: stripe.Int64(1)}},
		Mode:               stripe.String(stripe.CheckoutSessionModeSubscription),
		SuccessURL:         stripe.String(s.cfg.StripeSuccessURL),
		CancelURL:          stripe.String(s.cfg.StripeCancelURL),
		Metadata:           map[string]string{"user_id": userID},
	}
	sess, err := checkoutsession.New(sessParams)
	if err != nil {
		s.logger.Error().Err(err).Str("tier", tier).Msg("Failed to create Stripe checkout session")
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

// CreateCreditCheckoutSession creates a one-time payment session for a credit
// package. Credits are granted by the webhook, never by the redirect.
func (s *StripeService) CreateCreditCheckoutSession(ctx context.Context, userID, packageID string) (string, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("fetch user: %w", err)
	}
	if user == nil {
		return "", fmt.Errorf("user not found: %s", userID)
	}
	pkg, err := s.creditRepo.GetCreditPackageByID(ctx, packageID)
	if err != nil {
		return "", fmt.Errorf("fetch credit package: %w", err)
	}
	if pkg == nil || !pkg.IsActive {
		return "", fmt.Errorf("credit package not found: %s", packageID)
	}
	customerID, err := s.GetOrCreateCustomer(ctx, user)
	if err != nil {
		return "", err
	}
	sessParams := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(customerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String("usd"),
				UnitAmount: stripe.Int64(int64(pkg.PriceCents)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(pkg.Name),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		Mode:       stripe.String(stripe.CheckoutSessionModePayment),
		SuccessURL: stripe.String(s.cfg.StripeSuccessURL),
		CancelURL:  stripe.String(s.cfg.StripeCancelURL),
		Metadata: map[string]string{
			"user_id":        userID,
			"credit_package": pkg.ID,
			"credits":        strconv.Itoa(pkg.Credits),
		},
	}
	sess, err := checkoutsession.New(sessParams)
	if err != nil {
		s.logger.Error().Err(err).Str("package_id", packageID).Msg("Failed to create credit checkout session")
		return "", fmt.Errorf("create credit checkout session: %w", err)
	}
	return sess.URL, nil
}

// CreatePortalSession creates a Stripe Customer Portal session
func (s *StripeService) CreatePortalSession(ctx context.Context, userID string) (string, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch user for portal session")
		return "", fmt.Errorf("fetch user: %w", err)
	}
	if user == nil || user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return "", fmt.Errorf("no stripe customer for user: %s", userID)
	}
	params := &stripe.BillingPortalSessionParams{Customer: stripe.String(*user.StripeCustomerID), ReturnURL: stripe.String(s.cfg.StripePortalReturnURL)}
	sess, err := billingsession.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to create Stripe billing portal session")
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return sess.URL, nil
}

// subscriptionPeriod extracts the tier and period bounds from a subscription.
func (s *StripeService) subscriptionPeriod(sub *stripe.Subscription) (tier string, start, end time.Time, err error) {
	if len(sub.Items.Data) == 0 {
		return "", time.Time{}, time.Time{}, fmt.Errorf("subscription %s has no items", sub.ID)
	}
	item := sub.Items.Data[0]
	if item.Price == nil {
		return "", time.Time{}, time.Time{}, fmt.Errorf("subscription %s has no price", sub.ID)
	}
	tier = s.tierForPrice(item.Price.ID)
	if tier == "" {
		return "", time.Time{}, time.Time{}, fmt.Errorf("unknown price ID %s on subscription %s", item.Price.ID, sub.ID)
	}
	return tier, time.Unix(item.CurrentPeriodStart, 0), time.Unix(item.CurrentPeriodEnd, 0), nil
}

// HandleWebhook processes Stripe webhook events
func (s *StripeService) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read Stripe webhook payload")
		http.Error(w, "failed to read payload", http.StatusBadRequest)
		return
	}
	sig := r.Header.Get("Stripe-Signature")
	event, err := webhook.ConstructEvent(payload, sig, s.cfg.StripeWebhookSecret)
	if err != nil {
		s.logger.Error().Err(err).Msg("Signature verification failed for Stripe webhook")
		http.Error(w, "signature verification failed", http.StatusBadRequest)
		return
	}
	s.logger.Info().Str("event_type", string(event.Type)).Msg("Stripe webhook received")

	ctx := r.Context()
	switch event.Type {
	case "checkout.session.completed":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			s.logger.Error().Err(err).Msg("Invalid checkout.session data")
			http.Error(w, "invalid checkout.session data", http.StatusBadRequest)
			return
		}
		// One-time credit package purchase
		if cs.Mode == stripe.CheckoutSessionModePayment {
			s.handleCreditPurchase(ctx, w, &cs)
			return
		}
		if cs.Subscription == nil {
			s.logger.Error().Str("session_id", cs.ID).Msg("Checkout session completed without subscription")
			http.Error(w, "missing subscription", http.StatusBadRequest)
			return
		}
		subObj, err := subscriptionpkg.Get(cs.Subscription.ID, nil)
		if err != nil {
			s.logger.Error().Err(err).Str("subscription_id", cs.Subscription.ID).Msg("Failed to fetch subscription details")
			http.Error(w, "failed to fetch subscription details", http.StatusInternalServerError)
			return
		}
		tier, start, end, err := s.subscriptionPeriod(subObj)
		if err != nil {
			s.logger.Error().Err(err).Msg("Could not resolve tier from subscription")
			http.Error(w, "could not resolve tier", http.StatusInternalServerError)
			return
		}
		userID := cs.Metadata["user_id"]
		if userID == "" {
			s.logger.Error().Str("subscription_id", cs.Subscription.ID).Msg("Missing user_id in checkout session metadata")
			http.Error(w, "missing user_id in metadata", http.StatusBadRequest)
			return
		}
		if err := s.subSvc.UpsertStripeSubscription(ctx, userID, tier, start, end, "active", subObj.ID); err != nil {
			s.logger.Error().Err(err).Msg("Failed to save subscription on checkout.session.completed")
			http.Error(w, "failed to save subscription", http.StatusInternalServerError)
			return
		}
	case "invoice.payment_succeeded":
		s.handleInvoice(ctx, w, event.Data.Raw, "active")
		return
	case "invoice.payment_failed":
		s.handleInvoice(ctx, w, event.Data.Raw, "past_due")
		return
	case "customer.subscription.updated":
		var ss stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &ss); err != nil {
			s.logger.Error().Err(err).Msg("Invalid customer.subscription.updated payload")
			http.Error(w, "invalid subscription data", http.StatusBadRequest)
			return
		}
		status := string(ss.Status)
		if ss.CancelAtPeriodEnd || ss.Status == stripe.SubscriptionStatusCanceled {
			status = "cancelled"
		}
		tier, start, end, err := s.subscriptionPeriod(&ss)
		if err != nil {
			s.logger.Error().Err(err).Msg("Could not resolve tier from subscription update")
			http.Error(w, "could not resolve tier", http.StatusInternalServerError)
			return
		}
		userID, err := s.getUserIDFromEvent(ctx, ss.Metadata, ss.Customer.ID)
		if err != nil {
			s.logger.Error().Err(err).Str("subscription_id", ss.ID).Msg("Failed to determine user ID from subscription")
			http.Error(w, "failed to identify user", http.StatusInternalServerError)
			return
		}
		if err := s.subSvc.UpsertStripeSubscription(ctx, userID, tier, start, end, status, ss.ID); err != nil {
			s.logger.Error().Err(err).Str("user_id", userID).Str("tier", tier).Msg("Failed to update subscription on customer.subscription.updated")
			http.Error(w, "failed to update subscription", http.StatusInternalServerError)
			return
		}
	case "customer.subscription.deleted":
		var ss stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &ss); err != nil {
			s.logger.Error().Err(err).Msg("Invalid customer.subscription.deleted payload")
			http.Error(w, "invalid subscription data", http.StatusBadRequest)
			return
		}
		userID, err := s.getUserIDFromEvent(ctx, ss.Metadata, ss.Customer.ID)
		if err != nil {
			s.logger.Error().Err(err).Str("subscription_id", ss.ID).Msg("Failed to determine user ID from subscription")
			http.Error(w, "failed to identify user", http.StatusInternalServerError)
			return
		}
		if err := s.subSvc.DowngradeUserToFreeTier(ctx, userID); err != nil {
			s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to downgrade subscription on customer.subscription.deleted")
			http.Error(w, "failed to downgrade subscription", http.StatusInternalServerError)
			return
		}
	default:
		s.logger.Warn().Str("event_type", string(event.Type)).Msg("Unhandled Stripe webhook event")
	}
	w.WriteHeader(http.StatusOK)
}

// handleCreditPurchase grants the purchased credits on a completed one-time
// payment session.
func (s *StripeService) handleCreditPurchase(ctx context.Context, w http.ResponseWriter, cs *stripe.CheckoutSession) {
	userID := cs.Metadata["user_id"]
	credits, err := strconv.Atoi(cs.Metadata["credits"])
	if userID == "" || err != nil || credits <= 0 {
		s.logger.Error().Str("session_id", cs.ID).Msg("Credit purchase session missing user_id or credits metadata")
		http.Error(w, "invalid credit purchase metadata", http.StatusBadRequest)
		return
	}
	desc := fmt.Sprintf("Credit package purchase (%s)", cs.Metadata["credit_package"])
	if _, err := s.creditRepo.GrantCredits(ctx, userID, model.TxnPurchase, credits, desc); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Int("credits", credits).Msg("Failed to grant purchased credits")
		http.Error(w, "failed to grant credits", http.StatusInternalServerError)
		return
	}
	s.logger.Info().Str("user_id", userID).Int("credits", credits).Msg("Granted purchased credits")
	w.WriteHeader(http.StatusOK)
}

// handleInvoice updates the subscription period from an invoice event.
func (s *StripeService) handleInvoice(ctx context.Context, w http.ResponseWriter, raw json.RawMessage, status string) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(raw, &invoice); err != nil {
		s.logger.Error().Err(err).Msg("Invalid invoice payload")
		http.Error(w, "invalid invoice data", http.StatusBadRequest)
		return
	}
	userID, err := s.getUserIDFromEvent(ctx, invoice.Metadata, invoice.Customer.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("invoice_id", invoice.ID).Msg("Failed to determine user ID from invoice")
		http.Error(w, "failed to identify user", http.StatusInternalServerError)
		return
	}

	var subID string
	if invoice.Lines != nil {
		for _, line := range invoice.Lines.Data {
			if line.Subscription != nil && line.Subscription.ID != "" {
				subID = line.Subscription.ID
				break
			}
		}
	}
	if subID == "" {
		// One-time invoices carry no subscription to update.
		s.logger.Info().Str("invoice_id", invoice.ID).Msg("Invoice has no subscription, skipping subscription update")
		w.WriteHeader(http.StatusOK)
		return
	}

	sub, err := subscriptionpkg.Get(subID, nil)
	if err != nil {
		s.logger.Error().Err(err).Str("subscription_id", subID).Msg("Failed to fetch subscription for invoice event")
		http.Error(w, "failed to fetch subscription details", http.StatusInternalServerError)
		return
	}
	tier, start, end, err := s.subscriptionPeriod(sub)
	if err != nil {
		s.logger.Error().Err(err).Msg("Could not resolve tier from invoice subscription")
		http.Error(w, "could not resolve tier", http.StatusInternalServerError)
		return
	}
	if err := s.subSvc.UpsertStripeSubscription(ctx, userID, tier, start, end, status, subID); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("tier", tier).Msg("Failed to update subscription from invoice event")
		http.Error(w, "failed to update subscription", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
