package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/rentalytics/rei-gateway/internal/model"
	"github.com/rentalytics/rei-gateway/internal/service/billing"
	"github.com/stripe/stripe-go/v78/webhook"
)

type checkoutSessionReq struct {
	UserID       string `json:"userId"`
	BillingCycle string `json:"billingCycle"`
}

func checkoutSessionHandler(billingSvc *billing.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req checkoutSessionReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if req.UserID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "userId is required"})
		}
		cycle, ok := model.ParseBillingCycle(req.BillingCycle)
		if !ok {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid billingCycle"})
		}

		sess, err := billingSvc.CreateCheckoutSession(c.Request().Context(), req.UserID, cycle)
		if err != nil {
			log.Errorf("checkout session failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to create checkout session"})
		}

		return c.JSON(http.StatusOK, map[string]string{
			"sessionId": sess.ID,
			"url":       sess.URL,
		})
	}
}

type cancelReq struct {
	UserID             string `json:"userId"`
	CancelSubscription bool   `json:"cancelSubscription"`
}

func cancelSubscriptionHandler(billingSvc *billing.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req cancelReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if req.UserID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "userId is required"})
		}

		sub, err := billingSvc.SetCancelAtPeriodEnd(c.Request().Context(), req.UserID, req.CancelSubscription)
		if err != nil {
			switch {
			case errors.Is(err, billing.ErrUserNotFound), errors.Is(err, billing.ErrNoSubscription):
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "no active subscription found"})
			default:
				log.Errorf("cancel subscription failed: %v", err)

				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to update subscription"})
			}
		}

		msg := "Subscription will remain active."
		if sub.CancelAtPeriodEnd {
			msg = "Subscription will be cancelled at the end of the billing period."
		}

		return c.JSON(http.StatusOK, map[string]any{
			"success": true,
			"message": msg,
		})
	}
}

type changeCycleReq struct {
	UserID          string `json:"userId"`
	NewBillingCycle string `json:"newBillingCycle"`
}

func changeBillingCycleHandler(billingSvc *billing.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req changeCycleReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if req.UserID == "" || req.NewBillingCycle == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "userId and newBillingCycle are required"})
		}
		cycle, ok := model.ParseBillingCycle(req.NewBillingCycle)
		if !ok {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid newBillingCycle"})
		}

		err := billingSvc.ChangeBillingCycle(c.Request().Context(), req.UserID, cycle)
		if err != nil {
			switch {
			case errors.Is(err, billing.ErrUserNotFound), errors.Is(err, billing.ErrNoSubscription):
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "no active subscription found"})
			case errors.Is(err, billing.ErrNoSubscriptionItems):
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "subscription has no items"})
			default:
				log.Errorf("change billing cycle failed: %v", err)

				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to change billing cycle"})
			}
		}

		return c.JSON(http.StatusOK, map[string]any{
			"success": true,
			"message": "Billing cycle changed to " + cycle.String() + ".",
		})
	}
}

// webhookHandler verifies the Stripe signature and applies the event.
// Handled and ignored event types both acknowledge with 200 so the provider
// stops redelivering; only internal failures return 500.
func webhookHandler(billingSvc *billing.Service, webhookSecret string) echo.HandlerFunc {
	return func(c echo.Context) error {
		payload, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "failed to read body"})
		}

		event, err := webhook.ConstructEvent(payload, c.Request().Header.Get("Stripe-Signature"), webhookSecret)
		if err != nil {
			log.Warnf("webhook signature verification failed: %v", err)

			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid signature"})
		}

		if err := billingSvc.HandleEvent(c.Request().Context(), event); err != nil {
			log.Errorf("webhook event %s failed: %v", event.Type, err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to process event"})
		}

		return c.JSON(http.StatusOK, map[string]bool{"received": true})
	}
}
