package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
)

var ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")

// Stripe charges through PaymentIntents. Payment methods are not collected by
// this service, so the payment's method is mapped onto a Stripe test method.
type Stripe struct {
	client *client.API
	log    *logger.Logger
}

func NewStripe(secretKey string, log *logger.Logger) (*Stripe, error) {
	if secretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY not set")
		return nil, ErrStripeClientInitFailed
	}
	sc := client.New(secretKey, nil)
	if sc == nil {
		return nil, ErrStripeClientInitFailed
	}
	log.Info("STRIPE", "Stripe client initialized successfully")
	return &Stripe{client: sc, log: log}, nil
}

func (s *Stripe) Charge(ctx context.Context, payment models.Payment) (ChargeResult, error) {
	params := intentParams(payment)
	params.Context = ctx

	pi, err := s.client.PaymentIntents.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			s.log.Warn("STRIPE", fmt.Sprintf("Card declined for payment %s: %s", payment.ID, stripeErr.Msg))
			return ChargeResult{Approved: false, DeclineReason: string(stripeErr.Code)}, nil
		}
		s.log.Error("STRIPE", fmt.Sprintf("Failed to create payment intent for %s: %v", payment.ID, err))
		return ChargeResult{}, err
	}

	s.log.Info("STRIPE", fmt.Sprintf("Payment intent %s is %s (payment %s)", pi.ID, pi.Status, payment.ID))
	return resultFromIntent(pi), nil
}

func (s *Stripe) Refund(ctx context.Context, payment models.Payment, reason string) error {
	if payment.GatewayReference == "" {
		return fmt.Errorf("payment %s has no gateway reference", payment.ID)
	}
	params := refundParams(payment, reason)
	params.Context = ctx

	r, err := s.client.Refunds.New(params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Refund for payment %s failed: %v", payment.ID, err))
		return err
	}
	s.log.Info("STRIPE", fmt.Sprintf("Refund %s is %s (payment %s)", r.ID, r.Status, payment.ID))
	return nil
}

func intentParams(payment models.Payment) *stripe.PaymentIntentParams {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(payment.Amount),
		Currency:           stripe.String(strings.ToLower(payment.Currency)),
		PaymentMethod:      stripe.String(stripeMethod(payment.Method)),
		Confirm:            stripe.Bool(true),
		PaymentMethodTypes: []*string{stripe.String("card")},
	}
	params.AddMetadata("payment_id", payment.ID)
	params.AddMetadata("ticket_id", payment.TicketID)
	params.AddMetadata("user_id", payment.UserID)
	params.SetIdempotencyKey("charge-" + payment.ID)
	return params
}

// refundParams keys the refund on the payment id so a retried or duplicated
// request cannot return the money twice.
func refundParams(payment models.Payment, reason string) *stripe.RefundParams {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(payment.GatewayReference),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.AddMetadata("payment_id", payment.ID)
	params.AddMetadata("reason", reason)
	params.SetIdempotencyKey("refund-" + payment.ID)
	return params
}

func stripeMethod(method models.PaymentMethod) string {
	switch method {
	case models.MethodDebitCard:
		return "pm_card_visa_debit"
	default:
		return "pm_card_visa"
	}
}

// resultFromIntent maps a confirmed intent to a charge result. Anything short
// of succeeded counts as a decline since this service never waits on customer
// actions.
func resultFromIntent(pi *stripe.PaymentIntent) ChargeResult {
	if pi.Status == stripe.PaymentIntentStatusSucceeded {
		return ChargeResult{Reference: pi.ID, Approved: true}
	}
	reason := string(pi.Status)
	if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		reason = pi.LastPaymentError.Msg
	}
	return ChargeResult{Reference: pi.ID, Approved: false, DeclineReason: reason}
}
