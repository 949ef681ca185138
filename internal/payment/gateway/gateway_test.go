package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"

	"ms-settlement/internal/clock"
	"ms-settlement/internal/config"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
)

func testPayment() models.Payment {
	return models.Payment{
		ID:       "pay-1",
		TicketID: "t-1",
		UserID:   "u-1",
		Amount:   5000,
		Currency: "USD",
		Method:   models.MethodCreditCard,
	}
}

func TestSimulatedChargeWaitsOnClock(t *testing.T) {
	start := time.Date(2026, 5, 4, 18, 0, 0, 0, time.UTC)
	clk := clock.NewFake(start)
	gw := NewSimulated(clk, 2*time.Second, logger.NewNop())

	res, err := gw.Charge(context.Background(), testPayment())
	require.NoError(t, err)
	assert.True(t, res.Approved)
	assert.Contains(t, res.Reference, "sim_")
	assert.Equal(t, start.Add(2*time.Second), clk.Now())

	require.NoError(t, gw.Refund(context.Background(), testPayment(), "changed plans"))
}

func TestSimulatedChargeHonoursContext(t *testing.T) {
	gw := NewSimulated(clock.System(), 0, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gw.Charge(ctx, testPayment())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewGateway(t *testing.T) {
	gw, err := New(config.SettlementConfig{Gateway: "simulated"}, clock.System(), logger.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &Simulated{}, gw)

	_, err = New(config.SettlementConfig{Gateway: "stripe"}, clock.System(), logger.NewNop())
	assert.ErrorIs(t, err, ErrStripeClientInitFailed)

	_, err = New(config.SettlementConfig{Gateway: "paypal"}, clock.System(), logger.NewNop())
	assert.Error(t, err)
}

func TestIntentParams(t *testing.T) {
	params := intentParams(testPayment())

	assert.Equal(t, int64(5000), *params.Amount)
	assert.Equal(t, "usd", *params.Currency)
	assert.Equal(t, "pm_card_visa", *params.PaymentMethod)
	assert.True(t, *params.Confirm)
	assert.Equal(t, "pay-1", params.Metadata["payment_id"])
	assert.Equal(t, "charge-pay-1", *params.IdempotencyKey)
}

func TestRefundParams(t *testing.T) {
	p := testPayment()
	p.GatewayReference = "pi_1"
	params := refundParams(p, "event cancelled")

	assert.Equal(t, "pi_1", *params.PaymentIntent)
	assert.Equal(t, "event cancelled", params.Metadata["reason"])
	assert.Equal(t, "refund-pay-1", *params.IdempotencyKey)
}

func TestResultFromIntent(t *testing.T) {
	ok := resultFromIntent(&stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded})
	assert.Equal(t, ChargeResult{Reference: "pi_1", Approved: true}, ok)

	declined := resultFromIntent(&stripe.PaymentIntent{
		ID:               "pi_2",
		Status:           stripe.PaymentIntentStatusRequiresPaymentMethod,
		LastPaymentError: &stripe.Error{Msg: "Your card was declined."},
	})
	assert.False(t, declined.Approved)
	assert.Equal(t, "Your card was declined.", declined.DeclineReason)

	pending := resultFromIntent(&stripe.PaymentIntent{ID: "pi_3", Status: stripe.PaymentIntentStatusRequiresAction})
	assert.False(t, pending.Approved)
	assert.Equal(t, "requires_action", pending.DeclineReason)
}
