package payment

import (
	"fmt"
	"time"

	"ms-settlement/internal/domain"
	"ms-settlement/internal/models"
)

// Transition moves payment to next when the payment state machine allows it.
func Transition(payment *models.Payment, next models.PaymentStatus, now time.Time) error {
	if !payment.Status.CanTransitionTo(next) {
		err := domain.ErrInvalidTransition
		switch {
		case next == models.PaymentRefunded:
			err = domain.ErrNotCompleted
		case payment.Status != models.PaymentPending:
			err = domain.ErrPaymentNotPending
		}
		return fmt.Errorf("payment %s %s -> %s: %w", payment.ID, payment.Status, next, err)
	}

	payment.Status = next
	payment.UpdatedAt = now
	switch next {
	case models.PaymentCompleted:
		payment.SettledAt = now
	case models.PaymentRefunded:
		payment.RefundedAt = now
	}
	return nil
}
