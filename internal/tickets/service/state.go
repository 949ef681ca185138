package tickets

import (
	"fmt"
	"time"

	"ms-settlement/internal/domain"
	"ms-settlement/internal/models"
)

// Transition moves ticket to next if the ticket state machine allows it and
// stamps updated_at. The error names the guard that refused the move.
func Transition(ticket *models.Ticket, next models.TicketStatus, now time.Time) error {
	if ticket.Status.CanTransitionTo(next) {
		ticket.Status = next
		ticket.UpdatedAt = now
		if next != models.TicketPendingPayment {
			ticket.ExpiresAt = time.Time{}
		}
		return nil
	}

	var err error
	switch {
	case ticket.Status == models.TicketCancelled:
		err = domain.ErrAlreadyCancelled
	case ticket.Status == models.TicketUsed:
		err = domain.ErrAlreadyUsed
	case ticket.Status == models.TicketPaid && next == models.TicketPaid:
		err = domain.ErrAlreadyPaid
	case next == models.TicketPaid:
		err = domain.ErrTicketNotPending
	case next == models.TicketUsed:
		err = domain.ErrTicketNotPaid
	default:
		err = domain.ErrInvalidTransition
	}
	return fmt.Errorf("ticket %s %s -> %s: %w", ticket.ID, ticket.Status, next, err)
}
