// Package gateway talks to whatever actually moves the money. Charges are
// always made outside the zone lock.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-settlement/internal/clock"
	"ms-settlement/internal/config"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
)

// ChargeResult is the gateway's answer to a charge it could process. A
// transport or provider failure is reported as an error instead.
type ChargeResult struct {
	Reference     string
	Approved      bool
	DeclineReason string
}

type Gateway interface {
	Charge(ctx context.Context, payment models.Payment) (ChargeResult, error)
	Refund(ctx context.Context, payment models.Payment, reason string) error
}

// Simulated approves every charge after a fixed delay.
type Simulated struct {
	clock clock.Clock
	delay time.Duration
	log   *logger.Logger
}

func NewSimulated(clk clock.Clock, delay time.Duration, log *logger.Logger) *Simulated {
	return &Simulated{clock: clk, delay: delay, log: log}
}

func (s *Simulated) Charge(ctx context.Context, payment models.Payment) (ChargeResult, error) {
	if err := s.wait(ctx); err != nil {
		return ChargeResult{}, err
	}
	ref := "sim_" + uuid.NewString()
	s.log.LogPayment("CHARGE", payment.ID, fmt.Sprintf("simulated charge %s of %d %s", ref, payment.Amount, payment.Currency))
	return ChargeResult{Reference: ref, Approved: true}, nil
}

func (s *Simulated) Refund(ctx context.Context, payment models.Payment, reason string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	s.log.LogPayment("REFUND", payment.ID, fmt.Sprintf("simulated refund of %s: %s", payment.GatewayReference, reason))
	return nil
}

func (s *Simulated) wait(ctx context.Context) error {
	if s.delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-s.clock.After(s.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// New builds the gateway named by cfg.Gateway.
func New(cfg config.SettlementConfig, clk clock.Clock, log *logger.Logger) (Gateway, error) {
	switch cfg.Gateway {
	case "", "simulated":
		return NewSimulated(clk, cfg.SimulatedDelay, log), nil
	case "stripe":
		gw, err := NewStripe(cfg.StripeSecretKey, log)
		if err != nil {
			return nil, err
		}
		return gw, nil
	default:
		return nil, fmt.Errorf("unknown payment gateway %q", cfg.Gateway)
	}
}
