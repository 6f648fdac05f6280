package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

type SimulatedConfig struct {
	Latency           time.Duration
	FailureRate       float64
	RefundFailureRate float64
}

// SimulatedGateway stands in for a real processor. Rates of 0 and 1 make it
// deterministic.
type SimulatedGateway struct {
	cfg SimulatedConfig

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulatedGateway(cfg SimulatedConfig) *SimulatedGateway {
	return &SimulatedGateway{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (g *SimulatedGateway) fails(rate float64) bool {
	if rate <= 0 {
		return false
	}
	if rate >= 1 {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64() < rate
}

func (g *SimulatedGateway) wait(ctx context.Context) error {
	if g.cfg.Latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(g.cfg.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *SimulatedGateway) Charge(ctx context.Context, req ChargeRequest) (string, error) {
	if err := g.wait(ctx); err != nil {
		return "", err
	}
	if !req.Amount.IsPositive() {
		return "", fmt.Errorf("%w: invalid amount %s", ErrDeclined, req.Amount)
	}
	if g.fails(g.cfg.FailureRate) {
		return "", fmt.Errorf("%w: card declined", ErrDeclined)
	}
	return "TXN-" + uuid.NewString(), nil
}

func (g *SimulatedGateway) Refund(ctx context.Context, req RefundRequest) (string, error) {
	if err := g.wait(ctx); err != nil {
		return "", err
	}
	if req.TransactionID == "" {
		return "", fmt.Errorf("%w: missing transaction id", ErrDeclined)
	}
	if g.fails(g.cfg.RefundFailureRate) {
		return "", fmt.Errorf("%w: refund rejected", ErrDeclined)
	}
	return "REFUND-" + uuid.NewString(), nil
}
