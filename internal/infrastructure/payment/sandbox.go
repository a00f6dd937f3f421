package payment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/google/uuid"

	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/payment"
)

// SandboxGateway simulates a card processor. Intents start in requires_action and
// settle on their first retrieval, succeeding with the configured probability.
// Intents moved to processing by Settle stay there until settled again.
type SandboxGateway struct {
	mu          sync.Mutex
	intents     map[string]domain.Intent
	successRate float64
	roll        func() float64
}

func NewSandboxGateway(successRate float64) *SandboxGateway {
	if successRate < 0 {
		successRate = 0
	}
	if successRate > 1 {
		successRate = 1
	}
	return &SandboxGateway{
		intents:     make(map[string]domain.Intent),
		successRate: successRate,
		roll:        rand.Float64,
	}
}

func (g *SandboxGateway) CreateIntent(ctx context.Context, req domain.IntentRequest) (domain.Intent, error) {
	if err := ctx.Err(); err != nil {
		return domain.Intent{}, err
	}
	if req.Amount <= 0 {
		return domain.Intent{}, domain.ErrInvalidAmount
	}
	if strings.TrimSpace(req.Currency) == "" {
		return domain.Intent{}, fmt.Errorf("payment: currency is required")
	}

	id := "pi_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	meta := make(map[string]string, len(req.Metadata))
	for k, v := range req.Metadata {
		meta[k] = v
	}
	intent := domain.Intent{
		ID:           id,
		Status:       domain.StatusRequiresAction,
		ClientSecret: id + "_secret_" + uuid.NewString()[:8],
		Amount:       req.Amount,
		Currency:     strings.ToUpper(req.Currency),
		Metadata:     meta,
	}

	g.mu.Lock()
	g.intents[id] = intent
	g.mu.Unlock()
	return intent, nil
}

func (g *SandboxGateway) RetrieveIntent(ctx context.Context, intentID string) (domain.Intent, error) {
	if err := ctx.Err(); err != nil {
		return domain.Intent{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	intent, ok := g.intents[intentID]
	if !ok {
		return domain.Intent{}, domain.ErrIntentNotFound
	}
	if intent.Status == domain.StatusRequiresAction {
		if g.roll() < g.successRate {
			intent.Status = domain.StatusSucceeded
		} else {
			intent.Status = domain.StatusFailed
		}
		g.intents[intentID] = intent
	}
	return intent, nil
}

func (g *SandboxGateway) RefundIntent(ctx context.Context, intentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	intent, ok := g.intents[intentID]
	if !ok {
		return domain.ErrIntentNotFound
	}
	switch intent.Status {
	case domain.StatusRefunded:
		return nil
	case domain.StatusSucceeded:
		intent.Status = domain.StatusRefunded
		g.intents[intentID] = intent
		return nil
	default:
		return fmt.Errorf("payment: cannot refund intent in status %s", intent.Status)
	}
}

func (g *SandboxGateway) CancelIntent(ctx context.Context, intentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	intent, ok := g.intents[intentID]
	if !ok {
		return domain.ErrIntentNotFound
	}
	switch intent.Status {
	case domain.StatusSucceeded, domain.StatusRefunded:
		return domain.ErrIntentSettled
	case domain.StatusCanceled:
		return nil
	default:
		intent.Status = domain.StatusCanceled
		g.intents[intentID] = intent
		return nil
	}
}

// Settle forces an intent into status, e.g. to simulate a customer completing 3-D Secure.
func (g *SandboxGateway) Settle(intentID string, status domain.Status) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	intent, ok := g.intents[intentID]
	if !ok {
		return domain.ErrIntentNotFound
	}
	intent.Status = status
	g.intents[intentID] = intent
	return nil
}
