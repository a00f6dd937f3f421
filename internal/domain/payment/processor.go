package payment

import (
	"context"
	"errors"
)

var (
	ErrIntentNotFound = errors.New("payment: intent not found")
	ErrInvalidAmount  = errors.New("payment: amount must be greater than zero")
	// ErrIntentSettled means the intent already took the money and can only be refunded.
	ErrIntentSettled = errors.New("payment: intent already settled")
)

type Status string

const (
	StatusRequiresAction Status = "requires_action"
	StatusProcessing     Status = "processing"
	StatusSucceeded      Status = "succeeded"
	StatusFailed         Status = "failed"
	StatusCanceled       Status = "canceled"
	StatusRefunded       Status = "refunded"
)

type IntentRequest struct {
	// Amount is in integer minor currency units.
	Amount   int64
	Currency string
	Metadata map[string]string
}

type Intent struct {
	ID           string
	Status       Status
	ClientSecret string
	Amount       int64
	Currency     string
	Metadata     map[string]string
}

// Gateway is the external payment processor.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (Intent, error)
	RefundIntent(ctx context.Context, intentID string) error
	// CancelIntent voids an intent that has not taken the money yet.
	CancelIntent(ctx context.Context, intentID string) error
}
