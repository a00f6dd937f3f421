package order

import "fmt"

// Stage is the internal workflow position, finer grained than Status.
type Stage string

const (
	StageCreated            Stage = "created"
	StageReservationPending Stage = "reservation_pending"
	StageReserved           Stage = "reserved"
	StageReservationFailed  Stage = "reservation_failed"
	StageAwaitingPayment    Stage = "awaiting_payment"
	StagePaid               Stage = "paid"
	StageProcessing         Stage = "processing"
	StageShipped            Stage = "shipped"
	StageDelivered          Stage = "delivered"
	StageCancelled          Stage = "cancelled"
	StageRefunded           Stage = "refunded"
)

var stageTransitions = map[Stage][]Stage{
	StageCreated:            {StageReservationPending, StageCancelled},
	StageReservationPending: {StageReserved, StageReservationFailed, StageCancelled},
	StageReserved:           {StageAwaitingPayment, StageCancelled},
	StageAwaitingPayment:    {StagePaid, StageCancelled},
	StagePaid:               {StageProcessing, StageRefunded, StageCancelled},
	StageProcessing:         {StageShipped, StageRefunded, StageCancelled},
	StageShipped:            {StageDelivered},
	StageDelivered:          nil,
	StageReservationFailed:  nil,
	StageCancelled:          nil,
	StageRefunded:           nil,
}

func (s Stage) Valid() bool {
	_, ok := stageTransitions[s]
	return ok
}

func (s Stage) Terminal() bool {
	next, ok := stageTransitions[s]
	return ok && len(next) == 0
}

func CanAdvance(from, to Stage) bool {
	for _, s := range stageTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

var statusTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  nil,
	StatusCancelled:  nil,
}

// ValidateStatusChange enforces forward-only progression plus cancellation before shipping.
// Leaving pending or shipping requires a paid order.
func ValidateStatusChange(from, to Status, payment PaymentStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	allowed := false
	for _, s := range statusTransitions[from] {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if (to == StatusProcessing || to == StatusShipped || to == StatusDelivered) && payment != PaymentPaid {
		return fmt.Errorf("%w: %s requires a paid order, payment is %s", ErrInvalidTransition, to, payment)
	}
	return nil
}
