package ledger

import (
	"context"
	"fmt"
	"time"
)

// recordMovement validates the sign convention for the movement type and
// persists the row inside the caller's transaction. One row is written per
// batch touched, so multi-batch deductions stay fully traceable.
func recordMovement(ctx context.Context, tx TxRepository, m Movement) error {
	if m.Quantity == 0 {
		return fmt.Errorf("%w: movement quantity must be non-zero", ErrValidation)
	}
	switch m.Type {
	case MovementTransferIn:
		if m.Quantity < 0 {
			return fmt.Errorf("%w: transfer-in movement must be positive", ErrValidation)
		}
	case MovementTransferOut:
		if m.Quantity > 0 {
			return fmt.Errorf("%w: transfer-out movement must be negative", ErrValidation)
		}
	case MovementAdjust:
	default:
		return fmt.Errorf("%w: unknown movement type %q", ErrValidation, m.Type)
	}
	if m.ReferenceType == "" || m.ReferenceID == 0 {
		return fmt.Errorf("%w: movement requires a business reference", ErrValidation)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return tx.InsertMovement(ctx, m)
}
