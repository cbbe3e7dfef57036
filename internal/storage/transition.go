package storage

import (
	"fmt"

	"moviebot/internal/models"
	"moviebot/internal/shared"
)

// ValidateTransition checks a requested status change before it reaches a store
func ValidateTransition(from, to models.RequestStatus, fulfillment *Fulfillment) error {
	if !models.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", shared.ErrInvalidTransition, from, to)
	}
	if to == models.StatusFulfilled && fulfillment == nil {
		return fmt.Errorf("%w: fulfillment data required for %s", shared.ErrInvalidTransition, to)
	}
	if to != models.StatusFulfilled && fulfillment != nil {
		return fmt.Errorf("%w: fulfillment data not allowed for %s", shared.ErrInvalidTransition, to)
	}
	return nil
}
