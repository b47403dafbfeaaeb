package engine

import "barledger/backend/internal/domain"

// BackAmount selects the per-unit commission for a product at the bill's
// current seating tier. Only bottles carry different amounts per tier.
func BackAmount(product domain.Product, tier domain.SeatingTier) int64 {
	if tier == domain.SeatingDesignated {
		return product.BackDesignated
	}
	return product.BackFree
}
