/**
 * @description
 * This file implements the escrow policy engine: a pure classification of a
 * transfer amount into a settlement mode given configured thresholds. The
 * decision is deterministic and free of I/O so the client and the backend can
 * recompute it independently without ever diverging.
 *
 * @notes
 * - Thresholds are expressed in coins, the platform's smallest virtual-currency
 *   unit. Fiat conversion happens outside this service.
 * - The decision is recomputed on every transfer request and never cached.
 */

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAmount signals a non-positive transfer amount. Raised before
	// any gateway call.
	ErrInvalidAmount = errors.New("amount must be a positive number of coins")
	// ErrInvalidThresholds signals a malformed threshold configuration. This
	// is an ops-level fault, not a per-request condition.
	ErrInvalidThresholds = errors.New("invalid settlement thresholds")
)

// Thresholds holds the two policy boundaries that split amounts into the
// three settlement modes. Must satisfy 0 <= DirectMax < OptionalMax.
type Thresholds struct {
	DirectMax   int64 // in coins; amounts up to and including this settle directly
	OptionalMax int64 // in coins; amounts above this always escrow
}

// Validate checks the threshold ordering invariant.
func (t Thresholds) Validate() error {
	if t.DirectMax < 0 {
		return fmt.Errorf("%w: direct_max %d is negative", ErrInvalidThresholds, t.DirectMax)
	}
	if t.DirectMax >= t.OptionalMax {
		return fmt.Errorf("%w: direct_max %d must be below optional_max %d", ErrInvalidThresholds, t.DirectMax, t.OptionalMax)
	}
	return nil
}

// DecideMode maps a transfer amount to a settlement mode:
//
//	amount <= DirectMax              -> direct
//	DirectMax < amount <= OptionalMax -> optional
//	amount > OptionalMax             -> mandatory
//
// Validation failures are reported before any side effect so callers can rely
// on a returned error meaning "nothing happened".
func DecideMode(amount int64, t Thresholds) (SettlementMode, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	if amount <= 0 {
		return "", fmt.Errorf("%w: got %d", ErrInvalidAmount, amount)
	}
	switch {
	case amount <= t.DirectMax:
		return ModeDirect, nil
	case amount <= t.OptionalMax:
		return ModeOptional, nil
	default:
		return ModeMandatory, nil
	}
}
