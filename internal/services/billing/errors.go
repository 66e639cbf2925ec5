package billing

import "errors"

var (
	// ErrAccountNotFound is returned when the charged or credited account
	// does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidAmount is returned for non-positive credit amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrSponsorNotEligible is returned in strict mode when an account's
	// superior link points to an account without sponsor status.
	ErrSponsorNotEligible = errors.New("superior account is not a sponsor")

	// ErrInconsistent is returned when a dual-mode compensating credit
	// could not be applied after the sponsor debit committed. The two
	// balances may be out of the all-or-nothing contract and the case has
	// to be escalated for manual reconciliation.
	ErrInconsistent = errors.New("compensating credit failed, balances need reconciliation")
)
