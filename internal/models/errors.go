package models

import "errors"

var (
	// Request errors
	ErrValidation = errors.New("validation failed")

	// Lookup errors
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDebtNotFound        = errors.New("debt not found")
	ErrCampusNotFound      = errors.New("campus not found")
	ErrCardNotFound        = errors.New("card not found")

	// Integrity errors
	ErrFolioConflict       = errors.New("folio allocation conflict, retry the request")
	ErrDebtHasTransactions = errors.New("debt has linked transactions")
	ErrRequestInProgress   = errors.New("a request with this idempotency key is in progress")
)
