package models

import (
	"errors"
	"fmt"
)

// Error classes. Handlers map these to HTTP status codes.
var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// PalletError is a client-reportable failure belonging to one error class
type PalletError struct {
	Kind    error
	Message string
}

func (e PalletError) Error() string {
	return e.Message
}

// Is matches the error class so errors.Is(err, ErrInvalidRequest) works on every invalid-request value
func (e PalletError) Is(target error) bool {
	return target == e.Kind
}

// IsClientError reports whether err belongs to a class the client caused
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrInsufficientStock)
}

func invalid(msg string) PalletError {
	return PalletError{Kind: ErrInvalidRequest, Message: msg}
}

var (
	ErrMissingLocalID      = invalid("local_id is required")
	ErrMissingFirmName     = invalid("firm_name is required")
	ErrMissingPalletType   = invalid("pallet_type is required")
	ErrMissingEntryDate    = invalid("entry_date is required")
	ErrInvalidEntryDate    = invalid("entry_date must be formatted as YYYY-MM-DD")
	ErrInvalidReturnDate   = invalid("return_date must be formatted as YYYY-MM-DD")
	ErrInvalidDate         = invalid("date must be formatted as YYYY-MM-DD")
	ErrNegativeBoxCount    = invalid("box_count cannot be negative")
	ErrInvalidStatus       = invalid("status must be IN_STOCK or RETURNED")
	ErrMissingReturnParams = invalid("Missing parameters")
	ErrInvalidReturnCount  = invalid("count must be a positive integer")
	ErrNoData              = invalid("No data provided")
	ErrPalletNotFound      = PalletError{Kind: ErrNotFound, Message: "Pallet not found"}
)

// InsufficientStockError reports a return request that asked for more pallets than are in stock
type InsufficientStockError struct {
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock to return: requested %d, available %d", e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}
