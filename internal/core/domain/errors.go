package domain

import "errors"

// Client-facing failures. Each aborts the operation before any write.
var (
	ErrProductNotFound       = errors.New("product not found")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrSelfPurchaseForbidden = errors.New("sellers cannot purchase their own products")
	ErrOrderNotFound         = errors.New("order not found")
	ErrAlreadyDelivered      = errors.New("order is already marked as delivered")
	ErrNotAuthorized         = errors.New("not authorized")
	ErrInvalidCode           = errors.New("invalid delivery code")

	ErrInvalidListing   = errors.New("invalid listing")
	ErrInvalidCart      = errors.New("invalid cart")
	ErrDuplicateRequest = errors.New("duplicate request")
	ErrCodeExpired      = errors.New("delivery code expired")
	ErrTooManyAttempts  = errors.New("too many delivery code attempts")
	ErrUserNotFound     = errors.New("user not found")
)
