package domain

import "errors"

var (
	ErrItemNotFound         = errors.New("product item not found")
	ErrInsufficientQuantity = errors.New("insufficient stock for requested quantity")
	ErrInvoiceNotFound      = errors.New("invoice not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrSignatureMismatch    = errors.New("mac not equal")
	ErrGatewayCall          = errors.New("payment gateway call failed")
	ErrSettlement           = errors.New("stock settlement failed")
	ErrAlreadySettled       = errors.New("invoice stock already settled")
	ErrNotSettled           = errors.New("invoice stock not settled")
	ErrInvalidTransition    = errors.New("invalid invoice status transition")
)
