package domain

import "errors"

// Business errors. Their messages are safe to show to the caller.
var (
	ErrItemAlreadyBought  = errors.New("item is already bought")
	ErrPaymentNotFound    = errors.New("payment method not found")
	ErrNotEnoughMoney     = errors.New("not enough money on the balance")
	ErrItemNotFound       = errors.New("item not found")
	ErrItemNotPurchasable = errors.New("item is not available for purchase")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrPaymentDeclined    = errors.New("payment was declined")
	ErrInvalidTitle       = errors.New("payment method title is required")
)

var (
	ErrAccountNotFound         = errors.New("account not found")
	ErrMessageAlreadyProcessed = errors.New("inbox message already processed")
)

var businessErrors = []error{
	ErrItemAlreadyBought,
	ErrPaymentNotFound,
	ErrNotEnoughMoney,
	ErrInvalidAmount,
	ErrPaymentDeclined,
	ErrInvalidTitle,
}

// IsBusinessError reports whether err carries a message meant for the end user.
func IsBusinessError(err error) bool {
	return AsBusinessError(err) != nil
}

// AsBusinessError returns the business sentinel wrapped by err, or nil.
// Callers show the sentinel's message, never the wrapping text.
func AsBusinessError(err error) error {
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return target
		}
	}
	return nil
}
