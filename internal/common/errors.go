package common

import (
	"errors"
	"net/http"
)

// Kind enumerates the error conditions the storefront core can surface.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindInvalidPrice
	KindMinimumOrder
	KindEmptyCart
	KindGateway
	KindPersistence
	KindConflict
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInvalidPrice:
		return "invalid_price"
	case KindMinimumOrder:
		return "minimum_order"
	case KindEmptyCart:
		return "empty_cart"
	case KindGateway:
		return "gateway"
	case KindPersistence:
		return "persistence"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Safe user-facing messages. Internal causes never reach the buyer.
const (
	MsgValidation    = "Please provide valid dimensions."
	MsgInvalidPrice  = "Invalid price. Please check the dimensions."
	MsgEmptyCart     = "Cart is empty."
	MsgMinimumOrder  = "The order total is below the minimum."
	MsgGateway       = "Payment processing failed. Please try again."
	MsgPersistence   = "Your cart could not be saved."
	MsgInProgress    = "A payment is already being processed."
	MsgInternal      = "internal error"
	MsgLoadCart      = "Failed to load cart"
	MsgSaveCart      = "Failed to save cart"
	MsgCartOffline   = "Your cart is temporarily unavailable. Please try again."
	MsgCheckoutGuard = "checkout already in progress"
)

// AppError represents an error with an attached kind, code and HTTP status.
// Message is safe to show to users; Err holds the internal cause.
type AppError struct {
	Kind       Kind
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError for the given kind using its default code and status.
func NewAppError(kind Kind, message string, err error) *AppError {
	return &AppError{
		Kind:       kind,
		Code:       codeFor(kind),
		Message:    message,
		HTTPStatus: statusFor(kind),
		Err:        err,
	}
}

// ValidationError reports missing or invalid dimensions.
func ValidationError(err error) *AppError {
	return NewAppError(KindValidation, MsgValidation, err)
}

// InvalidPriceError reports a non-numeric or non-positive price at add-to-cart.
func InvalidPriceError(err error) *AppError {
	return NewAppError(KindInvalidPrice, MsgInvalidPrice, err)
}

// MinimumOrderError reports a cart total below the minimum-order threshold.
func MinimumOrderError(message string) *AppError {
	if message == "" {
		message = MsgMinimumOrder
	}
	return NewAppError(KindMinimumOrder, message, nil)
}

// EmptyCartError reports a checkout attempt on an empty cart.
func EmptyCartError() *AppError {
	return NewAppError(KindEmptyCart, MsgEmptyCart, nil)
}

// GatewayError wraps a hosted-session creation failure.
func GatewayError(err error) *AppError {
	return NewAppError(KindGateway, MsgGateway, err)
}

// PersistenceWarning wraps a non-fatal cart load or save failure.
func PersistenceWarning(message string, err error) *AppError {
	if message == "" {
		message = MsgPersistence
	}
	return NewAppError(KindPersistence, message, err)
}

// ConflictError reports a duplicate concurrent checkout.
func ConflictError(err error) *AppError {
	return NewAppError(KindConflict, MsgInProgress, err)
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// KindOf returns the kind of err, or KindInternal when err is not an AppError.
func KindOf(err error) Kind {
	var target *AppError
	if errors.As(err, &target) {
		return target.Kind
	}
	return KindInternal
}

// UserMessage returns the safe message for err and the status it maps to.
// Errors that are not AppErrors never leak their text.
func UserMessage(err error) (string, int) {
	var target *AppError
	if errors.As(err, &target) && target.Message != "" {
		status := target.HTTPStatus
		if status == 0 {
			status = statusFor(target.Kind)
		}
		return target.Message, status
	}
	return MsgInternal, http.StatusInternalServerError
}

// IsKind reports whether err carries the provided kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func codeFor(kind Kind) string {
	switch kind {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindInvalidPrice:
		return "INVALID_PRICE"
	case KindMinimumOrder:
		return "MINIMUM_ORDER"
	case KindEmptyCart:
		return "EMPTY_CART"
	case KindGateway:
		return "CHECKOUT_FAILED"
	case KindPersistence:
		return "PERSISTENCE_WARNING"
	case KindConflict:
		return "CHECKOUT_IN_PROGRESS"
	case KindNotFound:
		return "NOT_FOUND"
	default:
		return "INTERNAL"
	}
}

func statusFor(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindInvalidPrice, KindMinimumOrder, KindEmptyCart:
		return http.StatusUnprocessableEntity
	case KindGateway:
		return http.StatusBadGateway
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindPersistence:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}
