package errutil

// Reason is the machine readable cause of a domain rejection.
type Reason string

const (
	ReasonNotFound              Reason = "NOT_FOUND"
	ReasonQuotaExceeded         Reason = "QUOTA_EXCEEDED"
	ReasonAlreadyWatched        Reason = "ALREADY_WATCHED"
	ReasonBelowMinimum          Reason = "BELOW_MINIMUM"
	ReasonInsufficientFunds     Reason = "INSUFFICIENT_FUNDS"
	ReasonInvalidInput          Reason = "INVALID_INPUT"
	ReasonInvalidTransition     Reason = "INVALID_TRANSITION"
	ReasonTransientStoreFailure Reason = "TRANSIENT_STORE_FAILURE"
)

// Sentinels for errors.Is; matching is done on Reason only.
var (
	ErrNotFound              = BaseError{Code: StatusNotFound, Reason: ReasonNotFound}
	ErrQuotaExceeded         = BaseError{Code: StatusTooManyRequests, Reason: ReasonQuotaExceeded}
	ErrAlreadyWatched        = BaseError{Code: StatusConflict, Reason: ReasonAlreadyWatched}
	ErrBelowMinimum          = BaseError{Code: StatusBadRequest, Reason: ReasonBelowMinimum}
	ErrInsufficientFunds     = BaseError{Code: StatusUnprocessableEntity, Reason: ReasonInsufficientFunds}
	ErrInvalidInput          = BaseError{Code: StatusBadRequest, Reason: ReasonInvalidInput}
	ErrInvalidTransition     = BaseError{Code: StatusConflict, Reason: ReasonInvalidTransition}
	ErrTransientStoreFailure = BaseError{Code: StatusServiceUnavailable, Reason: ReasonTransientStoreFailure}
)

func QuotaExceeded(msg string, options ...Option) error {
	return build(StatusTooManyRequests, msg, nil, append([]Option{WithReason(ReasonQuotaExceeded)}, options...))
}

func AlreadyWatched(msg string, err error, options ...Option) error {
	return build(StatusConflict, msg, err, append([]Option{WithReason(ReasonAlreadyWatched)}, options...))
}

func BelowMinimum(msg string, options ...Option) error {
	return build(StatusBadRequest, msg, nil, append([]Option{WithReason(ReasonBelowMinimum)}, options...))
}

func InsufficientFunds(msg string, options ...Option) error {
	return build(StatusUnprocessableEntity, msg, nil, append([]Option{WithReason(ReasonInsufficientFunds)}, options...))
}

func InvalidInput(msg string, options ...Option) error {
	return build(StatusBadRequest, msg, nil, append([]Option{WithReason(ReasonInvalidInput)}, options...))
}

func InvalidTransition(msg string, options ...Option) error {
	return build(StatusConflict, msg, nil, append([]Option{WithReason(ReasonInvalidTransition)}, options...))
}

func Transient(msg string, err error, options ...Option) error {
	return build(StatusServiceUnavailable, msg, err, append([]Option{WithReason(ReasonTransientStoreFailure)}, options...))
}

// ReasonOf returns the Reason carried by err, or "" when there is none.
func ReasonOf(err error) Reason {
	if err == nil {
		return ""
	}
	return From(err).Reason
}
