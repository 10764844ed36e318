package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these standard errors so
// the core can branch with errors.Is without knowing the transport.
var (
	// General errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Broker errors. The retryable/non-retryable split drives the order
	// throttle's retry policy: transient errors are retried with bounded
	// backoff, definitive rejections never are.
	ErrBrokerUnavailable    = errors.New("broker API is unavailable")    // transient
	ErrConnectionFailed     = errors.New("failed to connect to broker")  // transient
	ErrRateLimited          = errors.New("broker call rate limit hit")   // transient
	ErrAuthenticationFailed = errors.New("broker authentication failed") // definitive
	ErrInsufficientFunds    = errors.New("insufficient funds for order") // definitive
	ErrOrderRejected        = errors.New("order rejected by broker")     // definitive
	ErrOrderNotFound        = errors.New("order not found at broker")

	// Local throttle errors
	ErrDailyCallBudget = errors.New("daily broker call budget exhausted")

	// Database errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
)

// IsTransient reports whether a broker error may be retried. Definitive
// rejections and unknown errors are not retried: retrying a possibly-accepted
// order risks double execution.
func IsTransient(err error) bool {
	return errors.Is(err, ErrBrokerUnavailable) ||
		errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrTimeout)
}
