package client

import (
	"context"
	"errors"
	"strings"
	"time"
)

// PayoutError represents an error response from the payout service.
// It includes the HTTP status code for proper error classification.
type PayoutError struct {
	StatusCode int
	Message    string
}

func (e *PayoutError) Error() string {
	return e.Message
}

// HTTPStatusCode returns the HTTP status code from the payout response.
func (e *PayoutError) HTTPStatusCode() int {
	return e.StatusCode
}

// InvalidAmountError indicates the payout service rejected the amount (400).
type InvalidAmountError struct {
	Amount float64
}

func (e *InvalidAmountError) Error() string {
	return "bad request: invalid payout amount"
}

func (e *InvalidAmountError) HTTPStatusCode() int {
	return 400
}

// UnknownRecipientError indicates the recipient has no payout account (404).
type UnknownRecipientError struct {
	UserID string
}

func (e *UnknownRecipientError) Error() string {
	return "recipient not found: " + e.UserID
}

func (e *UnknownRecipientError) HTTPStatusCode() int {
	return 404
}

// HTTPStatusCodeError is an interface for errors that include HTTP status codes.
type HTTPStatusCodeError interface {
	error
	HTTPStatusCode() int
}

// IsRetryableHTTPStatus determines if an HTTP status code should be retried.
// 400, 401, 403, 404, 409 and 422 are final; 408, 429 and 5xx are retried.
// Unknown 4xx codes are final, everything else is retried.
func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 400, 401, 403, 404, 409, 422:
		return false
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		if statusCode >= 400 && statusCode < 500 {
			return false
		}
		return true
	}
}

var nonRetryablePatterns = []string{
	"bad request",
	"invalid argument",
	"not found",
	"forbidden",
	"unauthorized",
	"permission denied",
	"invalid amount",
	"already granted",
}

// IsRetryableError determines if an error from PayoutClient should be retried.
//
// Errors carrying an HTTP status code are classified by that code. Context
// cancellation is never retried. Other errors fall back to message pattern
// matching; anything unrecognized (timeouts, refused connections) is retryable.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var httpErr HTTPStatusCodeError
	if errors.As(err, &httpErr) {
		return IsRetryableHTTPStatus(httpErr.HTTPStatusCode())
	}

	errMsg := strings.ToLower(err.Error())
	for _, pattern := range nonRetryablePatterns {
		if strings.Contains(errMsg, pattern) {
			return false
		}
	}
	return true
}

// PayoutClient credits an adventurer with the reward of a completed quest.
type PayoutClient interface {
	// GrantReward pays amount to userID for questID.
	//
	// Implementations must treat (userID, questID) as an idempotency key so a
	// retried grant never pays twice.
	GrantReward(ctx context.Context, userID, questID string, amount float64) error
}

// RetryPolicy bounds how often a retryable grant is attempted.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy makes three attempts with 100ms, 200ms backoff.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}

// GrantWithRetry calls client.GrantReward until it succeeds, a non-retryable
// error occurs, attempts run out, or ctx is done. Delays double after each attempt.
func GrantWithRetry(ctx context.Context, client PayoutClient, policy RetryPolicy, userID, questID string, amount float64) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := policy.BaseDelay

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = client.GrantReward(ctx, userID, questID, amount)
		if err == nil || !IsRetryableError(err) || attempt == attempts {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return err
}
