package recordsdk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"

	"github.com/imroc/req/v3"
)

const (
	// Generic request/server errors
	CodeInvalidRequest = "E_INVALID_REQUEST" // bad or invalid request
	CodeRateLimited    = "E_RATE_LIMITED"    // rate limit exceeded
	CodeInternalError  = "E_INTERNAL_ERROR"  // internal server error
	CodeAccessDenied   = "E_ACCESS_DENIED"   // access denied
	CodeUnknownError   = "E_UNKNOWN_ERR"     // unknown error

	// Auth errors
	CodeAuthInvalidCredentials = "E_AUTH_INVALID_CREDENTIALS" // credentials are invalid, expired, or malformed

	// Record errors
	CodeCollectionNotFound = "E_COLLECTION_NOT_FOUND" // the named collection does not exist
	CodeRecordNotFound     = "E_RECORD_NOT_FOUND"     // the record could not be found
	CodeValidationFailed   = "E_VALIDATION_FAILED"    // record fields rejected by server-side validation
)

// APIError represents a structured error body returned by the record service.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`

	// Filled from the response, not the body.
	StatusCode int           `json:"-"`
	RetryAfter time.Duration `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s - %s", e.Code, e.Message)
}

// handleAPIError is a helper that handles the common error pattern
func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("http request error: %s: %w", operation, requestErr)
	}

	// got a response, but the api returned an error
	if resp.IsErrorState() {
		if apiErr, ok := resp.ErrorResult().(*APIError); ok {
			apiErr.StatusCode = resp.StatusCode
			if apiErr.Code == "" {
				apiErr.Code = codeForStatus(resp.StatusCode)
			}
			if resp.StatusCode == http.StatusTooManyRequests {
				apiErr.RetryAfter = parseRetryAfter(resp.GetHeader("Retry-After"))
			}
			return fmt.Errorf("%s: %w", operation, apiErr)
		}

		return fmt.Errorf("api error: %s: %s", operation, resp.String())
	}

	return nil
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return CodeAuthInvalidCredentials
	case http.StatusForbidden:
		return CodeAccessDenied
	case http.StatusTooManyRequests:
		return CodeRateLimited
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return CodeValidationFailed
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return CodeInternalError
	default:
		return CodeUnknownError
	}
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// IsRateLimited reports whether err is a quota-exceeded response.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.Code == CodeRateLimited
	}
	return false
}

// IsAuthError reports whether err is an authentication failure.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized || apiErr.Code == CodeAuthInvalidCredentials
	}
	return false
}

// RetryAfterHint returns the server-specified backoff for a rate-limited
// error, or zero when none was provided.
func RetryAfterHint(err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}

// IsTransient reports whether err is a transient transport condition
// (timeout, connection loss, DNS failure, upstream 5xx) worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	return false
}
