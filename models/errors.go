package models

import (
	"errors"
	"fmt"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeNavigation         = "NAVIGATION_FAILED"
	ErrCodeSelectorTimeout    = "SELECTOR_TIMEOUT"
	ErrCodeInteraction        = "INTERACTION_FAILED"
	ErrCodeExtraction         = "EXTRACTION_FAILED"
	ErrCodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrCodeNotFound           = "AGENT_NOT_FOUND"
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// Pipeline stages a CrawlError can originate from.
const (
	StageNavigate     = "navigate"
	StageWaitSelector = "wait_selector"
	StageExtract      = "extract"
	StageInteract     = "interact"
	StagePaginate     = "paginate"
	StageVerify       = "verify"
	StageBackend      = "backend"
)

// CrawlError is the uniform failure type for every scrape-and-verify
// operation. Retryable marks failures worth repeating with backoff
// (timeouts, transient network errors); extraction failures are never
// retryable since the same page would reproduce them. It implements the
// error interface and supports wrapping via Unwrap.
type CrawlError struct {
	Stage       string
	Code        string
	Message     string
	Retryable   bool
	OperationID string
	Err         error // wrapped original error
}

func (e *CrawlError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Code, e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Code, e.Stage, e.Message)
}

func (e *CrawlError) Unwrap() error {
	return e.Err
}

// NewCrawlError creates a CrawlError.
func NewCrawlError(stage, code, message string, retryable bool, err error) *CrawlError {
	return &CrawlError{
		Stage:     stage,
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Err:       err,
	}
}

// AsCrawlError unwraps err to a *CrawlError, or wraps it as an internal
// one so callers always have the uniform shape.
func AsCrawlError(err error) *CrawlError {
	var ce *CrawlError
	if errors.As(err, &ce) {
		return ce
	}
	return NewCrawlError(StageBackend, ErrCodeInternal, err.Error(), false, err)
}

// IsRetryable reports whether err carries a retryable CrawlError.
func IsRetryable(err error) bool {
	var ce *CrawlError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Stage     string `json:"stage,omitempty"`
	Retryable bool   `json:"retryable"`
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *CrawlError) ToDetail() *ErrorDetail {
	return &ErrorDetail{
		Code:      e.Code,
		Message:   e.Message,
		Stage:     e.Stage,
		Retryable: e.Retryable,
	}
}
