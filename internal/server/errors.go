package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/seometer/internal/authorization"
	"github.com/smallbiznis/seometer/internal/dataforseo"
	"github.com/smallbiznis/seometer/internal/observability/metrics"
	"github.com/smallbiznis/seometer/internal/plan"
	projectdomain "github.com/smallbiznis/seometer/internal/project/domain"
	quotadomain "github.com/smallbiznis/seometer/internal/quota/domain"
	"github.com/smallbiznis/seometer/internal/ratelimit"
	researchdomain "github.com/smallbiznis/seometer/internal/research/domain"
	subscriptiondomain "github.com/smallbiznis/seometer/internal/subscription/domain"
	usagedomain "github.com/smallbiznis/seometer/internal/usage/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`

	// Quota denial details.
	Category     string `json:"category,omitempty"`
	Limit        *int64 `json:"limit,omitempty"`
	CurrentUsage *int64 `json:"current_usage,omitempty"`
	Remaining    *int64 `json:"remaining,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		var limited *ratelimit.RateLimitedError
		if errors.As(lastErr.Err, &limited) && limited.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(limited.RetryAfter.Seconds()))))
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// errorClass maps a family of errors to one response. Classes are tried in order.
type errorClass struct {
	matches func(error) bool
	status  int
	typ     string
	message string
}

func is(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}
}

var errorClasses = []errorClass{
	{is(dataforseo.ErrMissingCredentials), http.StatusInternalServerError, "configuration_error", "research provider is not configured"},
	{isTransportError, http.StatusBadGateway, "vendor_unavailable", "research provider unavailable"},
	{is(quotadomain.ErrQuotaExceeded), http.StatusPaymentRequired, "quota_exceeded", "quota exceeded"},
	{is(ratelimit.ErrVendorRateLimited), http.StatusTooManyRequests, "rate_limited", "too many research requests, retry shortly"},
	{is(ErrUnauthorized), http.StatusUnauthorized, "unauthorized", "unauthorized"},
	{is(ErrForbidden, authorization.ErrForbidden), http.StatusForbidden, "forbidden", "forbidden"},
	{is(ErrConflict, projectdomain.ErrDuplicateProject, metrics.ErrLockContended), http.StatusConflict, "conflict", "conflict"},
	{is(ErrNotFound, projectdomain.ErrProjectNotFound, subscriptiondomain.ErrSubscriptionNotFound, gorm.ErrRecordNotFound),
		http.StatusNotFound, "not_found", "not found"},
}

// Sentinels whose text is the validation code returned to the client.
var validationSentinels = []error{
	ErrInvalidRequest,
	quotadomain.ErrInvalidIncrement,
	quotadomain.ErrInvalidCategory,
	quotadomain.ErrInvalidUser,
	usagedomain.ErrInvalidUser,
	usagedomain.ErrInvalidAmount,
	usagedomain.ErrNotMonthlyCategory,
	subscriptiondomain.ErrInvalidUser,
	subscriptiondomain.ErrInvalidPlan,
	subscriptiondomain.ErrInvalidStatus,
	projectdomain.ErrInvalidUser,
	projectdomain.ErrInvalidProject,
	projectdomain.ErrInvalidName,
	projectdomain.ErrInvalidDomain,
	projectdomain.ErrInvalidKeywords,
	researchdomain.ErrInvalidUser,
	researchdomain.ErrInvalidKeywords,
	researchdomain.ErrInvalidTarget,
	researchdomain.ErrInvalidMaxPages,
	researchdomain.ErrInvalidTaskID,
	researchdomain.ErrInvalidPrompt,
	researchdomain.ErrInvalidRows,
}

var internalErrorPayload = errorPayload{Type: "internal_error", Message: "internal server error"}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, internalErrorPayload
	}

	var (
		vErrs     *ValidationErrors
		exceeded  *quotadomain.QuotaExceededError
		vendorErr *dataforseo.VendorError
	)
	switch {
	case errors.As(err, &vErrs) && vErrs != nil:
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: "validation error", Errors: vErrs.Errors}
	case errors.As(err, &exceeded):
		return http.StatusPaymentRequired, quotaPayload(exceeded.Result)
	case errors.As(err, &vendorErr):
		return http.StatusBadGateway, errorPayload{Type: "vendor_rejected", Message: vendorErr.Message}
	}

	if code, ok := validationCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{{
				Field:   validationErrorField(code),
				Code:    code,
				Message: validationErrorMessage(code),
			}},
		}
	}

	for _, class := range errorClasses {
		if class.matches(err) {
			return class.status, errorPayload{Type: class.typ, Message: class.message}
		}
	}
	return http.StatusInternalServerError, internalErrorPayload
}

func quotaPayload(result quotadomain.CheckResult) errorPayload {
	message := result.Message
	if message == "" {
		message = plan.LimitMessage(result.Category)
	}
	return errorPayload{
		Type:         "quota_exceeded",
		Message:      message,
		Category:     string(result.Category),
		Limit:        &result.Limit,
		CurrentUsage: &result.CurrentUsage,
		Remaining:    &result.Remaining,
	}
}

func validationCode(err error) (string, bool) {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error(), true
		}
	}
	return "", false
}

// classifyErrorForLog feeds the request logger's error_type and error_code fields.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if payload.Category != "" {
		code = payload.Category
	}
	return payload.Type, code
}

func isTransportError(err error) bool {
	var transportErr *dataforseo.TransportError
	return errors.As(err, &transportErr) || errors.Is(err, dataforseo.ErrNoResult)
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
