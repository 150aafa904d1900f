package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/subscriptiond/internal/auth/domain"
	"github.com/smallbiznis/subscriptiond/internal/authorization"
	paymentdomain "github.com/smallbiznis/subscriptiond/internal/payment/domain"
	"github.com/smallbiznis/subscriptiond/internal/payment/gateway"
	plandomain "github.com/smallbiznis/subscriptiond/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/subscriptiond/internal/subscription/domain"
	"github.com/smallbiznis/subscriptiond/pkg/validation"
	"gorm.io/gorm"
)

// envelope is the body of every response under /api/v1.
type envelope struct {
	Success bool                    `json:"success"`
	Data    any                     `json:"data,omitempty"`
	Message string                  `json:"message,omitempty"`
	Code    string                  `json:"code,omitempty"`
	Errors  []validation.FieldError `json:"errors,omitempty"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func respond(c *gin.Context, status int, data any, message string) {
	c.JSON(status, envelope{Success: true, Data: data, Message: message})
}

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

		var rl *gateway.RateLimitError
		if errors.As(lastErr.Err, &rl) && rl.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(rl.RetryAfter.Seconds()))))
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, payload)
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
	return validation.New("request", "invalid_request", "invalid request")
}

func fail(code, message string) envelope {
	return envelope{Success: false, Code: code, Message: message}
}

func mapError(err error) (int, envelope) {
	if err == nil {
		return http.StatusInternalServerError, fail("internal_error", "internal server error")
	}

	var vErr *validation.Errors
	if errors.As(err, &vErr) && vErr != nil {
		payload := fail("validation_error", "validation error")
		payload.Errors = vErr.Fields
		return http.StatusBadRequest, payload
	}

	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, authdomain.ErrInvalidRequest),
		errors.Is(err, subscriptiondomain.ErrInvalidID),
		errors.Is(err, subscriptiondomain.ErrInvalidStatus):
		return http.StatusBadRequest, fail(codeOf(err, "invalid_request"), "invalid request")
	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusBadRequest, fail("invalid_signature", "signature verification failed")
	case errors.Is(err, paymentdomain.ErrInvalidPayload):
		return http.StatusBadRequest, fail("invalid_payload", "invalid payload")
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authdomain.ErrUnauthenticated),
		errors.Is(err, authdomain.ErrInvalidToken),
		errors.Is(err, authdomain.ErrInvalidCredentials):
		return http.StatusUnauthorized, fail(codeOf(err, "unauthorized"), "unauthorized")
	case errors.Is(err, subscriptiondomain.ErrSubscriptionRequired):
		return http.StatusForbidden, fail("requires_subscription", "an active subscription is required")
	case errors.Is(err, ErrForbidden),
		errors.Is(err, subscriptiondomain.ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, authorization.ErrInvalidActor),
		errors.Is(err, authorization.ErrInvalidObject),
		errors.Is(err, authorization.ErrInvalidAction):
		return http.StatusForbidden, fail("forbidden", "forbidden")
	case errors.Is(err, subscriptiondomain.ErrAlreadySubscribed):
		return http.StatusConflict, fail("already_subscribed", "user already has an active subscription")
	case errors.Is(err, paymentdomain.ErrCheckoutInProgress):
		return http.StatusConflict, fail("checkout_in_progress", "a checkout is already in progress")
	case errors.Is(err, ErrConflict),
		errors.Is(err, authdomain.ErrUserExists),
		errors.Is(err, plandomain.ErrNameTaken):
		return http.StatusConflict, fail(codeOf(err, "conflict"), "conflict")
	case errors.Is(err, paymentdomain.ErrRateLimited):
		return http.StatusTooManyRequests, fail("rate_limited", "too many checkout attempts")
	case isNotFoundError(err):
		return http.StatusNotFound, fail(codeOf(err, "not_found"), "not found")
	case errors.Is(err, paymentdomain.ErrUpstreamUnavailable),
		errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, fail("service_unavailable", "service unavailable")
	case errors.Is(err, paymentdomain.ErrRetryable):
		return http.StatusInternalServerError, fail("retryable", "temporary failure, retry later")
	default:
		return http.StatusInternalServerError, fail("internal_error", "internal server error")
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, plandomain.ErrNotFound),
		errors.Is(err, subscriptiondomain.ErrNotFound),
		errors.Is(err, subscriptiondomain.ErrUserNotFound),
		errors.Is(err, authdomain.ErrUserNotFound),
		errors.Is(err, paymentdomain.ErrSessionNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// codeOf returns the innermost sentinel's code, or def for wrapped or
// foreign errors.
func codeOf(err error, def string) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	if err == nil || err.Error() == "" {
		return def
	}
	for _, r := range err.Error() {
		if !(r == '_' || (r >= 'a' && r <= 'z')) {
			return def
		}
	}
	return err.Error()
}

func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "server", payload.Code
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "auth", payload.Code
	default:
		return "client", payload.Code
	}
}
