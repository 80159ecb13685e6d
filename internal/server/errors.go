package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	gatewaydomain "github.com/smallbiznis/abonix/internal/gateway/domain"
	invoicedomain "github.com/smallbiznis/abonix/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/abonix/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/abonix/internal/payment/domain"
	subscriberdomain "github.com/smallbiznis/abonix/internal/subscriber/domain"
	tariffdomain "github.com/smallbiznis/abonix/internal/tariff/domain"
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
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNotFound       = errors.New("not_found")
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

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var portTaken *subscriberdomain.PortTakenError
	if errors.As(err, &portTaken) {
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: portTaken.Error(),
		}
	}

	var netErr *gatewaydomain.NetworkError
	if errors.As(err, &netErr) {
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "gateway_unavailable",
			Message: netErr.Error(),
		}
	}

	var failed *gatewaydomain.FailedResult
	if errors.As(err, &failed) {
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_rejected",
			Message: failed.Error(),
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isValidationError(err):
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{Code: code, Message: "invalid value"},
			},
		}
	case errors.Is(err, gatewaydomain.ErrGatewayRequired):
		return http.StatusBadRequest, errorPayload{
			Type:    "logic_error",
			Message: "gateway required",
		}
	case errors.Is(err, paymentdomain.ErrDuplicatePayment),
		errors.Is(err, invoicedomain.ErrAlreadySettled),
		errors.Is(err, subscriberdomain.ErrUsernameTaken):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, subscriberdomain.ErrInvalidUsername),
		errors.Is(err, subscriberdomain.ErrInvalidGroup),
		errors.Is(err, subscriberdomain.ErrInvalidID),
		errors.Is(err, ledgerdomain.ErrInvalidAmount),
		errors.Is(err, ledgerdomain.ErrInvalidSubscriber),
		errors.Is(err, tariffdomain.ErrInvalidSubscriber),
		errors.Is(err, tariffdomain.ErrSubscriberNoGroup),
		errors.Is(err, tariffdomain.ErrTariffNotOffered),
		errors.Is(err, invoicedomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrMalformedRequest),
		errors.Is(err, gatewaydomain.ErrNoLease),
		errors.Is(err, gatewaydomain.ErrUnknownNASType):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, subscriberdomain.ErrNotFound),
		errors.Is(err, subscriberdomain.ErrDeviceNotFound),
		errors.Is(err, subscriberdomain.ErrPortNotFound),
		errors.Is(err, subscriberdomain.ErrNASNotFound),
		errors.Is(err, ledgerdomain.ErrSubscriberNotFound),
		errors.Is(err, tariffdomain.ErrTariffNotFound),
		errors.Is(err, tariffdomain.ErrAssignmentNotFound),
		errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, paymentdomain.ErrSubscriberNotFound),
		errors.Is(err, paymentdomain.ErrPeriodicNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
