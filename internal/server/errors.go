package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/dotation/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/dotation/internal/catalog/domain"
	cycledomain "github.com/smallbiznis/dotation/internal/cycle/domain"
	kitdomain "github.com/smallbiznis/dotation/internal/kit/domain"
	orderdomain "github.com/smallbiznis/dotation/internal/order/domain"
	wagethresholddomain "github.com/smallbiznis/dotation/internal/wagethreshold/domain"
	"github.com/smallbiznis/dotation/pkg/db"
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
	Type      string                    `json:"type"`
	Message   string                    `json:"message"`
	Retryable bool                      `json:"retryable,omitempty"`
	Errors    []ValidationError         `json:"errors,omitempty"`
	Employees []orderdomain.EmployeeRef `json:"employees,omitempty"`
	Pending   []orderdomain.PendingSize `json:"pending,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

// domainKind describes how a domain sentinel surfaces over HTTP.
type domainKind struct {
	err     error
	status  int
	kind    string
	message string
}

var domainKinds = []domainKind{
	{cycledomain.ErrConflictingActiveCycle, http.StatusConflict, "CONFLICTING_ACTIVE_CYCLE", "another cycle is already active"},
	{cycledomain.ErrOutsideCreationWindow, http.StatusUnprocessableEntity, "OUTSIDE_CREATION_WINDOW", "delivery date is outside the creation window"},
	{wagethresholddomain.ErrNoWageThreshold, http.StatusUnprocessableEntity, "NO_WAGE_THRESHOLD", "no wage threshold for the delivery year"},
	{cycledomain.ErrNoEligibleEmployees, http.StatusUnprocessableEntity, "NO_ELIGIBLE_EMPLOYEES", "no eligible employees"},
	{orderdomain.ErrCycleNotActive, http.StatusConflict, "CYCLE_NOT_ACTIVE", "cycle is not active"},
	{orderdomain.ErrNoProcessedEmployees, http.StatusUnprocessableEntity, "NO_PROCESSED_EMPLOYEES", "cycle has no processed employees"},
	{orderdomain.ErrMissingKit, http.StatusUnprocessableEntity, "MISSING_KIT", "employees without a kit"},
	{orderdomain.ErrSizesPending, http.StatusUnprocessableEntity, "SIZES_PENDING", "size selections are missing"},
	{orderdomain.ErrNoKitLines, http.StatusUnprocessableEntity, "NO_KIT_LINES", "kits of the cycle have no lines"},
	{cycledomain.ErrAlreadyMember, http.StatusConflict, "ALREADY_MEMBER", "employee is already a member of the cycle"},
	{cycledomain.ErrEmployeeInactive, http.StatusUnprocessableEntity, "EMPLOYEE_INACTIVE", "employee is inactive"},
	{cycledomain.ErrInvalidStateForRemoval, http.StatusConflict, "INVALID_STATE_FOR_REMOVAL", "membership cannot be removed in its current state"},
	{cycledomain.ErrCycleClosed, http.StatusConflict, "CYCLE_CLOSED", "cycle is closed"},
	{cycledomain.ErrCycleHasMembers, http.StatusConflict, "CYCLE_HAS_MEMBERS", "cycle still has members or orders"},
	{wagethresholddomain.ErrThresholdInUse, http.StatusConflict, "WAGE_THRESHOLD_IN_USE", "wage threshold is referenced by a cycle"},
	{orderdomain.ErrOrderNotReceivable, http.StatusConflict, "ORDER_NOT_RECEIVABLE", "order is fully received"},
	{orderdomain.ErrReceptionExceedsRequested, http.StatusUnprocessableEntity, "RECEPTION_EXCEEDS_REQUESTED", "received quantity exceeds requested quantity"},
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

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "INTERNAL_ERROR",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "VALIDATION_ERROR",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if errors.Is(err, db.ErrStorageUnavailable) {
		return http.StatusServiceUnavailable, errorPayload{
			Type:      "STORAGE_UNAVAILABLE",
			Message:   "storage temporarily unavailable",
			Retryable: true,
		}
	}

	for _, k := range domainKinds {
		if !errors.Is(err, k.err) {
			continue
		}
		payload := errorPayload{Type: k.kind, Message: k.message}
		var missing *orderdomain.MissingKitError
		if errors.As(err, &missing) {
			payload.Employees = missing.Employees
		}
		var pending *orderdomain.SizesPendingError
		if errors.As(err, &pending) {
			payload.Pending = pending.Pending
		}
		return k.status, payload
	}

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "VALIDATION_ERROR",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	if isNotFoundError(err) {
		return http.StatusNotFound, errorPayload{
			Type:    "NOT_FOUND",
			Message: "not found",
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "INTERNAL_ERROR",
		Message: "internal server error",
	}
}

// classifyErrorForLog returns the error type and code attached to request logs.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := ""
	if err != nil {
		code = err.Error()
		if idx := strings.IndexByte(code, ':'); idx > 0 {
			code = code[:idx]
		}
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, cycledomain.ErrInvalidName),
		errors.Is(err, cycledomain.ErrInvalidDeliveryDate),
		errors.Is(err, cycledomain.ErrReasonRequired),
		errors.Is(err, cycledomain.ErrInvalidMemberState),
		errors.Is(err, wagethresholddomain.ErrInvalidYear),
		errors.Is(err, wagethresholddomain.ErrInvalidValue),
		errors.Is(err, kitdomain.ErrInvalidCycle),
		errors.Is(err, kitdomain.ErrInvalidKit),
		errors.Is(err, catalogdomain.ErrInvalidEmployee),
		errors.Is(err, catalogdomain.ErrInvalidArticle),
		errors.Is(err, catalogdomain.ErrInvalidSize),
		errors.Is(err, catalogdomain.ErrEmptySelection),
		errors.Is(err, orderdomain.ErrInvalidReception),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidAction):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, cycledomain.ErrNotFound),
		errors.Is(err, cycledomain.ErrMembershipNotFound),
		errors.Is(err, cycledomain.ErrEmployeeNotFound),
		errors.Is(err, cycledomain.ErrKitNotFound),
		errors.Is(err, kitdomain.ErrKitNotFound),
		errors.Is(err, wagethresholddomain.ErrNotFound),
		errors.Is(err, catalogdomain.ErrArticleNotFound),
		errors.Is(err, catalogdomain.ErrSizeNotFound),
		errors.Is(err, orderdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
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
