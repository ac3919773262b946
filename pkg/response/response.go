package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/chainweave/supply-api/pkg/apperr"
)

// Response represents a standardized API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents an error response
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes
const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeBadRequest        = "BAD_REQUEST"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeValidationFailed  = "VALIDATION_FAILED"
	ErrCodeConflict          = "CONFLICT"
	ErrCodePaymentRequired   = "INSUFFICIENT_FUNDS"
	ErrCodeInventory         = "INSUFFICIENT_INVENTORY"
	ErrCodeDuplicateResource = "DUPLICATE_RESOURCE"
)

// Handle processes the error and returns the appropriate response.
// Domain errors carry a kind (see pkg/apperr) which maps to an HTTP status;
// anything unclassified falls through to a 500.
func Handle(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		fail(c, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
	case apperr.KindAuthorization:
		fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case apperr.KindNotFound:
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case apperr.KindState:
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case apperr.KindInsufficientFunds:
		fail(c, http.StatusPaymentRequired, ErrCodePaymentRequired, err.Error())
	case apperr.KindInsufficientInventory:
		fail(c, http.StatusConflict, ErrCodeInventory, err.Error())
	default:
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			NotFound(c, "Resource not found")
		case errors.Is(err, gorm.ErrDuplicatedKey):
			Conflict(c, "Resource already exists")
		default:
			InternalError(c, "An unexpected error occurred")
		}
	}
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}) {
	status := http.StatusOK
	if c.Request.Method == "POST" {
		status = http.StatusCreated
	}

	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	fail(c, http.StatusNotFound, ErrCodeNotFound, message)
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// Forbidden sends a 403 response
func Forbidden(c *gin.Context, message string) {
	fail(c, http.StatusForbidden, ErrCodeForbidden, message)
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	fail(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}

// Conflict sends a 409 response
func Conflict(c *gin.Context, message string) {
	fail(c, http.StatusConflict, ErrCodeDuplicateResource, message)
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, Response{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
		},
	})
}
