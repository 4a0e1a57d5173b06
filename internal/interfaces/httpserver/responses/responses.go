package responses

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/contextd/contextd/internal/utils/platformerrors"
)

// ErrorResponse is the wire shape of every error reply.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func statusFor(errType platformerrors.ErrorType) int {
	switch errType {
	case platformerrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case platformerrors.ErrorTypeValidation,
		platformerrors.ErrorTypeInvalidConfig,
		platformerrors.ErrorTypeInvalidForkPoint:
		return http.StatusBadRequest
	case platformerrors.ErrorTypeNotDeleted,
		platformerrors.ErrorTypeStillHasBranches:
		return http.StatusConflict
	case platformerrors.ErrorTypeStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HandleNewError writes a fresh classified error.
func HandleNewError(c *gin.Context, errType platformerrors.ErrorType, message, code string) {
	c.AbortWithStatusJSON(statusFor(errType), ErrorResponse{
		Error: ErrorBody{
			Type:    string(errType),
			Message: message,
			Code:    code,
		},
	})
}

// HandleError maps a domain error onto an HTTP reply, keeping the
// classification and code assigned where the error was raised.
func HandleError(c *gin.Context, err error) {
	errType := platformerrors.TypeOf(err)
	body := ErrorBody{
		Type:    string(errType),
		Message: err.Error(),
	}
	var perr *platformerrors.PlatformError
	if errors.As(err, &perr) {
		body.Message = perr.Message
		body.Code = perr.Code
	}
	c.AbortWithStatusJSON(statusFor(errType), ErrorResponse{Error: body})
}
