package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	govalidator "github.com/go-playground/validator/v10"

	"qrattend/internal/attendance"
	"qrattend/internal/response"
)

// fail maps a service error onto the response envelope.
func (a *api) fail(c *gin.Context, err error) {
	var ve govalidator.ValidationErrors
	switch {
	case errors.As(err, &ve):
		response.FailWithFields(c, http.StatusUnprocessableEntity, response.ErrValidation, a.v.TranslateErrors(ve))
	case errors.Is(err, attendance.ErrNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, attendance.ErrSemesterRange):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrSemesterRange)
	case errors.Is(err, attendance.ErrSemesterOverlap):
		response.Fail(c, http.StatusConflict, response.ErrSemesterOverlap)
	case errors.Is(err, attendance.ErrDuplicate):
		response.Fail(c, http.StatusConflict, response.ErrConflict)
	case errors.Is(err, attendance.ErrNotEnrolled):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrNotEnrolled)
	case errors.Is(err, attendance.ErrSessionClosed):
		response.Fail(c, http.StatusConflict, response.ErrSessionClosed)
	case errors.Is(err, attendance.ErrInvalidInput):
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidPayload, map[string]string{"detail": err.Error()})
	default:
		_ = c.Error(err)
		a.log.Error().Err(err).
			Str("request_id", c.GetString(response.ContextKeyRequestID)).
			Str("path", c.FullPath()).
			Msg("request failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// bind decodes and validates a JSON body, answering 422 on failure.
func (a *api) bind(c *gin.Context, dst any) bool {
	if fields := a.v.Bind(c, dst); fields != nil {
		code := response.ErrValidation
		if _, ok := fields["detail"]; ok {
			code = response.ErrInvalidPayload
		}
		response.FailWithFields(c, http.StatusUnprocessableEntity, code, fields)
		return false
	}
	return true
}
