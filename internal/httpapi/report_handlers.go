package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"qrattend/internal/auth"
	"qrattend/internal/response"
)

func (a *api) courseReport(c *gin.Context) {
	out, err := a.svc.CourseReport(c.Request.Context(), auth.InstructorID(c), c.Param("courseID"))
	if err != nil {
		a.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, out)
}

func (a *api) analytics(c *gin.Context) {
	out, err := a.svc.Analytics(c.Request.Context(), auth.InstructorID(c), c.Param("courseID"))
	if err != nil {
		a.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, out)
}

func (a *api) studentSummary(c *gin.Context) {
	out, err := a.svc.StudentSummary(c.Request.Context(), auth.InstructorID(c), c.Param("courseID"), c.Param("studentID"))
	if err != nil {
		a.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, out)
}
