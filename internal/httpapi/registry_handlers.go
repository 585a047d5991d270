package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/response"
)

type semesterRequest struct {
	Name      string `json:"name" validate:"required,max=100"`
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`
}

// toSemester accepts YYYY-MM-DD or RFC 3339 dates.
func (r semesterRequest) toSemester() (attendance.Semester, map[string]string) {
	start, ok1 := parseDate(r.StartDate)
	end, ok2 := parseDate(r.EndDate)
	fields := map[string]string{}
	if !ok1 {
		fields["start_date"] = "start_date must be a date (YYYY-MM-DD)"
	}
	if !ok2 {
		fields["end_date"] = "end_date must be a date (YYYY-MM-DD)"
	}
	if len(fields) > 0 {
		return attendance.Semester{}, fields
	}
	return attendance.Semester{Name: r.Name, StartDate: start, EndDate: end}, nil
}

func parseDate(s string) (time.Time, bool) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

func (a *api) listSemesters(c *gin.Context) {
	out, err := a.reg.ListSemesters(c.Request.Context(), auth.InstructorID(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	if out == nil {
		out = []attendance.Semester{}
	}
	response.Success(c, http.StatusOK, out)
}

func (a *api) createSemester(c *gin.Context) {
	var req semesterRequest
	if !a.bind(c, &req) {
		return
	}
	sem, fields := req.toSemester()
	if fields != nil {
		response.FailWithFields(c, http.StatusUnprocessableEntity, response.ErrValidation, fields)
		return
	}
	out, err := a.reg.CreateSemester(c.Request.Context(), auth.InstructorID(c), sem)
	if err != nil {
		a.fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, out)
}

func (a *api) updateSemester(c *gin.Context) {
	var req semesterRequest
	if !a.bind(c, &req) {
		return
	}
	sem, fields := req.toSemester()
	if fields != nil {
		response.FailWithFields(c, http.StatusUnprocessableEntity, response.ErrValidation, fields)
		return
	}
	out, err := a.reg.UpdateSemester(c.Request.Context(), auth.InstructorID(c), c.Param("semesterID"), sem)
	if err != nil {
		a.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, out)
}

type courseRequest struct {
	Code         string `json:"code" validate:"required,max=32"`
	Name         string `json:"name" validate:"required,max=200"`
	TotalClasses int    `json:"total_classes" validate:"gte=0"`
}

func (a *api) listCourses(c *gin.Context) {
	out, err := a.reg.ListCourses(c.Request.Context(), auth.InstructorID(c), c.Param("semesterID"))
	if err != nil {
		a.fail(c, err)
		return
	}
	if out == nil {
		out = []attendance.Course{}
	}
	response.Success(c, http.StatusOK, out)
}

func (a *api) createCourse(c *gin.Context) {
	var req courseRequest
	if !a.bind(c, &req) {
		return
	}
	out, err := a.reg.CreateCourse(c.Request.Context(), auth.InstructorID(c), attendance.Course{
		Code:         req.Code,
		Name:         req.Name,
		SemesterID:   c.Param("semesterID"),
		TotalClasses: req.TotalClasses,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, out)
}

func (a *api) getCourse(c *gin.Context) {
	out, err := a.reg.Course(c.Request.Context(), auth.InstructorID(c), c.Param("courseID"))
	if err != nil {
		a.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, out)
}

func (a *api) setTotalClasses(c *gin.Context) {
	var req struct {
		TotalClasses *int `json:"total_classes" validate:"required,gte=0"`
	}
	if !a.bind(c, &req) {
		return
	}
	out, err := a.reg.SetTotalClasses(c.Request.Context(), auth.InstructorID(c), c.Param("courseID"), *req.TotalClasses)
	if err != nil {
		a.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, out)
}

func (a *api) courseStudents(c *gin.Context) {
	out, err := a.reg.CourseStudents(c.Request.Context(), auth.InstructorID(c), c.Param("courseID"))
	if err != nil {
		a.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, out)
}

func (a *api) enroll(c *gin.Context) {
	added, err := a.reg.Enroll(c.Request.Context(), auth.InstructorID(c), c.Param("courseID"), c.Param("studentID"))
	if err != nil {
		a.fail(c, err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	response.Success(c, status, gin.H{"course_id": c.Param("courseID"), "student_id": c.Param("studentID"), "added": added})
}

func (a *api) unenroll(c *gin.Context) {
	if err := a.reg.Unenroll(c.Request.Context(), auth.InstructorID(c), c.Param("courseID"), c.Param("studentID")); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// issueQR issues a fresh code and returns the PNG. The stored reference is
// exposed in the X-QR-Code-Ref header.
func (a *api) issueQR(c *gin.Context) {
	out, err := a.reg.IssueQR(c.Request.Context(), auth.InstructorID(c), c.Param("courseID"), c.Param("studentID"))
	if err != nil {
		a.fail(c, err)
		return
	}
	if len(out.Ref) < 2048 {
		c.Header("X-QR-Code-Ref", out.Ref)
	}
	c.Data(http.StatusOK, "image/png", out.PNG)
}

type studentRequest struct {
	ID        string `json:"student_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

func (r studentRequest) toStudent() attendance.Student {
	return attendance.Student{ID: r.ID, FirstName: r.FirstName, LastName: r.LastName, Email: r.Email}
}

func (a *api) createStudent(c *gin.Context) {
	var req studentRequest
	if !a.bind(c, &req) {
		return
	}
	out, err := a.reg.CreateStudent(c.Request.Context(), req.toStudent())
	if err != nil {
		a.fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, out)
}

func (a *api) getStudent(c *gin.Context) {
	out, err := a.reg.Student(c.Request.Context(), c.Param("studentID"))
	if err != nil {
		a.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, out)
}

func (a *api) updateStudent(c *gin.Context) {
	var req studentRequest
	if !a.bind(c, &req) {
		return
	}
	out, err := a.reg.UpdateStudent(c.Request.Context(), c.Param("studentID"), req.toStudent())
	if err != nil {
		a.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, out)
}
