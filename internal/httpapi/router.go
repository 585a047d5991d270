// Package httpapi exposes the instructor API over gin.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/httpmiddleware"
	"qrattend/internal/response"
	"qrattend/internal/validator"
)

// HealthCheck reports whether one backing service is reachable.
type HealthCheck func(ctx context.Context) bool

// Deps wires the router.
type Deps struct {
	Service         *attendance.Service
	Registry        *attendance.Registry
	Validator       *validator.Validator
	Logger          zerolog.Logger
	JWTSigningKey   string
	JWTIssuer       string
	AllowedOrigins  []string
	RateLimitPerMin int
	Health          map[string]HealthCheck
}

type api struct {
	svc      *attendance.Service
	reg      *attendance.Registry
	v        *validator.Validator
	log      zerolog.Logger
	upgrader websocket.Upgrader
	health   map[string]HealthCheck
}

// NewRouter builds the gin engine with middleware and all routes.
func NewRouter(d Deps) *gin.Engine {
	a := &api{
		svc:      d.Service,
		reg:      d.Registry,
		v:        d.Validator,
		log:      d.Logger.With().Str("component", "httpapi").Logger(),
		upgrader: buildUpgrader(d.AllowedOrigins),
		health:   d.Health,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(response.RequestIDMiddleware())
	r.Use(httpmiddleware.RequestLogger(d.Logger, "/healthz", "/metrics"))
	r.Use(cors.New(corsConfig(d.AllowedOrigins)))
	r.Use(httpmiddleware.SecurityHeaders())
	if d.RateLimitPerMin > 0 {
		r.Use(httpmiddleware.NewSimpleTokenBucket(d.RateLimitPerMin, d.RateLimitPerMin).GinMiddleware())
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", a.healthz)

	v1 := r.Group("/v1", auth.InstructorAuth(d.JWTSigningKey, d.JWTIssuer))

	v1.GET("/semesters", a.listSemesters)
	v1.POST("/semesters", a.createSemester)
	v1.PUT("/semesters/:semesterID", a.updateSemester)
	v1.GET("/semesters/:semesterID/courses", a.listCourses)
	v1.POST("/semesters/:semesterID/courses", a.createCourse)

	v1.GET("/courses/:courseID", a.getCourse)
	v1.PATCH("/courses/:courseID/total-classes", a.setTotalClasses)
	v1.GET("/courses/:courseID/students", a.courseStudents)
	v1.PUT("/courses/:courseID/students/:studentID", a.enroll)
	v1.DELETE("/courses/:courseID/students/:studentID", a.unenroll)
	v1.GET("/courses/:courseID/students/:studentID/qr", a.issueQR)

	v1.POST("/students", a.createStudent)
	v1.GET("/students/:studentID", a.getStudent)
	v1.PUT("/students/:studentID", a.updateStudent)

	v1.POST("/courses/:courseID/scan-sessions", a.openScanSession)
	v1.POST("/scan-sessions/:sessionID/frames", a.scanFrame)
	v1.GET("/scan-sessions/:sessionID/stream", a.scanStream)
	v1.DELETE("/scan-sessions/:sessionID", a.closeScanSession)

	reports := v1.Group("", httpmiddleware.Brotli(5))
	reports.GET("/courses/:courseID/report", a.courseReport)
	reports.GET("/courses/:courseID/analytics", a.analytics)
	reports.GET("/courses/:courseID/students/:studentID/summary", a.studentSummary)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func (a *api) healthz(c *gin.Context) {
	status := http.StatusOK
	checks := gin.H{}
	for name, check := range a.health {
		ok := check(c.Request.Context())
		checks[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
		}
	}
	checks["status"] = "ok"
	if status != http.StatusOK {
		checks["status"] = "degraded"
	}
	c.JSON(status, checks)
}
