package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/auth"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "qrattend"
)

func TestIssueParse_RoundTrip(t *testing.T) {
	tok, err := auth.Issue("inst-1", auth.RoleInstructor, testIssuer, testKey, time.Hour, time.Now())
	require.NoError(t, err)

	claims, err := auth.Parse(tok.AccessToken, testKey, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, "inst-1", claims.Subject)
	assert.Equal(t, auth.RoleInstructor, claims.Role)
}

func TestParse_Rejects(t *testing.T) {
	valid, err := auth.Issue("inst-1", auth.RoleInstructor, testIssuer, testKey, time.Hour, time.Now())
	require.NoError(t, err)
	expired, err := auth.Issue("inst-1", auth.RoleInstructor, testIssuer, testKey, time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, err = auth.Parse(valid.AccessToken, "other-key", testIssuer)
	assert.Error(t, err, "wrong key")

	_, err = auth.Parse(valid.AccessToken, testKey, "someone-else")
	assert.ErrorIs(t, err, auth.ErrIssuerMismatch)

	_, err = auth.Parse(expired.AccessToken, testKey, testIssuer)
	assert.Error(t, err, "expired")
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", auth.InstructorAuth(testKey, testIssuer), func(c *gin.Context) {
		c.String(http.StatusOK, auth.InstructorID(c))
	})
	return r
}

func TestInstructorAuth(t *testing.T) {
	instructor, err := auth.Issue("inst-1", auth.RoleInstructor, testIssuer, testKey, time.Hour, time.Now())
	require.NoError(t, err)
	student, err := auth.Issue("stu-1", "student", testIssuer, testKey, time.Hour, time.Now())
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing header", "", http.StatusUnauthorized, ""},
		{"not bearer", "Basic abc", http.StatusUnauthorized, ""},
		{"garbage token", "Bearer nope", http.StatusUnauthorized, ""},
		{"wrong role", "Bearer " + student.AccessToken, http.StatusForbidden, ""},
		{"ok", "Bearer " + instructor.AccessToken, http.StatusOK, "inst-1"},
		{"lowercase scheme", "bearer " + instructor.AccessToken, http.StatusOK, "inst-1"},
	}

	r := newRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}
