package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/gpconsultingargentina/personal-trainer-api/internal/middleware"
	"github.com/gpconsultingargentina/personal-trainer-api/internal/models"
)

func newTestContext(t *testing.T) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, rec
}

func TestStudentScopeTrainerKeepsRequestedID(t *testing.T) {
	c, _ := newTestContext(t)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleTrainer})

	assert.Equal(t, "st-9", studentScope(c, "st-9"))
}

func TestStudentScopeStudentForcedToOwnID(t *testing.T) {
	c, _ := newTestContext(t)
	own := "st-1"
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-2", Role: models.RoleStudent, StudentID: &own})

	assert.Equal(t, "st-1", studentScope(c, "st-9"))
}

func TestStudentScopeWithoutClaims(t *testing.T) {
	c, _ := newTestContext(t)

	assert.Equal(t, "st-9", studentScope(c, "st-9"))
}

func TestHealthEndpoint(t *testing.T) {
	c, rec := newTestContext(t)

	NewMetricsHandler(nil).Health(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
