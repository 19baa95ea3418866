package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func cronTestRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/cron/ping", CronSecret(secret), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestCronSecretAccepted(t *testing.T) {
	r := cronTestRouter("topsecret")

	req := httptest.NewRequest(http.MethodPost, "/cron/ping", nil)
	req.Header.Set(CronSecretHeader, "topsecret")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCronSecretRejected(t *testing.T) {
	r := cronTestRouter("topsecret")

	req := httptest.NewRequest(http.MethodPost, "/cron/ping", nil)
	req.Header.Set(CronSecretHeader, "wrong")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCronSecretMissingConfiguration(t *testing.T) {
	// An unset secret must close the endpoints, not open them.
	r := cronTestRouter("")

	req := httptest.NewRequest(http.MethodPost, "/cron/ping", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
