package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestSinceParamReadsDaysQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/projects/time?days=7", nil)

	require.WithinDuration(t, time.Now().UTC().AddDate(0, 0, -7), sinceParam(c), time.Minute)
}

func TestSinceParamDefaultsToThirtyDays(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/projects/time", nil)
	require.WithinDuration(t, time.Now().UTC().AddDate(0, 0, -30), sinceParam(c), time.Minute)

	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/projects/time?days=banana", nil)
	require.WithinDuration(t, time.Now().UTC().AddDate(0, 0, -30), sinceParam(c), time.Minute)
}
