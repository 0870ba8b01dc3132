package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"watchearn/pkg/config"
	"watchearn/pkg/errutil"
	"watchearn/pkg/health"
)

func init() {
	gin.SetMode(gin.TestMode)
	zap.ReplaceGlobals(zap.NewNop())
}

func TestNewEngine(t *testing.T) {
	r := NewEngine(&config.Config{AppName: "watchearn"}, health.ProvideHealth(health.HealthParams{}))
	r.GET("/boom", func(c *gin.Context) { _ = c.Error(errutil.NotFound("nothing here", nil)) })

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equalf(t, http.StatusOK, w.Code, path)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	require.True(t, strings.Contains(w.Body.String(), `"reason":"NOT_FOUND"`))
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
