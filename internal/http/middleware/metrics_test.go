package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/KJJisBetter/scentmatch-sub009/internal/observability"
)

func TestMetrics_RecordsRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := observability.New()
	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/api/quiz/sessions/:token", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/quiz/sessions/abc", nil))

	out := httptest.NewRecorder()
	m.Handler().ServeHTTP(out, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := out.Body.String()
	if !strings.Contains(body, `route="/api/quiz/sessions/:token"`) {
		t.Fatalf("route template missing from exposition:\n%s", body)
	}
	if strings.Contains(body, "/api/quiz/sessions/abc") {
		t.Fatalf("raw token leaked into metrics labels")
	}
}
