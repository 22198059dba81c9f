package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestHealthCheck_ReflectsPing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		ping func(ctx context.Context) error
		want int
	}{
		{nil, http.StatusOK},
		{func(context.Context) error { return nil }, http.StatusOK},
		{func(context.Context) error { return errors.New("down") }, http.StatusServiceUnavailable},
	}
	for i, tc := range cases {
		r := gin.New()
		r.GET("/healthcheck", NewHealthHandler(tc.ping).HealthCheck)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
		if rec.Code != tc.want {
			t.Fatalf("case %d: want=%d got=%d", i, tc.want, rec.Code)
		}
	}
}
