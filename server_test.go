package main

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"bitbucket.org/mmdatafocus/orders_retention/utils"
	"github.com/gin-gonic/gin"
)

func TestIdentityMiddleware_ResolvesActingUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(identityMiddleware())
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, strconv.Itoa(actingUserID(c)))
	})

	cases := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{"header", "7", "", "7"},
		{"query fallback", "", "user_id=9", "9"},
		{"header wins over query", "7", "user_id=9", "7"},
		{"anonymous", "", "", "0"},
		{"garbage header", "not-a-number", "", "0"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if tc.header != "" {
			req.Header.Set("X-User-Id", tc.header)
		}
		req.URL.RawQuery = tc.query
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Body.String() != tc.want {
			t.Errorf("%s: acting user = %q, want %q", tc.name, w.Body.String(), tc.want)
		}
	}
}

func TestCorrelationMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(correlationMiddleware())
	r.GET("/cid", func(c *gin.Context) {
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		c.String(http.StatusOK, cid)
	})

	// Caller-supplied id is kept.
	req := httptest.NewRequest(http.MethodGet, "/cid", nil)
	req.Header.Set("x-correlation-id", "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Body.String() != "req-42" {
		t.Fatalf("correlation id = %q, want req-42", w.Body.String())
	}

	// One is generated when absent.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cid", nil))
	if w.Body.String() == "" {
		t.Fatalf("no correlation id generated")
	}
}
