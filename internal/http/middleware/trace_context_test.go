package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/jobrelay/internal/platform/ctxutil"
)

func TestTraceContextKeepsIncomingRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceContext())
	var seen *ctxutil.TraceData
	r.GET("/x", func(c *gin.Context) {
		seen = ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if seen == nil || seen.RequestID != "req-1" || seen.TraceID == "" {
		t.Fatalf("trace data: got %+v", seen)
	}
	if got := rec.Header().Get(HeaderRequestID); got != "req-1" {
		t.Fatalf("request id header: want=req-1 got=%q", got)
	}
	if rec.Header().Get(HeaderTraceID) != seen.TraceID {
		t.Fatalf("trace id header mismatch")
	}
}
