package jobstatus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/jobrelay/internal/domain"
	"github.com/yungbote/jobrelay/internal/platform/breaker"
	"github.com/yungbote/jobrelay/internal/platform/logger"
)

func TestQueryDecodesReport(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("predictionId")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"p1","status":"succeeded","output":["https://x/a.png","https://x/b.png"]}`))
	}))
	defer srv.Close()

	c, err := New(logger.Nop(), srv.Client(), Config{URL: srv.URL + "/status?v=1", QueryParam: "predictionId"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rep := c.Query(context.Background(), "p1")
	if rep == nil {
		t.Fatalf("Query: want report got nil")
	}
	if gotQuery != "p1" {
		t.Fatalf("query param: want=p1 got=%q", gotQuery)
	}
	if rep.Status != domain.JobStatusSucceeded || len(rep.Outputs) != 2 || rep.Outputs[1] != "https://x/b.png" {
		t.Fatalf("report: got %+v", rep)
	}
}

func TestQueryStatusAliasesAndOutputShapes(t *testing.T) {
	cases := []struct {
		body       string
		wantStatus domain.JobStatus
		wantOut    int
	}{
		{`{"id":"p","status":"starting"}`, domain.JobStatusPending, 0},
		{`{"id":"p","status":"processing","output":null}`, domain.JobStatusRunning, 0},
		{`{"id":"p","status":"succeeded","output":"https://x/one.jpg"}`, domain.JobStatusSucceeded, 1},
		{`{"id":"p","status":"failed","output":[]}`, domain.JobStatusFailed, 0},
	}
	for _, tc := range cases {
		body := tc.body
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		c, err := New(logger.Nop(), srv.Client(), Config{URL: srv.URL})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		rep := c.Query(context.Background(), "p")
		srv.Close()
		if rep == nil {
			t.Fatalf("%s: want report got nil", tc.body)
		}
		if rep.Status != tc.wantStatus || len(rep.Outputs) != tc.wantOut {
			t.Fatalf("%s: got %+v", tc.body, rep)
		}
	}
}

func TestQueryReturnsNilOnFailure(t *testing.T) {
	bodies := map[string]struct {
		code int
		body string
	}{
		"server error":   {http.StatusInternalServerError, `{"error":"x"}`},
		"not json":       {http.StatusOK, `<html>`},
		"unknown status": {http.StatusOK, `{"id":"p","status":"weird"}`},
		"bad output":     {http.StatusOK, `{"id":"p","status":"succeeded","output":{"a":1}}`},
	}
	for name, tc := range bodies {
		tc := tc
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.code)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()
			c, err := New(logger.Nop(), srv.Client(), Config{URL: srv.URL})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if rep := c.Query(context.Background(), "p"); rep != nil {
				t.Fatalf("Query: want nil got %+v", rep)
			}
		})
	}
}

func TestQueryTransportErrorAndTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c, err := New(logger.Nop(), srv.Client(), Config{URL: srv.URL, Timeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if rep := c.Query(context.Background(), "p"); rep != nil {
		t.Fatalf("timeout: want nil got %+v", rep)
	}
}

func TestQueryBreakerOpensAndSkipsCalls(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := New(logger.Nop(), srv.Client(), Config{
		URL:     srv.URL,
		Breaker: breaker.Config{MinRequests: 2, FailureRatio: 0.5, Timeout: time.Hour},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 5; i++ {
		if rep := c.Query(context.Background(), "p"); rep != nil {
			t.Fatalf("call %d: want nil", i)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Fatalf("upstream hits: want=2 got=%d", got)
	}
}

func TestNewValidatesURL(t *testing.T) {
	for _, raw := range []string{"", "not a url", "/relative"} {
		if _, err := New(logger.Nop(), nil, Config{URL: raw}); err == nil {
			t.Fatalf("New(%q): expected error", raw)
		}
	}
}
