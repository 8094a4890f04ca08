package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func init() { gin.SetMode(gin.TestMode) }

func TestPaged(t *testing.T) {
	tests := []struct {
		page, perPage, total int
		wantPages            int
	}{
		{1, 20, 0, 0},
		{1, 20, 1, 1},
		{2, 20, 40, 2},
		{3, 20, 41, 3},
		{1, 0, 10, 0},
	}
	for _, tt := range tests {
		got := Paged(tt.page, tt.perPage, tt.total)
		if got.TotalPages != tt.wantPages || got.TotalItems != tt.total {
			t.Errorf("Paged(%d, %d, %d) = %+v, want %d pages", tt.page, tt.perPage, tt.total, got, tt.wantPages)
		}
	}
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		wait time.Duration
		want string
	}{
		{0, "1"},
		{300 * time.Millisecond, "1"},
		{time.Second, "1"},
		{1500 * time.Millisecond, "2"},
		{time.Minute, "60"},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		RetryAfter(c, tt.wait)
		if got := w.Header().Get("Retry-After"); got != tt.want {
			t.Errorf("RetryAfter(%v) = %q, want %q", tt.wait, got, tt.want)
		}
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"none", "", false},
		{"uuid kept", "4b7c8a52-1d1e-4f0e-9f3a-2a8d7d0c9b11", true},
		{"trace id kept", "lb:trace_01.a", true},
		{"spaces replaced", "not an id", false},
		{"too long replaced", strings.Repeat("a", 65), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(RequestIDMiddleware())
			r.GET("/", func(c *gin.Context) { Fail(c, http.StatusNotFound, ErrExamNotFound) })

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set("X-Request-ID", tt.incoming)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get("X-Request-ID")
			if tt.keep && got != tt.incoming {
				t.Fatalf("X-Request-ID = %q, want %q", got, tt.incoming)
			}
			if !tt.keep && (got == "" || got == tt.incoming) {
				t.Fatalf("X-Request-ID = %q, want a fresh ID", got)
			}

			var body Response
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Metadata.RequestID != got {
				t.Errorf("metadata request_id = %q, header %q", body.Metadata.RequestID, got)
			}
			if body.Error == nil || body.Error.Code != ErrExamNotFound || body.Error.Message == "" {
				t.Errorf("error body = %+v", body.Error)
			}
		})
	}
}
