package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newLimited(t *testing.T, rate int) (*gin.Engine, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	rl := NewRateLimiter(rdb, func(ip string) string { return "rl:" + ip }, rate, time.Minute, zerolog.Nop())
	r := gin.New()
	r.Use(rl.Middleware())
	r.POST("/generate", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r, mr
}

func TestRateLimiter_BlocksAfterLimit(t *testing.T) {
	r, mr := newLimited(t, 2)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/generate", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
		if i == 2 && w.Header().Get("Retry-After") == "" {
			t.Error("blocked response should carry Retry-After")
		}
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}

	// A different client has its own window.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/generate", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("other client code = %d", w.Code)
	}

	mr.FastForward(time.Minute + time.Second)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/generate", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("after window code = %d", w.Code)
	}
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	r, mr := newLimited(t, 1)
	mr.Close()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/generate", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200 when redis is down", w.Code)
	}
}

func TestBrotli_CompressesLargeBodies(t *testing.T) {
	body := strings.Repeat("quiz ", 1000)
	r := gin.New()
	r.Use(Brotli())
	r.GET("/big", func(c *gin.Context) { c.String(http.StatusOK, body) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/big", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	r.ServeHTTP(w, req)

	if w.Header().Get("Content-Encoding") != "br" {
		t.Fatalf("Content-Encoding = %q", w.Header().Get("Content-Encoding"))
	}
	var out bytes.Buffer
	if _, err := out.ReadFrom(brotli.NewReader(w.Body)); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.String() != body {
		t.Error("decoded body differs")
	}
}

func TestBrotli_LeavesRedirectsAlone(t *testing.T) {
	r := gin.New()
	r.Use(Brotli())
	r.GET("/cb", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/dashboard?error="+strings.Repeat("x", 2000))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/cb", nil)
	req.Header.Set("Accept-Encoding", "br")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("code = %d", w.Code)
	}
	if enc := w.Header().Get("Content-Encoding"); enc != "" {
		t.Errorf("redirect was encoded as %q", enc)
	}
	if !strings.HasPrefix(w.Header().Get("Location"), "/dashboard?error=") {
		t.Errorf("Location = %q", w.Header().Get("Location"))
	}
}

func TestNoStore(t *testing.T) {
	r := gin.New()
	r.Use(NoStore())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q", got)
	}
}
