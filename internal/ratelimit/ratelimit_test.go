package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiterBurst(t *testing.T) {
	l := NewLimiter(0, 3)

	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Fatalf("Request %d should be allowed within burst", i)
		}
	}
	if l.Allow() {
		t.Error("Request beyond burst should be rejected")
	}
}

func TestLimiterRefill(t *testing.T) {
	l := NewLimiter(1000, 1)

	if !l.Allow() {
		t.Fatal("First request should be allowed")
	}
	time.Sleep(5 * time.Millisecond)
	if !l.Allow() {
		t.Error("Bucket should have refilled")
	}
}

func TestLimiterAllowN(t *testing.T) {
	l := NewLimiter(0, 5)

	if !l.AllowN(4) {
		t.Fatal("AllowN(4) should fit in a burst of 5")
	}
	if l.AllowN(2) {
		t.Error("AllowN(2) should not fit in the remaining token")
	}
}

func TestKeyedSeparatesKeys(t *testing.T) {
	k := NewKeyed(0, 1, time.Minute)
	defer k.Stop()

	if !k.Allow("a") || !k.Allow("b") {
		t.Fatal("Each key should get its own bucket")
	}
	if k.Allow("a") {
		t.Error("Key a should be exhausted")
	}
	if k.Get("a") != k.Get("a") {
		t.Error("Same key should return the same limiter")
	}

	k.Remove("a")
	if !k.Allow("a") {
		t.Error("Removed key should start with a fresh bucket")
	}
}

func TestKeyedEvictsIdle(t *testing.T) {
	k := NewKeyed(1, 1, time.Minute)
	defer k.Stop()

	k.Get("old")
	k.evict(time.Now().Add(time.Second))

	if k.Len() != 0 {
		t.Errorf("Expected idle limiter to be evicted, %d left", k.Len())
	}
}

func TestMiddleware(t *testing.T) {
	k := NewKeyed(0, 2, time.Minute)
	defer k.Stop()

	handler := Middleware(k, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/api/exercises", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("First two requests should pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("Third request should be limited, got %d", codes[2])
	}

	req := httptest.NewRequest("GET", "/api/exercises", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Other client should not be limited, got %d", w.Code)
	}
}
