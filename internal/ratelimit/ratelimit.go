package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// Limiter is a token bucket refilled at rate tokens per second
type Limiter struct {
	rate       float64
	burst      int
	tokens     float64
	lastUpdate time.Time
	mu         sync.Mutex
}

func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastUpdate: time.Now(),
	}
}

func (l *Limiter) Allow() bool {
	return l.AllowN(1)
}

func (l *Limiter) AllowN(n int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.tokens += now.Sub(l.lastUpdate).Seconds() * l.rate
	l.lastUpdate = now
	if l.tokens > float64(l.burst) {
		l.tokens = float64(l.burst)
	}

	if l.tokens >= float64(n) {
		l.tokens -= float64(n)
		return true
	}
	return false
}

type entry struct {
	limiter  *Limiter
	lastSeen time.Time
}

// Keyed hands out one limiter per key (connection id, client IP) and
// evicts limiters that have not been used for idleTTL.
type Keyed struct {
	rate    float64
	burst   int
	idleTTL time.Duration

	mu       sync.Mutex
	limiters map[string]*entry
	stop     chan struct{}
	stopOnce sync.Once
}

func NewKeyed(rate float64, burst int, idleTTL time.Duration) *Keyed {
	k := &Keyed{
		rate:     rate,
		burst:    burst,
		idleTTL:  idleTTL,
		limiters: make(map[string]*entry),
		stop:     make(chan struct{}),
	}
	go k.cleanup()
	return k
}

func (k *Keyed) Get(key string) *Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.limiters[key]
	if !ok {
		e = &entry{limiter: NewLimiter(k.rate, k.burst)}
		k.limiters[key] = e
	}
	e.lastSeen = time.Now()
	return e.limiter
}

func (k *Keyed) Allow(key string) bool {
	return k.Get(key).Allow()
}

func (k *Keyed) Remove(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.limiters, key)
}

func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.limiters)
}

func (k *Keyed) Stop() {
	k.stopOnce.Do(func() { close(k.stop) })
}

func (k *Keyed) cleanup() {
	interval := k.idleTTL / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-k.stop:
			return
		case <-ticker.C:
			k.evict(time.Now().Add(-k.idleTTL))
		}
	}
}

func (k *Keyed) evict(cutoff time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for key, e := range k.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(k.limiters, key)
		}
	}
}

// Middleware rejects requests from a client IP once its bucket is empty
func Middleware(k *Keyed, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !k.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
