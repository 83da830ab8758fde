package ratelimit

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"balloon-service/internal/util"
)

// IngressStore keeps one token bucket per client key in process memory and
// drops buckets that stay idle for longer than idleTTL.
type IngressStore struct {
	mu           sync.Mutex
	entries      map[string]*ingressEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type ingressEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type IngressOption func(*IngressStore)

func WithIdleTTL(d time.Duration) IngressOption {
	return func(s *IngressStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) IngressOption {
	return func(s *IngressStore) { s.cleanupEvery = d }
}

func withClock(now func() time.Time) IngressOption {
	return func(s *IngressStore) { s.now = now }
}

func NewIngressStore(rps float64, burst int, opts ...IngressOption) *IngressStore {
	s := &IngressStore{
		entries:      make(map[string]*ingressEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *IngressStore) limiter(key string) *rate.Limiter {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}
	lim := rate.NewLimiter(s.rps, s.burst)
	s.entries[key] = &ingressEntry{lim: lim, lastSeen: now}
	return lim
}

// Reserve takes a token for key. When none is available it returns false and
// the delay until one will be.
func (s *IngressStore) Reserve(key string) (bool, time.Duration) {
	now := s.now()
	r := s.limiter(key).ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	delay := r.DelayFrom(now)
	if delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Len is the number of tracked keys.
func (s *IngressStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *IngressStore) Cleanup() {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor removes idle keys periodically until ctx is done.
func (s *IngressStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// ClientKey identifies the caller by the first X-Forwarded-For hop when
// trustXFF is set, otherwise by the remote host.
func ClientKey(r *http.Request, trustXFF bool) string {
	if trustXFF {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// IngressMiddleware rejects callers that exceed their token bucket with 429.
func IngressMiddleware(store *IngressStore, trustXFF bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientKey(r, trustXFF)
			ok, wait := store.Reserve(key)
			if !ok {
				util.Debug("Ingress rate limit exceeded",
					util.String("client", key),
					util.Duration("retry_after", wait),
				)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"title":"Too Many Requests","status":429,"detail":"Too many requests from this client."}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
