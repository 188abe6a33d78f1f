package middleware

import (
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Togather-Foundation/orbit/internal/api/problem"
	"github.com/Togather-Foundation/orbit/internal/config"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL       = 15 * time.Minute
	limiterSweepInterval = 5 * time.Minute
)

// bucket is one token-bucket policy. Each client gets its own limiter per bucket.
type bucket struct {
	name  string
	every time.Duration
	burst int
}

// buckets holds the policies derived from config. A zero burst disables a bucket.
type buckets struct {
	public bucket
	login  bucket
}

func newBuckets(cfg config.RateLimitConfig) buckets {
	var b buckets
	if cfg.PublicPerMinute > 0 {
		b.public = bucket{name: "public", every: time.Minute / time.Duration(cfg.PublicPerMinute), burst: cfg.PublicPerMinute}
	}
	if cfg.LoginPer15Minutes > 0 {
		b.login = bucket{name: "login", every: 15 * time.Minute / time.Duration(cfg.LoginPer15Minutes), burst: cfg.LoginPer15Minutes}
	}
	return b
}

// pick routes credential submissions to the login bucket and everything else to public.
func (b buckets) pick(r *http.Request) bucket {
	if r.Method == http.MethodPost && (r.URL.Path == "/login" || r.URL.Path == "/register") {
		return b.login
	}
	return b.public
}

// RateLimit applies a per-client token bucket. Probe endpoints are exempt. Rejections carry
// Retry-After; API clients get a problem document, browsers a plain message.
func RateLimit(cfg config.RateLimitConfig) func(http.Handler) http.Handler {
	policies := newBuckets(cfg)
	proxies := parsePrefixes(cfg.TrustedProxyCIDRs)
	clients := &limiterStore{entries: make(map[string]*limiterEntry), now: time.Now}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b := policies.pick(r)
			if b.burst == 0 || isProbePath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			wait, ok := clients.take(b, clientKey(r, proxies))
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			if strings.HasPrefix(r.URL.Path, "/api/") {
				problem.WriteProblem(w, problem.ProblemDetails{
					Type:   problem.TypeRateLimited,
					Title:  "Too many requests",
					Status: http.StatusTooManyRequests,
				})
				return
			}
			http.Error(w, "Too many requests, please slow down.", http.StatusTooManyRequests)
		})
	}
}

func isProbePath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterStore keeps one limiter per bucket and client. Idle entries are swept inline
// every few minutes so distinct clients cannot grow the map without bound.
type limiterStore struct {
	mu        sync.Mutex
	entries   map[string]*limiterEntry
	lastSweep time.Time
	now       func() time.Time
}

// take spends one token. When none is available it reports how long until one is.
func (s *limiterStore) take(b bucket, client string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) > limiterSweepInterval {
		s.sweep(now)
	}

	key := b.name + "|" + client
	entry, ok := s.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Every(b.every), b.burst)}
		s.entries[key] = entry
	}
	entry.lastSeen = now

	res := entry.limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return delay, false
	}
	return 0, true
}

func (s *limiterStore) sweep(now time.Time) {
	for key, entry := range s.entries {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(s.entries, key)
		}
	}
	s.lastSweep = now
}

func parsePrefixes(cidrs []string) []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		if p, err := netip.ParsePrefix(strings.TrimSpace(c)); err == nil {
			prefixes = append(prefixes, p.Masked())
		}
	}
	return prefixes
}

// clientKey identifies the caller. Forwarding headers are honoured only when the direct
// peer is a trusted proxy.
func clientKey(r *http.Request, trusted []netip.Prefix) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(peer); err == nil {
		peer = host
	}
	if !fromTrustedProxy(peer, trusted) {
		return peer
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	return peer
}

func fromTrustedProxy(peer string, trusted []netip.Prefix) bool {
	addr, err := netip.ParseAddr(peer)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
