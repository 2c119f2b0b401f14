package server

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"golang.org/x/time/rate"
)

// requestLogger logs each completed request. The logger's handler adds the
// request id from the context.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.InfoContext(r.Context(), "request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// limiterIdle is the shortest time a client's bucket is kept after its last
// request.
const limiterIdle = 10 * time.Minute

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter keeps one token bucket per client address. Buckets idle for
// longer than idle are dropped when new clients arrive.
type clientLimiter struct {
	rps    rate.Limit
	burst  int
	idle   time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	clients   map[string]*clientBucket
	lastSweep time.Time
}

func newClientLimiter(rps float64, burst int, logger *slog.Logger) *clientLimiter {
	idle := limiterIdle
	// A dropped bucket comes back full, so keep it at least until it would
	// have refilled.
	if rps > 0 {
		if refill := time.Duration(float64(burst) / rps * float64(time.Second)); refill > idle {
			idle = refill
		}
	}
	return &clientLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		idle:    idle,
		logger:  logger,
		now:     time.Now,
		clients: make(map[string]*clientBucket),
	}
}

func (cl *clientLimiter) limiter(addr string) *rate.Limiter {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	now := cl.now()
	cl.mu.Lock()
	defer cl.mu.Unlock()
	b, ok := cl.clients[host]
	if !ok {
		if now.Sub(cl.lastSweep) >= cl.idle {
			cl.sweepLocked(now)
		}
		b = &clientBucket{limiter: rate.NewLimiter(cl.rps, cl.burst)}
		cl.clients[host] = b
	}
	b.lastSeen = now
	return b.limiter
}

func (cl *clientLimiter) sweepLocked(now time.Time) {
	for host, b := range cl.clients {
		if now.Sub(b.lastSeen) > cl.idle {
			delete(cl.clients, host)
		}
	}
	cl.lastSweep = now
}

func (cl *clientLimiter) len() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return len(cl.clients)
}

func (cl *clientLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !cl.limiter(r.RemoteAddr).Allow() {
			cl.logger.WarnContext(r.Context(), "rate limit exceeded",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
			)
			w.Header().Set("Retry-After", "1")
			render.Render(w, r, newAPIError(http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}
