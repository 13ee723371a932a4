package api

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/stagegate/pkg/logger"
	"github.com/wonny/stagegate/pkg/redis"
)

// Limiter enforces a per-client request budget
// Redis 가 켜져 있으면 인스턴스 간 공유 sliding window, 아니면 프로세스 로컬 token bucket
type Limiter struct {
	rps    float64
	burst  int
	remote *redis.RateLimiter
	logger *logger.Logger

	mu      sync.Mutex
	clients map[string]*rate.Limiter
}

// NewLimiter creates a limiter; remote may be nil
func NewLimiter(rps float64, burst int, remote *redis.RateLimiter, log *logger.Logger) *Limiter {
	return &Limiter{
		rps:     rps,
		burst:   burst,
		remote:  remote,
		logger:  log.WithField("module", "rate_limit"),
		clients: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether the client may make another request now
func (l *Limiter) Allow(ctx context.Context, client string) bool {
	if l.remote != nil {
		allowed, _, err := l.remote.Allow(ctx, redis.ClientRateLimit(client, l.burst, l.window()))
		if err == nil {
			return allowed
		}
		// Redis 장애 시 로컬 버킷으로 폴백
		l.logger.WithError(err).Warn("Remote rate limit failed")
	}
	return l.local(client).Allow()
}

// window is the sliding window that holds burst requests at the sustained rate
func (l *Limiter) window() time.Duration {
	return time.Duration(float64(l.burst) / l.rps * float64(time.Second))
}

func (l *Limiter) local(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.clients[client]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.rps), l.burst)
		l.clients[client] = lim
	}
	return lim
}

// clientID identifies the caller by forwarded address or remote host
func clientID(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
