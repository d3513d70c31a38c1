package security

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"retest_backend/internal/config"
	"retest_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"golang.org/x/time/rate"
)

var (
	defaultAllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	defaultAllowHeaders = []string{"Content-Type", "Content-Length", "Accept-Encoding", "Authorization", "Accept", "Origin", "Cache-Control", "X-Requested-With"}
)

// CORS 中间件 按配置的Origin白名单放行，"*" 表示放行所有Origin（此时不带Credentials）。
// 提交接口依赖 Idempotency-Key 头，无论配置如何都会放行该头
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	allowAny := lo.Contains(cfg.AllowedOrigins, "*")
	originSet := lo.SliceToMap(cfg.AllowedOrigins, func(o string) (string, struct{}) {
		return strings.TrimRight(o, "/"), struct{}{}
	})

	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = defaultAllowMethods
	}
	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = defaultAllowHeaders
	}
	headers = lo.Uniq(append(append([]string{}, headers...), "Idempotency-Key"))

	allowMethods := strings.Join(lo.Map(methods, func(m string, _ int) string { return strings.ToUpper(m) }), ", ")
	allowHeaders := strings.Join(headers, ", ")

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		c.Writer.Header().Add("Vary", "Origin")

		if origin != "" {
			if _, ok := originSet[origin]; ok {
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
				c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			} else if allowAny {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			}
		}

		c.Writer.Header().Set("Access-Control-Allow-Headers", allowHeaders)
		c.Writer.Header().Set("Access-Control-Allow-Methods", allowMethods)

		if c.Request.Method == http.MethodOptions {
			if cfg.MaxAgeSeconds > 0 {
				c.Writer.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAgeSeconds))
			}
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Secure 中间件
func Secure() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		}

		c.Next()
	}
}

// KeyFunc 返回限流维度，空串表示该请求不参与限流
type KeyFunc func(c *gin.Context) string

func ClientIP(c *gin.Context) string {
	return c.ClientIP()
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter 按 KeyFunc 分桶的令牌桶限流器
type Limiter struct {
	scope  string
	key    KeyFunc
	limit  rate.Limit
	burst  int
	idle   time.Duration
	exempt []string

	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
}

// NewLimiter 每个 key 在 window 内最多 maxRequests 次，burst 为 0 时等于 maxRequests。
// maxRequests 不大于 0 时不限流
func NewLimiter(scope string, maxRequests int, window time.Duration, burst int, key KeyFunc) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	if burst <= 0 {
		burst = maxRequests
	}
	l := &Limiter{
		scope:    scope,
		key:      key,
		burst:    burst,
		idle:     lo.Max([]time.Duration{window * 3, time.Minute}),
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
	if maxRequests > 0 {
		l.limit = rate.Every(window / time.Duration(maxRequests))
	}
	return l
}

// RateLimiter 全局按IP限流，exempt_paths 中的前缀（健康检查、指标）不计数
func RateLimiter(cfg config.RateLimitConfig) *Limiter {
	l := NewLimiter("global", cfg.MaxRequests, time.Duration(cfg.WindowMinutes)*time.Minute, cfg.Burst, ClientIP)
	l.exempt = cfg.ExemptPaths
	return l
}

func (l *Limiter) Enabled() bool {
	return l.limit > 0
}

// Allow 消耗一个令牌；被拒绝时返回需要等待的时长
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	r := v.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Sweep 清理长时间未出现的 key，返回清理数量
func (l *Limiter) Sweep() int {
	cutoff := l.now().Add(-l.idle)

	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, k)
			n++
		}
	}
	return n
}

// Run 定期清理过期条目，直到 ctx 结束
func (l *Limiter) Run(ctx context.Context) {
	if !l.Enabled() {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Enabled() || l.isExempt(c.Request.URL.Path) {
			c.Next()
			return
		}
		key := l.key(c)
		if key == "" {
			c.Next()
			return
		}

		ok, wait := l.Allow(key)
		if !ok {
			monitoring.RateLimited.WithLabelValues(l.scope).Inc()
			if wait > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"code": http.StatusTooManyRequests, "message": "too many requests"})
			return
		}

		c.Next()
	}
}

func (l *Limiter) isExempt(path string) bool {
	return lo.SomeBy(l.exempt, func(p string) bool { return p != "" && strings.HasPrefix(path, p) })
}
