// Package security 提供API密钥校验与客户端限流
package security

import (
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var (
	ErrInvalidAPIKey     = errors.New("无效的API密钥")
	ErrExpiredAPIKey     = errors.New("API密钥已过期")
	ErrRateLimitExceeded = errors.New("请求频率超限")
)

// 权限范围
const (
	ScopeAll        = "*"
	ScopeRead       = "read"
	ScopePlanWrite  = "plans:write"
	ScopeLoadWrite  = "loads:write"
	ScopeTrailerSet = "trailer-spec:write"
)

// APIKey API密钥
type APIKey struct {
	Key       string     `json:"-"`
	Name      string     `json:"name"`
	Scopes    []string   `json:"scopes"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Enabled   bool       `json:"enabled"`
}

// IsValid 检查密钥是否有效
func (k *APIKey) IsValid() bool {
	if !k.Enabled {
		return false
	}
	if k.ExpiresAt != nil && k.ExpiresAt.Before(time.Now()) {
		return false
	}
	return true
}

// HasScope 检查密钥是否有某权限
func (k *APIKey) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope || s == ScopeAll {
			return true
		}
	}
	return false
}

// APIKeyManager API密钥管理器
type APIKeyManager struct {
	keys map[string]*APIKey
	mu   sync.RWMutex
}

// NewAPIKeyManager 创建密钥管理器
func NewAPIKeyManager() *APIKeyManager {
	return &APIKeyManager{
		keys: make(map[string]*APIKey),
	}
}

// NewStaticKeyManager 用配置中的静态密钥创建管理器，密钥拥有全部权限
func NewStaticKeyManager(keys []string) *APIKeyManager {
	m := NewAPIKeyManager()
	for i, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		m.Register(&APIKey{
			Key:       k,
			Name:      "static-" + strconv.Itoa(i),
			Scopes:    []string{ScopeAll},
			CreatedAt: time.Now(),
			Enabled:   true,
		})
	}
	return m
}

// Register 注册密钥
func (m *APIKeyManager) Register(key *APIKey) {
	m.mu.Lock()
	m.keys[key.Key] = key
	m.mu.Unlock()
}

// Len 已注册密钥数
func (m *APIKeyManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys)
}

// Validate 验证密钥
func (m *APIKeyManager) Validate(key string) (*APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// 逐个常量时间比较，避免通过响应时间猜测密钥
	var found *APIKey
	for k, v := range m.keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			found = v
		}
	}
	if found == nil {
		return nil, ErrInvalidAPIKey
	}
	if !found.IsValid() {
		return nil, ErrExpiredAPIKey
	}
	return found, nil
}

// Revoke 撤销密钥
func (m *APIKeyManager) Revoke(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if apiKey, exists := m.keys[key]; exists {
		apiKey.Enabled = false
	}
}

// RateLimiter 按客户端划分的令牌桶限流器
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter 创建限流器，perSecond<=0 时不限流
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = int(perSecond * 2)
		if burst < 1 {
			burst = 1
		}
	}
	return &RateLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idleTTL: 10 * time.Minute,
		clients: make(map[string]*clientLimiter),
	}
}

// Enabled 是否启用
func (rl *RateLimiter) Enabled() bool {
	return rl != nil && rl.limit > 0
}

// Allow 检查是否允许请求
func (rl *RateLimiter) Allow(key string) bool {
	if !rl.Enabled() {
		return true
	}
	return rl.get(key, time.Now()).Allow()
}

// get 获取客户端限流器，顺带清理长时间未出现的客户端
func (rl *RateLimiter) get(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.clients[key]
	if !ok {
		if len(rl.clients) >= 1024 {
			rl.sweepLocked(now)
		}
		c = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter
}

// Sweep 清理空闲客户端
func (rl *RateLimiter) Sweep(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.sweepLocked(now)
}

func (rl *RateLimiter) sweepLocked(now time.Time) int {
	removed := 0
	for k, c := range rl.clients {
		if now.Sub(c.lastSeen) > rl.idleTTL {
			delete(rl.clients, k)
			removed++
		}
	}
	return removed
}

// ExtractAPIKey 从请求中提取API密钥
func ExtractAPIKey(r *http.Request) string {
	// 1. 从 Authorization header
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}

	// 2. 从 X-API-Key header
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}

	return ""
}

// ClientKey 限流用的客户端标识，有密钥用密钥，否则用来源IP
func ClientKey(r *http.Request) string {
	if key := ExtractAPIKey(r); key != "" {
		return "key:" + key
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return "ip:" + strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
