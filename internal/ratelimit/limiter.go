// Package ratelimit caps how fast operators may call the match control
// endpoints, per operator and per client IP.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Clock interface for testing time-dependent behavior.
type Clock interface {
	Now() time.Time
}

// realClock implements Clock using the system time.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Config struct {
	Window time.Duration // Counting window (default: 1m)
	// MaxPerOperator caps requests per operator in one window (default: 30).
	MaxPerOperator int
	// MaxPerIP caps requests per client IP in one window (default: 120).
	// Kiosks behind one NAT share this budget.
	MaxPerIP int

	// Clock for testing (nil uses real time)
	Clock Clock
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() *Config {
	return &Config{
		Window:         time.Minute,
		MaxPerOperator: 30,
		MaxPerIP:       120,
	}
}

// LimitResult contains the result of a rate limit check.
type LimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
	Reason     string // For logging
}

// entry counts requests in the current window.
type entry struct {
	count   int
	firstAt time.Time // First request in window
	lastAt  time.Time
}

type Limiter struct {
	config *Config
	clock  Clock
	mu     sync.Mutex
	// Keyed by hash of operator ID or IP
	byOperator map[string]*entry
	byIP       map[string]*entry

	// Cleanup goroutine management
	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc
	cleanupOnce   sync.Once
	cleanupWg     sync.WaitGroup
}

// New creates a new rate limiter with the given config. Zero fields take
// their defaults.
func New(cfg *Config) *Limiter {
	defaults := DefaultConfig()
	if cfg == nil {
		cfg = defaults
	}
	if cfg.Window <= 0 {
		cfg.Window = defaults.Window
	}
	if cfg.MaxPerOperator <= 0 {
		cfg.MaxPerOperator = defaults.MaxPerOperator
	}
	if cfg.MaxPerIP <= 0 {
		cfg.MaxPerIP = defaults.MaxPerIP
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Limiter{
		config:        cfg,
		clock:         clock,
		byOperator:    make(map[string]*entry),
		byIP:          make(map[string]*entry),
		cleanupCtx:    ctx,
		cleanupCancel: cancel,
	}
}

// Close stops the cleanup goroutine and releases resources.
func (l *Limiter) Close() {
	l.cleanupCancel()
	l.cleanupWg.Wait()
}

// Allow checks both budgets and, when the request is allowed, counts it
// against them. An empty operatorID only counts against the IP budget.
func (l *Limiter) Allow(operatorID, ip string) LimitResult {
	l.startCleanup()
	now := l.clock.Now()
	opKey := l.hashKey("op:", normalizeIdentifier(operatorID))
	ipKey := l.hashKey("ip:", ip)

	l.mu.Lock()
	defer l.mu.Unlock()

	if operatorID != "" {
		if result := l.check(l.byOperator[opKey], l.config.MaxPerOperator, now, "operator_limit"); !result.Allowed {
			return result
		}
	}
	if result := l.check(l.byIP[ipKey], l.config.MaxPerIP, now, "ip_limit"); !result.Allowed {
		return result
	}

	if operatorID != "" {
		l.byOperator[opKey] = l.record(l.byOperator[opKey], now)
	}
	l.byIP[ipKey] = l.record(l.byIP[ipKey], now)
	return LimitResult{Allowed: true}
}

func (l *Limiter) check(e *entry, limit int, now time.Time, reason string) LimitResult {
	if e == nil {
		return LimitResult{Allowed: true}
	}
	elapsed := now.Sub(e.firstAt)
	if elapsed < l.config.Window && e.count >= limit {
		return LimitResult{
			Allowed:    false,
			RetryAfter: l.config.Window - elapsed,
			Reason:     reason,
		}
	}
	return LimitResult{Allowed: true}
}

func (l *Limiter) record(e *entry, now time.Time) *entry {
	if e == nil || now.Sub(e.firstAt) >= l.config.Window {
		return &entry{count: 1, firstAt: now, lastAt: now}
	}
	e.count++
	e.lastAt = now
	return e
}

func (l *Limiter) hashKey(prefix, value string) string {
	hash := sha256.Sum256([]byte(value))
	return prefix + hex.EncodeToString(hash[:8])
}

// normalizeIdentifier lowercases the identifier to prevent case-based bypass.
func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

func (l *Limiter) startCleanup() {
	l.cleanupOnce.Do(func() {
		l.cleanupWg.Add(1)
		go func() {
			defer l.cleanupWg.Done()
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-l.cleanupCtx.Done():
					return
				case <-ticker.C:
					l.cleanup()
				}
			}
		}()
	})
}

func (l *Limiter) cleanup() {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, e := range l.byOperator {
		if now.Sub(e.lastAt) > l.config.Window {
			delete(l.byOperator, k)
		}
	}
	for k, e := range l.byIP {
		if now.Sub(e.lastAt) > l.config.Window {
			delete(l.byIP, k)
		}
	}
}

// GetClientIP extracts the client IP from a request.
// When trustProxy is true, uses the rightmost IP from X-Forwarded-For (added by your proxy).
// When trustProxy is false, ignores X-Forwarded-For entirely (prevents spoofing).
func GetClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			// Use RIGHTMOST IP - this is the one your proxy added, not user-supplied
			parts := strings.Split(xff, ",")
			for i := len(parts) - 1; i >= 0; i-- {
				ip := strings.TrimSpace(parts[i])
				// Skip private/internal IPs to find the real client
				if ip != "" && !isPrivateIP(ip) {
					return ip
				}
			}
			// All IPs are private, use the last one
			return strings.TrimSpace(parts[len(parts)-1])
		}

		// Check X-Real-IP (set by nginx)
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr without a port
		return r.RemoteAddr
	}
	return ip
}

var privateNetworks []*net.IPNet

func init() {
	privateRanges := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"::1/128",
		"fc00::/7",
		"fe80::/10", // Link-local
	}
	for _, cidr := range privateRanges {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("invalid private CIDR: " + cidr)
		}
		privateNetworks = append(privateNetworks, network)
	}
}

// isPrivateIP checks if an IP is in a private/reserved range, including
// IPv4-mapped IPv6 addresses.
func isPrivateIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	if ipv4 := ip.To4(); ipv4 != nil {
		ip = ipv4
	}
	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// LogRateLimitExceeded logs a rejected request.
func LogRateLimitExceeded(ctx context.Context, operatorID, ip, reason string) {
	log.Ctx(ctx).Warn().
		Str("event", "rate_limit_exceeded").
		Str("operator_id", operatorID).
		Str("ip", ip).
		Str("reason", reason).
		Msg("Match control rate limit exceeded")
}
