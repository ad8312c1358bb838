package iot

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiterStore manages per-device ingestion rate limiters: device_uid -> rate limiter
type RateLimiterStore struct {
	limiters     map[string]*rate.Limiter
	mu           sync.Mutex
	defaultRate  rate.Limit
	defaultBurst int
}

func NewRateLimiterStore(defaultRate rate.Limit, defaultBurst int) *RateLimiterStore {
	return &RateLimiterStore{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  defaultRate,
		defaultBurst: defaultBurst,
	}
}

func (s *RateLimiterStore) GetLimiter(deviceUID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, exists := s.limiters[deviceUID]
	if !exists {
		limiter = rate.NewLimiter(s.defaultRate, s.defaultBurst)
		s.limiters[deviceUID] = limiter
	}
	return limiter
}

func (s *RateLimiterStore) SetLimiter(deviceUID string, deviceRate rate.Limit, deviceBurst int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limiters[deviceUID] = rate.NewLimiter(deviceRate, deviceBurst)
}

// Allow reports whether one more report from deviceUID may be accepted now.
// A nil store lets everything through.
func (s *RateLimiterStore) Allow(deviceUID string) bool {
	if s == nil {
		return true
	}
	return s.GetLimiter(deviceUID).Allow()
}

// Forget drops a device's limiter so the next report starts from the defaults.
func (s *RateLimiterStore) Forget(deviceUID string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.limiters, deviceUID)
}
