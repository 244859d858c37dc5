package services

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// LimiterConfig caps concurrent AI generation runs
type LimiterConfig struct {
	MaxPerMerchant int           // runs one merchant may have in flight
	MaxTotal       int           // runs across all merchants
	QueueTimeout   time.Duration // how long a run waits for a slot
}

// DefaultLimiterConfig returns production defaults
func DefaultLimiterConfig() *LimiterConfig {
	return &LimiterConfig{
		MaxPerMerchant: 2,
		MaxTotal:       16,
		QueueTimeout:   30 * time.Second,
	}
}

// MerchantLimiter hands out generation slots per merchant and globally
type MerchantLimiter struct {
	mu           sync.RWMutex
	merchantSems map[string]chan struct{}
	totalSem     chan struct{}
	active       map[string]int
	config       *LimiterConfig
}

// NewMerchantLimiter creates a limiter
func NewMerchantLimiter(config *LimiterConfig) *MerchantLimiter {
	if config == nil {
		config = DefaultLimiterConfig()
	}
	return &MerchantLimiter{
		merchantSems: make(map[string]chan struct{}),
		totalSem:     make(chan struct{}, config.MaxTotal),
		active:       make(map[string]int),
		config:       config,
	}
}

func (l *MerchantLimiter) merchantSem(merchantID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	if sem, ok := l.merchantSems[merchantID]; ok {
		return sem
	}
	sem := make(chan struct{}, l.config.MaxPerMerchant)
	l.merchantSems[merchantID] = sem
	return sem
}

// Acquire waits for a merchant slot and a global slot. The returned release
// function must be called when the run finishes.
func (l *MerchantLimiter) Acquire(ctx context.Context, merchantID string) (func(), error) {
	queueCtx, cancel := context.WithTimeout(ctx, l.config.QueueTimeout)
	defer cancel()

	sem := l.merchantSem(merchantID)
	select {
	case sem <- struct{}{}:
	case <-queueCtx.Done():
		return nil, &BusyError{MerchantID: merchantID}
	}

	select {
	case l.totalSem <- struct{}{}:
	case <-queueCtx.Done():
		<-sem
		return nil, &BusyError{MerchantID: merchantID}
	}

	l.mu.Lock()
	l.active[merchantID]++
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.active[merchantID]--
			if l.active[merchantID] <= 0 {
				delete(l.active, merchantID)
			}
			l.mu.Unlock()

			<-l.totalSem
			<-sem
		})
	}, nil
}

// Active returns the number of runs a merchant has in flight
func (l *MerchantLimiter) Active(merchantID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active[merchantID]
}

// Stats returns limiter statistics for the readiness endpoint
func (l *MerchantLimiter) Stats() map[string]interface{} {
	l.mu.RLock()
	defer l.mu.RUnlock()

	byMerchant := make(map[string]int, len(l.active))
	total := 0
	for k, v := range l.active {
		byMerchant[k] = v
		total += v
	}
	return map[string]interface{}{
		"maxPerMerchant":       l.config.MaxPerMerchant,
		"maxTotal":             l.config.MaxTotal,
		"activeRuns":           total,
		"activeRunsByMerchant": byMerchant,
	}
}

// BusyError is returned when no generation slot frees up in time
type BusyError struct {
	MerchantID string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("too many generation runs in progress for merchant %q, try again shortly", e.MerchantID)
}
