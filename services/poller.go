package services

import (
	"context"
	"sync"
	"time"

	"github.com/yeremiapane/order-relay/config"
	"github.com/yeremiapane/order-relay/utils"
)

// FallbackPoller resyncs on a fixed interval while push delivery cannot be
// trusted: the channel is down or the store is waiting to be re-enabled.
type FallbackPoller struct {
	Interval time.Duration
	healthy  func() bool
	fetch     func(ctx context.Context) error

	mu       sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

// NewFallbackPoller -> healthy dicek setiap tick; fetch hanya jalan kalau hasilnya false
func NewFallbackPoller(interval time.Duration, healthy func() bool, fetch func(ctx context.Context) error) *FallbackPoller {
	if interval <= 0 {
		interval = config.DefaultPollInterval
	}
	return &FallbackPoller{
		Interval: interval,
		healthy:  healthy,
		fetch:    fetch,
	}
}

// Start begins ticking. Starting a running poller does nothing.
func (p *FallbackPoller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopChan != nil {
		return
	}
	p.stopChan = make(chan struct{})
	p.done = make(chan struct{})
	go p.loop(ctx, p.stopChan, p.done)
}

// Stop halts the ticker and waits for an in-flight fetch to return. Safe to call twice.
func (p *FallbackPoller) Stop() {
	p.mu.Lock()
	stop, done := p.stopChan, p.done
	p.stopChan, p.done = nil, nil
	p.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (p *FallbackPoller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopChan != nil
}

func (p *FallbackPoller) loop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.tick(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			p.mu.Lock()
			if p.stopChan == stop {
				p.stopChan, p.done = nil, nil
			}
			p.mu.Unlock()
			return
		}
	}
}

func (p *FallbackPoller) tick(ctx context.Context) {
	if p.healthy != nil && p.healthy() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			utils.ErrorLogger.Errorf("Fallback poll panicked: %v", r)
		}
	}()
	utils.InfoLogger.Debug("Push delivery unavailable, polling orders")
	if err := p.fetch(ctx); err != nil {
		utils.ErrorLogger.Warnf("Fallback poll failed: %v", err)
	}
}
