package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prohmpiriya/booking-rush-reservation/pkg/logger"
)

// HoldExpirer releases holds whose deadline passed without their timer running
type HoldExpirer interface {
	ExpireStaleHolds(ctx context.Context) (int, error)
}

// HoldSweeperConfig contains configuration for the hold sweeper
type HoldSweeperConfig struct {
	// ScanInterval is the interval between sweeps
	ScanInterval time.Duration
}

// DefaultHoldSweeperConfig returns default configuration
func DefaultHoldSweeperConfig() *HoldSweeperConfig {
	return &HoldSweeperConfig{
		ScanInterval: 30 * time.Second,
	}
}

// HoldSweeper is the backstop for expiry timers. Timers normally release every
// hold; the sweeper catches the ones lost to a shutdown race or a stalled task.
type HoldSweeper struct {
	expirer HoldExpirer
	config  *HoldSweeperConfig
	log     *logger.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	// Stats
	totalSweeps      int64
	totalExpired     int64
	totalErrors      int64
	lastScanTime     time.Time
	lastExpiredCount int
}

// NewHoldSweeper creates a new hold sweeper
func NewHoldSweeper(expirer HoldExpirer, config *HoldSweeperConfig) *HoldSweeper {
	if config == nil || config.ScanInterval <= 0 {
		config = DefaultHoldSweeperConfig()
	}

	return &HoldSweeper{
		expirer: expirer,
		config:  config,
		log:     logger.Get(),
		stopCh:  make(chan struct{}),
	}
}

// Start starts the hold sweeper
func (w *HoldSweeper) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("hold sweeper already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info(fmt.Sprintf("Starting hold sweeper (interval: %s)", w.config.ScanInterval))

	w.wg.Add(1)
	go w.run(ctx)

	return nil
}

// Stop stops the hold sweeper and waits for a running sweep
func (w *HoldSweeper) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("Stopping hold sweeper")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Hold sweeper stopped")
}

func (w *HoldSweeper) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep runs a single pass and returns the number of released holds
func (w *HoldSweeper) Sweep(ctx context.Context) int {
	expired, err := w.expirer.ExpireStaleHolds(ctx)

	w.mu.Lock()
	w.totalSweeps++
	w.lastScanTime = time.Now()
	w.lastExpiredCount = expired
	w.totalExpired += int64(expired)
	if err != nil {
		w.totalErrors++
	}
	w.mu.Unlock()

	if err != nil {
		w.log.Error(fmt.Sprintf("Hold sweep failed after %d releases: %v", expired, err))
		return expired
	}
	if expired > 0 {
		w.log.Warn(fmt.Sprintf("Hold sweep released %d holds missed by their timers", expired))
	}
	return expired
}

// GetStats returns sweeper statistics
func (w *HoldSweeper) GetStats() *HoldSweeperStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &HoldSweeperStats{
		IsRunning:        w.running,
		TotalSweeps:      w.totalSweeps,
		TotalExpired:     w.totalExpired,
		TotalErrors:      w.totalErrors,
		LastScanTime:     w.lastScanTime,
		LastExpiredCount: w.lastExpiredCount,
	}
}

// HoldSweeperStats contains sweeper statistics
type HoldSweeperStats struct {
	IsRunning        bool      `json:"is_running"`
	TotalSweeps      int64     `json:"total_sweeps"`
	TotalExpired     int64     `json:"total_expired"`
	TotalErrors      int64     `json:"total_errors"`
	LastScanTime     time.Time `json:"last_scan_time"`
	LastExpiredCount int       `json:"last_expired_count"`
}
