package jobqueue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/medlemshub/medlemshub/app/repository"
	"github.com/medlemshub/medlemshub/internal/pkg/database"
	"github.com/medlemshub/medlemshub/internal/pkg/env"
	"github.com/medlemshub/medlemshub/internal/pkg/payments"
	"github.com/medlemshub/medlemshub/internal/pkg/pricing"
	"github.com/medlemshub/medlemshub/internal/pkg/settlement"
)

// Manager manages the global job queue and background tasks
type Manager struct {
	queue          *Queue
	capture        *CaptureProcessor
	rolloverTicker *time.Ticker
	stopCh         chan struct{}
	wg             sync.WaitGroup
	mu             sync.Mutex
	running        bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		workers := 2
		if v, err := strconv.Atoi(env.GetEnv("JOB_QUEUE_WORKERS", "2")); err == nil && v > 0 {
			workers = v
		}
		globalManager = &Manager{
			queue:  NewQueue(workers),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Capture returns the capture processor, or nil before Start.
func (m *Manager) Capture() *CaptureProcessor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capture
}

// Start starts the job queue and background tasks. The repository factory
// must be initialized first.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.capture = NewCaptureProcessor(m.queue, payments.NewVippsClientFromEnv(), repository.GetGlobalRepositories().Payment)
	m.queue.Start()

	// Safety net behind the lazy rollover: organizations that receive no
	// payments after new year still get their ledger reset.
	m.rolloverTicker = time.NewTicker(time.Hour)
	m.wg.Add(1)
	go m.rolloverWorker()

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.rolloverTicker != nil {
		m.rolloverTicker.Stop()
	}

	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	m.queue.Stop()
	log.Info("[JobQueue Manager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// rolloverWorker periodically resets stale subscription ledgers. The reset is
// idempotent, so running it hourly only ever touches rows whose billing year
// has actually fallen behind.
func (m *Manager) rolloverWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Rollover worker stopping")
			return
		case <-m.rolloverTicker.C:
			svc := settlement.NewServiceFromDB(database.GetDB(), pricing.NewCatalogFromEnv())
			n, err := svc.RolloverStale(context.Background(), time.Now())
			if err != nil {
				log.Errorf("[JobQueue Manager] Rollover sweep error: %v", err)
				continue
			}
			if n > 0 {
				log.Infof("[JobQueue Manager] Rollover sweep reset %d subscriptions", n)
			}
		}
	}
}
