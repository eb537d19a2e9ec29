package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/medlemshub/medlemshub/internal/pkg/cache"
)

const (
	// Redis key prefixes
	JobKeyPrefix     = "job:"
	JobQueueKey      = "job_queue"
	JobProcessingKey = "job_processing"

	// Job settings
	DefaultMaxRetries = 3
	JobTTL            = 24 * time.Hour // Jobs expire after 24 hours
)

// Handler processes one job. Returning an error triggers a retry until the
// job's MaxRetries is exhausted.
type Handler func(ctx context.Context, job *Job) error

// Queue manages background jobs using Redis
type Queue struct {
	client   *redis.Client
	workers  int
	handlers map[JobType]Handler
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewQueue creates a new job queue
func NewQueue(workers int) *Queue {
	if workers <= 0 {
		workers = 2
	}

	return &Queue{
		client:   cache.GetClient(),
		workers:  workers,
		handlers: make(map[JobType]Handler),
		stopCh:   make(chan struct{}),
	}
}

// RegisterHandler binds a handler to a job type. Must be called before Start.
func (q *Queue) RegisterHandler(jobType JobType, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = handler
}

// Start starts the job queue workers
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}

	q.running = true
	log.Infof("[JobQueue] Starting %d workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
}

// Stop stops the job queue workers and waits for in-flight jobs to finish.
// The mutex is released before waiting: workers take it during processing,
// so holding it across the wait would deadlock shutdown.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}

	log.Info("[JobQueue] Stopping workers...")
	close(q.stopCh)
	q.running = false
	q.mu.Unlock()

	q.wg.Wait()
	log.Info("[JobQueue] All workers stopped")
}

// EnqueueJob adds a new job to the queue
func (q *Queue) EnqueueJob(jobType JobType, payload map[string]interface{}) (*Job, error) {
	ctx := context.Background()

	job := &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Status:     JobStatusPending,
		Payload:    payload,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
		RetryCount: 0,
		MaxRetries: DefaultMaxRetries,
	}

	if err := q.updateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("store job: %w", err)
	}
	if err := q.client.RPush(ctx, JobQueueKey, job.ID).Err(); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

// GetJob loads a job by id.
func (q *Queue) GetJob(id string) (*Job, error) {
	ctx := context.Background()
	data, err := q.client.Get(ctx, JobKeyPrefix+id).Result()
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

// worker processes jobs from the queue
func (q *Queue) worker(id int) {
	defer q.wg.Done()
	log.Infof("[JobQueue] Worker %d started", id)

	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			log.Infof("[JobQueue] Worker %d stopping", id)
			return
		default:
			job, err := q.dequeueJob(ctx)
			if err != nil {
				if err != redis.Nil {
					log.Errorf("[JobQueue] Worker %d: Error dequeuing job: %v", id, err)
				}
				time.Sleep(time.Second)
				continue
			}

			if job != nil {
				log.Infof("[JobQueue] Worker %d processing job %s (Type: %s)", id, job.ID, job.Type)
				q.processJob(ctx, job)
			}
		}
	}
}

// dequeueJob atomically moves one job id from the pending list to the
// processing list and loads its data.
func (q *Queue) dequeueJob(ctx context.Context) (*Job, error) {
	id, err := q.client.LMove(ctx, JobQueueKey, JobProcessingKey, "LEFT", "RIGHT").Result()
	if err != nil {
		return nil, err
	}

	job, err := q.GetJob(id)
	if err != nil {
		// Job data missing; drop the stray processing entry.
		_ = q.client.LRem(ctx, JobProcessingKey, 1, id).Err()
		return nil, err
	}
	return job, nil
}

func (q *Queue) processJob(ctx context.Context, job *Job) {
	defer func() {
		_ = q.client.LRem(ctx, JobProcessingKey, 1, job.ID).Err()
	}()

	q.mu.Lock()
	handler, ok := q.handlers[job.Type]
	q.mu.Unlock()
	if !ok {
		log.Errorf("[JobQueue] No handler for job type %s, dropping job %s", job.Type, job.ID)
		job.Status = JobStatusFailed
		job.ErrorMsg = "no handler registered"
		job.UpdatedAt = time.Now()
		_ = q.updateJob(ctx, job)
		return
	}

	now := time.Now()
	job.Status = JobStatusProcessing
	job.ProcessedAt = &now
	job.UpdatedAt = now
	_ = q.updateJob(ctx, job)

	err := handler(ctx, job)
	if err == nil {
		done := time.Now()
		job.Status = JobStatusCompleted
		job.CompletedAt = &done
		job.ErrorMsg = ""
		job.UpdatedAt = done
		_ = q.updateJob(ctx, job)
		return
	}

	job.RetryCount++
	job.ErrorMsg = err.Error()
	job.UpdatedAt = time.Now()
	if job.RetryCount >= job.MaxRetries {
		log.Errorf("[JobQueue] Job %s (Type: %s) failed permanently after %d attempts: %v",
			job.ID, job.Type, job.RetryCount, err)
		job.Status = JobStatusFailed
		_ = q.updateJob(ctx, job)
		return
	}

	log.Warnf("[JobQueue] Job %s (Type: %s) failed (attempt %d/%d), requeueing: %v",
		job.ID, job.Type, job.RetryCount, job.MaxRetries, err)
	job.Status = JobStatusRetrying
	_ = q.updateJob(ctx, job)
	_ = q.client.RPush(ctx, JobQueueKey, job.ID).Err()
}

func (q *Queue) updateJob(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.Set(ctx, JobKeyPrefix+job.ID, data, JobTTL).Err()
}
