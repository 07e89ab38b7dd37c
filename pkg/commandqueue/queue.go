package commandqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/prasetya/lintas/internal/observability"
	"github.com/prasetya/lintas/internal/tracing"
)

// Task represents an asynchronous operation to be executed
type Task func(ctx context.Context) (interface{}, error)

// taskRecord tracks a task's execution state
type taskRecord struct {
	id         string
	task       Task
	ctx        context.Context
	enqueuedAt time.Time
	result     chan taskResult
}

type taskResult struct {
	value interface{}
	err   error
}

// laneState manages execution state for a single lane
type laneState struct {
	concurrency int
	queue       []*taskRecord
	running     int
	mu          sync.Mutex
}

// CommandQueue provides lane-based task serialization with concurrency control
type CommandQueue struct {
	lanes     map[string]*laneState
	taskIDSeq int
	dedup     *dedupCache
	mu        sync.RWMutex
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a new CommandQueue
func New() *CommandQueue {
	observability.EnsureRegistered()

	ctx, cancel := context.WithCancel(context.Background())

	return &CommandQueue{
		lanes:  make(map[string]*laneState),
		dedup:  newDedupCache(ctx, 0),
		ctx:    ctx,
		cancel: cancel,
	}
}

// initLane initializes a lane with specified concurrency
func (cq *CommandQueue) initLane(lane string, concurrency int) {
	cq.mu.Lock()
	defer cq.mu.Unlock()

	if _, exists := cq.lanes[lane]; !exists {
		cq.lanes[lane] = &laneState{
			concurrency: concurrency,
			queue:       make([]*taskRecord, 0),
		}
		log.Debug().Str("lane", lane).Int("concurrency", concurrency).Msg("Lane initialized")
	}
}

// ensureLane creates a lane if it doesn't exist
func (cq *CommandQueue) ensureLane(lane string) *laneState {
	cq.mu.RLock()
	ls, exists := cq.lanes[lane]
	cq.mu.RUnlock()

	if !exists {
		cq.initLane(lane, 1)
		cq.mu.RLock()
		ls = cq.lanes[lane]
		cq.mu.RUnlock()
	}
	return ls
}

// Enqueue adds a task to the specified lane and blocks until it completes.
func (cq *CommandQueue) Enqueue(ctx context.Context, lane string, task Task) (interface{}, error) {
	return cq.EnqueueIdempotent(ctx, lane, "", task)
}

// EnqueueIdempotent adds a task to the specified lane. When requestID is
// non-empty and a previous task with the same requestID already completed,
// its cached result is returned without re-executing.
func (cq *CommandQueue) EnqueueIdempotent(ctx context.Context, lane, requestID string, task Task) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if requestID != "" {
		if cached, ok := cq.dedup.Get(requestID); ok {
			log.Debug().Str("lane", lane).Str("request_id", requestID).Msg("Duplicate request served from cache")
			return cached.value, cached.err
		}
	}

	ctx, span := tracing.StartSpan(
		ctx,
		"lintas.commandqueue",
		"commandqueue.enqueue",
		attribute.String("lane", lane),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, log.Logger).With().Str("lane", lane).Logger()

	ls := cq.ensureLane(lane)

	cq.mu.Lock()
	cq.taskIDSeq++
	taskID := fmt.Sprintf("%s-%d", lane, cq.taskIDSeq)
	cq.mu.Unlock()

	record := &taskRecord{
		id:         taskID,
		task:       task,
		ctx:        ctx,
		enqueuedAt: time.Now(),
		result:     make(chan taskResult, 1),
	}

	ls.mu.Lock()
	ls.queue = append(ls.queue, record)
	queueSize := len(ls.queue)
	ls.mu.Unlock()

	logger.Debug().Str("task_id", taskID).Int("queue_size", queueSize).Msg("Task enqueued")
	observability.RecordQueueEnqueue(lane, queueSize)

	go cq.processLane(lane)

	result := <-record.result
	if result.err != nil {
		span.RecordError(result.err)
		span.SetStatus(codes.Error, result.err.Error())
	}

	if requestID != "" {
		cq.dedup.Set(requestID, result)
	}
	return result.value, result.err
}

// processLane processes queued tasks for a lane
func (cq *CommandQueue) processLane(lane string) {
	cq.mu.RLock()
	ls := cq.lanes[lane]
	cq.mu.RUnlock()
	if ls == nil {
		return
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	for ls.running < ls.concurrency && len(ls.queue) > 0 {
		record := ls.queue[0]
		ls.queue = ls.queue[1:]
		ls.running++

		cq.wg.Add(1)
		go cq.executeTask(lane, record)
	}
}

// executeTask executes a single task
func (cq *CommandQueue) executeTask(lane string, record *taskRecord) {
	defer cq.wg.Done()

	taskCtx := record.ctx
	if taskCtx == nil {
		taskCtx = context.Background()
	}
	taskCtx, span := tracing.StartSpan(
		taskCtx,
		"lintas.commandqueue",
		"commandqueue.execute_task",
		attribute.String("lane", lane),
		attribute.String("task_id", record.id),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(taskCtx, log.Logger).With().Str("lane", lane).Logger()

	// Queue shutdown cancels in-flight tasks.
	runCtx, cancel := context.WithCancel(taskCtx)
	stopCancel := context.AfterFunc(cq.ctx, cancel)
	defer func() {
		stopCancel()
		cancel()
	}()

	startTime := time.Now()
	value, err := record.task(runCtx)
	duration := time.Since(startTime)

	cq.mu.RLock()
	ls := cq.lanes[lane]
	cq.mu.RUnlock()

	ls.mu.Lock()
	ls.running--
	queueSize := len(ls.queue)
	ls.mu.Unlock()

	record.result <- taskResult{value: value, err: err}
	close(record.result)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Str("task_id", record.id).Dur("duration", duration).Err(err).Msg("Task failed")
	} else {
		logger.Debug().Str("task_id", record.id).Dur("duration", duration).Msg("Task completed")
	}

	observability.RecordQueueCompletion(lane, duration, err == nil, queueSize)

	go cq.processLane(lane)
}

// QueueSize returns the number of queued tasks for a lane
func (cq *CommandQueue) QueueSize(lane string) int {
	cq.mu.RLock()
	ls, exists := cq.lanes[lane]
	cq.mu.RUnlock()

	if !exists {
		return 0
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.queue)
}

// RunningCount returns the number of currently executing tasks for a lane
func (cq *CommandQueue) RunningCount(lane string) int {
	cq.mu.RLock()
	ls, exists := cq.lanes[lane]
	cq.mu.RUnlock()

	if !exists {
		return 0
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.running
}

// Close gracefully shuts down the command queue, waiting for in-flight
// tasks to finish.
func (cq *CommandQueue) Close() error {
	cq.cancel()
	cq.wg.Wait()
	cq.dedup.Stop()
	return nil
}
