package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/agentcore/internal/observability"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

type taskInstance struct {
	cfg TaskConfig
}

// AgentWorker drains one agent's bounded task queue serially, fed by a
// per-task trigger goroutine (interval ticker or cron evaluator).
type AgentWorker struct {
	agentID   string
	queueSize int
	queue     chan taskInstance

	mu    sync.Mutex
	tasks map[string]*TaskConfig
	state State

	paused atomic.Bool
	stopCh chan struct{}

	triggerWG  sync.WaitGroup
	workerDone chan struct{}

	runCtx    context.Context
	runCancel context.CancelFunc

	shutdownGraceS int
	emitter        EventEmitter
	metrics        *observability.Metrics
	logger         *observability.Logger
}

func newAgentWorker(agentID string, queueSize int, emitter EventEmitter, metrics *observability.Metrics, logger *observability.Logger) *AgentWorker {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &AgentWorker{
		agentID:        agentID,
		queueSize:      queueSize,
		queue:          make(chan taskInstance, queueSize),
		tasks:          make(map[string]*TaskConfig),
		state:          StateCreated,
		stopCh:         make(chan struct{}),
		workerDone:     make(chan struct{}),
		shutdownGraceS: DefaultShutdownGraceS,
		emitter:        emitter,
		metrics:        metrics,
		logger:         logger,
	}
}

// State reports the worker's current lifecycle state.
func (w *AgentWorker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *AgentWorker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// ScheduleTask registers a recurring task and starts its trigger
// goroutine. Safe to call before or after Start; tasks registered before
// Start begin firing once Start runs.
func (w *AgentWorker) ScheduleTask(cfg TaskConfig) error {
	if cfg.ID == "" {
		return fmt.Errorf("scheduler: task requires an id")
	}
	if cfg.Handler == nil {
		return fmt.Errorf("scheduler: task %s has no handler", cfg.ID)
	}
	if cfg.Interval <= 0 && cfg.CronExpr == "" {
		return fmt.Errorf("scheduler: task %s needs an interval or cron expression", cfg.ID)
	}
	if cfg.CronExpr != "" {
		if _, err := cronParser.Parse(cfg.CronExpr); err != nil {
			return fmt.Errorf("scheduler: invalid cron expression for task %s: %w", cfg.ID, err)
		}
	}

	w.mu.Lock()
	w.tasks[cfg.ID] = &cfg
	w.mu.Unlock()

	w.triggerWG.Add(1)
	go w.runTrigger(cfg)
	return nil
}

// Start transitions the worker to scheduled and begins draining its
// queue. The worker runs until Stop is called; ctx bounds individual
// task executions via a derived, cancellable context.
func (w *AgentWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.state == StateStopped || w.state == StateDeleted {
		w.mu.Unlock()
		return fmt.Errorf("scheduler: worker %s is %s, cannot start", w.agentID, w.state)
	}
	w.state = StateScheduled
	w.runCtx, w.runCancel = context.WithCancel(ctx)
	w.mu.Unlock()

	go w.drain()
	return nil
}

// Pause suspends all task triggers; the worker keeps draining whatever is
// already queued.
func (w *AgentWorker) Pause() {
	w.paused.Store(true)
	w.mu.Lock()
	if w.state == StateScheduled || w.state == StateRunning {
		w.state = StatePaused
	}
	w.mu.Unlock()
}

// Resume reactivates task triggers after a Pause.
func (w *AgentWorker) Resume() {
	w.paused.Store(false)
	w.mu.Lock()
	if w.state == StatePaused {
		w.state = StateScheduled
	}
	w.mu.Unlock()
}

// Stop cancels all triggers, drains the queue of whatever was already
// pending, and waits up to shutdown_grace_s for the in-flight task to
// finish before forcing cancellation.
func (w *AgentWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.state == StateStopped || w.state == StateDeleted {
		w.mu.Unlock()
		return nil
	}
	alreadyStarted := w.runCtx != nil
	w.state = StateStopped
	w.mu.Unlock()

	close(w.stopCh)
	w.triggerWG.Wait()
	close(w.queue)

	if !alreadyStarted {
		// Stop was called before Start; nothing is draining the queue.
		return nil
	}

	grace := time.Duration(w.shutdownGraceS) * time.Second
	if grace <= 0 {
		grace = DefaultShutdownGraceS * time.Second
	}

	select {
	case <-w.workerDone:
		return nil
	case <-time.After(grace):
		w.runCancel()
		<-w.workerDone
		return nil
	case <-ctx.Done():
		w.runCancel()
		<-w.workerDone
		return ctx.Err()
	}
}

// Delete stops the worker (if not already stopped) and marks it deleted.
func (w *AgentWorker) Delete(ctx context.Context) error {
	if err := w.Stop(ctx); err != nil {
		return err
	}
	w.setState(StateDeleted)
	return nil
}

func (w *AgentWorker) runTrigger(cfg TaskConfig) {
	defer w.triggerWG.Done()

	var schedule cron.Schedule
	if cfg.Interval <= 0 && cfg.CronExpr != "" {
		sched, err := cronParser.Parse(cfg.CronExpr)
		if err != nil {
			return // already validated in ScheduleTask; defensive only
		}
		schedule = sched
	}

	for {
		now := time.Now().UTC()
		var wait time.Duration
		if cfg.Interval > 0 {
			wait = cfg.Interval
		} else {
			wait = schedule.Next(now).Sub(now)
		}
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		select {
		case <-w.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		if w.paused.Load() {
			continue
		}

		select {
		case w.queue <- taskInstance{cfg: cfg}:
		default:
			w.recordOverflow(cfg.ID)
		}
	}
}

func (w *AgentWorker) drain() {
	defer close(w.workerDone)
	for inst := range w.queue {
		w.setState(StateRunning)
		w.execute(inst.cfg)
		w.mu.Lock()
		if w.state == StateRunning {
			w.state = StateScheduled
		}
		w.mu.Unlock()
	}
}

func (w *AgentWorker) execute(cfg TaskConfig) {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		execCtx, cancel := context.WithTimeout(w.runCtx, cfg.timeout())
		started := time.Now()
		lastErr = cfg.Handler(execCtx)
		cancel()

		if w.metrics != nil {
			status := "ok"
			if lastErr != nil {
				status = "error"
			}
			w.metrics.ToolExecutionCounter.WithLabelValues("scheduler:"+cfg.ID, status).Inc()
			w.metrics.ToolExecutionDuration.WithLabelValues("scheduler:" + cfg.ID).Observe(time.Since(started).Seconds())
		}
		if lastErr == nil {
			return
		}
		if attempt < cfg.MaxRetries {
			select {
			case <-time.After(cfg.retryDelay()):
			case <-w.runCtx.Done():
				return
			}
		}
	}
	w.recordTaskFailed(cfg.ID, lastErr)
}

func (w *AgentWorker) recordOverflow(taskID string) {
	if w.metrics != nil {
		w.metrics.SchedulerQueueOverflow.WithLabelValues(w.agentID).Inc()
	}
	if w.emitter != nil {
		_ = w.emitter.Emit(context.Background(), TaskEvent{
			AgentID: w.agentID, TaskID: taskID, Type: "queue_overflow",
		})
	}
	if w.logger != nil {
		w.logger.Warn(context.Background(), "scheduler queue overflow", "agent_id", w.agentID, "task_id", taskID)
	}
}

func (w *AgentWorker) recordTaskFailed(taskID string, cause error) {
	if w.metrics != nil {
		w.metrics.ErrorCounter.WithLabelValues("scheduler", "task_failed").Inc()
	}
	if w.emitter != nil {
		_ = w.emitter.Emit(context.Background(), TaskEvent{
			AgentID: w.agentID, TaskID: taskID, Type: "task_failed",
			Payload: map[string]any{"error": cause.Error()},
		})
	}
	if w.logger != nil {
		w.logger.Error(context.Background(), "scheduled task failed, retries exhausted", "agent_id", w.agentID, "task_id", taskID, "error", cause)
	}
}
