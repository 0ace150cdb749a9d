package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"flume/internal/logging"
	"flume/internal/runner"
)

// State is the controller lifecycle phase.
type State int

const (
	// Idle is the initial state, before Start.
	Idle State = iota
	// Running accepts and executes tasks.
	Running
	// Draining refuses new tasks and runs the queue dry.
	Draining
	// Aborting refuses new tasks and discards the queue once the
	// current task finishes.
	Aborting
	// Stopped is terminal; Wait returns once it is reached.
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Aborting:
		return "aborting"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrNotRunning is returned by Execute outside the Running state.
var ErrNotRunning = errors.New("scheduler is not accepting tasks")

// Controller owns one execution session. One worker goroutine pops
// tasks in priority order and hands them to the runner; control-plane
// calls are safe from any goroutine.
type Controller struct {
	run    runner.Runner
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	state   State
	queue   taskHeap
	seq     uint64
	current string
	cancel  context.CancelFunc // cancels the in-flight task only
	lastErr error

	done chan struct{}
}

// New builds an Idle controller.
func New(run runner.Runner, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Controller{
		run:    run,
		logger: logging.NewComponentLogger(logger, "scheduler"),
		done:   make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Start transitions Idle to Running and spawns the worker.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return fmt.Errorf("scheduler already started (state %s)", c.state)
	}
	c.state = Running
	go c.work(ctx)
	return nil
}

// Execute enqueues a task. Valid only while Running; ascending priority
// order with declaration-order tie-breaks is preserved by a monotonic
// sequence number.
func (c *Controller) Execute(task runner.Task) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Running {
		return fmt.Errorf("%w (state %s)", ErrNotRunning, c.state)
	}
	c.seq++
	heap.Push(&c.queue, &queuedTask{task: task, seq: c.seq})
	c.cond.Signal()
	return nil
}

// Shutdown stops accepting tasks. With finishQueue the remaining queue
// runs to completion; without it the queue is discarded once the
// current task finishes. Abort wins when both are requested; calling
// again is a no-op once a stricter mode is set.
func (c *Controller) Shutdown(finishQueue bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Idle:
		// Never started; nothing will run.
		c.state = Stopped
		close(c.done)
		return
	case Stopped:
		return
	case Aborting:
		return
	case Draining:
		if finishQueue {
			return
		}
		c.state = Aborting
	case Running:
		if finishQueue {
			c.state = Draining
		} else {
			c.state = Aborting
		}
	}
	c.cond.Broadcast()
}

// AbortCurrent cancels the in-flight task's context. The queue is not
// touched; pair with Shutdown(false) to abandon everything.
func (c *Controller) AbortCurrent() {
	c.mu.Lock()
	cancel := c.cancel
	name := c.current
	c.mu.Unlock()
	if cancel != nil {
		c.logger.Warn("aborting current task", logging.String("task", name))
		cancel()
	}
}

// Wait blocks until the controller reaches Stopped and returns the
// first task error observed during the session.
func (c *Controller) Wait() error {
	<-c.done
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// State reports the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// QueueLen reports how many tasks are waiting.
func (c *Controller) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// Current reports the name of the in-flight task, empty when idle.
func (c *Controller) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Controller) work(ctx context.Context) {
	for {
		c.mu.Lock()
		for c.state == Running && c.queue.Len() == 0 {
			c.cond.Wait()
		}
		if c.state == Aborting {
			if discarded := c.queue.Len(); discarded > 0 {
				c.logger.Info("discarding queued tasks", logging.Int("count", discarded))
			}
			c.queue = c.queue[:0]
		}
		if c.queue.Len() == 0 {
			c.stopLocked()
			c.mu.Unlock()
			return
		}
		next := heap.Pop(&c.queue).(*queuedTask)
		taskCtx, cancel := context.WithCancel(ctx)
		c.current = next.task.Name
		c.cancel = cancel
		c.mu.Unlock()

		err := c.run.Run(taskCtx, next.task)
		cancel()

		c.mu.Lock()
		c.current = ""
		c.cancel = nil
		if err != nil && c.lastErr == nil {
			c.lastErr = err
		}
		c.mu.Unlock()

		if ctx.Err() != nil {
			c.mu.Lock()
			c.queue = c.queue[:0]
			c.stopLocked()
			c.mu.Unlock()
			return
		}
	}
}

// stopLocked transitions to Stopped exactly once. Caller holds the mutex.
func (c *Controller) stopLocked() {
	if c.state == Stopped {
		return
	}
	c.state = Stopped
	close(c.done)
}
