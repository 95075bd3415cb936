// Package dispatch delivers inbound envelopes to the processor with
// per-session ordering: envelopes for one session are handled first-in
// first-out by a single worker, while distinct sessions are drained
// concurrently.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"storyline/pkg/story"
)

const defaultQueueSize = 100

// ProcessFunc consumes one envelope. Errors are logged by the dispatcher;
// they do not stop the session's queue.
type ProcessFunc func(context.Context, story.Envelope) error

// sessionQueue is one session's buffered envelope channel plus the state its
// worker consults before retiring. pending counts senders holding a delivery
// reservation for a full queue; it is guarded by Dispatcher.mu.
type sessionQueue struct {
	ch      chan story.Envelope
	pending int
	wake    chan struct{}
}

// Dispatcher fans envelopes out to short-lived per-session workers. A worker
// exists only while its session has queued envelopes or waiting senders.
type Dispatcher struct {
	process   ProcessFunc
	log       *slog.Logger
	queueSize int

	procCtx    context.Context
	cancelProc context.CancelFunc

	mu     sync.Mutex
	queues map[string]*sessionQueue

	eventSubscribers      map[uint64]chan Event
	nextEventSubscriberID uint64

	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures the dispatcher.
type Option func(*Dispatcher)

// WithQueueSize bounds each session's envelope queue.
func WithQueueSize(size int) Option {
	return func(d *Dispatcher) {
		if size > 0 {
			d.queueSize = size
		}
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(log *slog.Logger) Option {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log.With("component", "dispatch")
		}
	}
}

// New builds a dispatcher around the given process function.
func New(process ProcessFunc, opts ...Option) *Dispatcher {
	procCtx, cancelProc := context.WithCancel(context.Background())

	d := &Dispatcher{
		process:          process,
		log:              slog.Default().With("component", "dispatch"),
		queueSize:        defaultQueueSize,
		procCtx:          procCtx,
		cancelProc:       cancelProc,
		queues:           make(map[string]*sessionQueue),
		eventSubscribers: make(map[uint64]chan Event),
		done:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enqueue queues one envelope for its session. It blocks while the session's
// queue is full and fails once the context is cancelled or the dispatcher is
// closed. A nil return means a worker will process the envelope.
func (d *Dispatcher) Enqueue(ctx context.Context, env story.Envelope) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if env.SessionID == "" {
		return errors.New("envelope has no session id")
	}

	d.mu.Lock()
	select {
	case <-d.done:
		d.mu.Unlock()
		return errors.New("dispatcher is closed")
	default:
	}

	queue := d.queueForLocked(env.SessionID)

	// Deliver under the mutex when there is room. The worker's retirement
	// check runs under the same mutex, so a delivered envelope is always
	// visible to it and cannot strand on a retired queue.
	select {
	case queue.ch <- env:
		d.mu.Unlock()
		return nil
	default:
	}

	// Full queue: hold a reservation so the worker keeps draining instead
	// of retiring while this sender waits for capacity.
	queue.pending++
	d.mu.Unlock()
	defer d.releaseReservation(queue)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return errors.New("dispatcher is closed")
	case queue.ch <- env:
		return nil
	}
}

// queueForLocked returns the session's queue, spawning a drain worker for
// newly created queues. Callers must hold d.mu.
func (d *Dispatcher) queueForLocked(sessionID string) *sessionQueue {
	queue, ok := d.queues[sessionID]
	if !ok {
		queue = &sessionQueue{
			ch:   make(chan story.Envelope, d.queueSize),
			wake: make(chan struct{}, 1),
		}
		d.queues[sessionID] = queue
		d.wg.Add(1)
		go d.drain(sessionID, queue)
	}
	return queue
}

// releaseReservation drops a full-queue sender's reservation and prods the
// worker to re-run its retirement check.
func (d *Dispatcher) releaseReservation(queue *sessionQueue) {
	d.mu.Lock()
	queue.pending--
	d.mu.Unlock()

	select {
	case queue.wake <- struct{}{}:
	default:
	}
}

// drain handles the session's envelopes in order and retires once the queue
// is empty and no sender holds a reservation. Both conditions are checked
// under the dispatcher mutex that Enqueue delivers under, so every accepted
// envelope reaches a live worker.
func (d *Dispatcher) drain(sessionID string, queue *sessionQueue) {
	defer d.wg.Done()

	for {
		select {
		case <-d.done:
			d.retire(sessionID)
			return
		case env := <-queue.ch:
			d.handle(env)
		default:
			d.mu.Lock()
			select {
			case env := <-queue.ch:
				d.mu.Unlock()
				d.handle(env)
			default:
				if queue.pending == 0 {
					delete(d.queues, sessionID)
					d.mu.Unlock()
					return
				}
				d.mu.Unlock()
				// A sender is waiting on the full queue; take its
				// envelope, or recheck once the reservation resolves.
				select {
				case <-d.done:
					d.retire(sessionID)
					return
				case env := <-queue.ch:
					d.handle(env)
				case <-queue.wake:
				}
			}
		}
	}
}

func (d *Dispatcher) retire(sessionID string) {
	d.mu.Lock()
	delete(d.queues, sessionID)
	d.mu.Unlock()
}

func (d *Dispatcher) handle(env story.Envelope) {
	if err := d.process(d.procCtx, env); err != nil {
		d.log.Error("Envelope processing failed", "session_id", env.SessionID, "channel", env.User.Channel, "error", err)
	}
}

// Close stops accepting envelopes, cancels in-flight processing, and waits
// for workers to retire.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.done)
		d.cancelProc()
		d.wg.Wait()

		d.mu.Lock()
		for id, ch := range d.eventSubscribers {
			close(ch)
			delete(d.eventSubscribers, id)
		}
		d.mu.Unlock()
	})
}
