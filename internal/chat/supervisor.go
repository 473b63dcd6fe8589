package chat

import (
	"context"
	"sync"
)

// taskSupervisor owns the detached continuation cycles. It provides the
// per-conversation single-flight guard at cycle entry, lets tests await a
// conversation going idle, and drains everything on shutdown.
type taskSupervisor struct {
	mu      sync.Mutex
	active  map[string]*cycleTask
	lastOpt map[string]CycleOptions
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type cycleTask struct {
	done chan struct{}
}

func newTaskSupervisor() *taskSupervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &taskSupervisor{
		active:  make(map[string]*cycleTask),
		lastOpt: make(map[string]CycleOptions),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// spawn runs fn on its own goroutine, holding the conversation's slot until
// it returns. A live cycle for the same id rejects the spawn.
func (s *taskSupervisor) spawn(conversationID string, fn func(ctx context.Context)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrEngineClosed
	}
	if _, live := s.active[conversationID]; live {
		s.mu.Unlock()
		return ErrCycleActive
	}
	task := &cycleTask{done: make(chan struct{})}
	s.active[conversationID] = task
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			if s.active[conversationID] == task {
				delete(s.active, conversationID)
			}
			s.mu.Unlock()
			close(task.done)
			s.wg.Done()
		}()
		fn(s.ctx)
	}()
	return nil
}

// reservation is a conversation slot claimed by a synchronous caller. Exactly
// one of release or handoff must be called; until then no other caller can
// start a cycle for the conversation.
type reservation struct {
	sup            *taskSupervisor
	conversationID string
	task           *cycleTask
	settled        bool
}

// reserve claims the conversation's slot for a synchronous caller.
func (s *taskSupervisor) reserve(conversationID string) (*reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrEngineClosed
	}
	if _, live := s.active[conversationID]; live {
		return nil, ErrCycleActive
	}
	task := &cycleTask{done: make(chan struct{})}
	s.active[conversationID] = task
	s.wg.Add(1)
	return &reservation{sup: s, conversationID: conversationID, task: task}, nil
}

// release frees the slot. Safe to call after handoff; it then does nothing.
func (r *reservation) release() {
	if r.settled {
		return
	}
	r.settled = true
	s := r.sup
	s.mu.Lock()
	if s.active[r.conversationID] == r.task {
		delete(s.active, r.conversationID)
	}
	s.mu.Unlock()
	close(r.task.done)
	s.wg.Done()
}

// handoff converts the reservation into a detached cycle running fn. The slot
// passes to the cycle's goroutine without ever being free in between, so a
// concurrent caller cannot claim the conversation before the cycle starts.
func (r *reservation) handoff(fn func(ctx context.Context)) {
	if r.settled {
		return
	}
	r.settled = true
	s := r.sup
	go func() {
		defer func() {
			s.mu.Lock()
			if s.active[r.conversationID] == r.task {
				delete(s.active, r.conversationID)
			}
			s.mu.Unlock()
			close(r.task.done)
			s.wg.Done()
		}()
		fn(s.ctx)
	}()
}

func (s *taskSupervisor) rememberOptions(conversationID string, opts CycleOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastOpt[conversationID] = opts
}

func (s *taskSupervisor) lastOptions(conversationID string) CycleOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOpt[conversationID]
}

// await blocks until the conversation has no live cycle.
func (s *taskSupervisor) await(ctx context.Context, conversationID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	task := s.active[conversationID]
	s.mu.Unlock()
	if task == nil {
		return nil
	}
	select {
	case <-task.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops accepting work, cancels the shared context and waits for all
// cycles to return.
func (s *taskSupervisor) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
