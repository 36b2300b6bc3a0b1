package core

import (
	"context"
	"errors"
	"sync"

	"github.com/valter-silva-au/signal-radar/pkg/models"
)

// ErrRunnerStopped is returned by Send after the runner has stopped.
var ErrRunnerStopped = errors.New("session runner stopped")

// Runner drives a Session headlessly. Update runs on a single goroutine;
// Cmds run on their own goroutines and post their results back through the
// mailbox. Readers get copies of the view model.
type Runner struct {
	session *Session
	mailbox chan Msg

	mu       sync.RWMutex
	view     models.ViewModel
	poll     PollState
	watchers map[int]chan models.ViewModel
	nextID   int

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewRunner wraps session. Call Start before Send.
func NewRunner(session *Session) *Runner {
	return &Runner{
		session:  session,
		mailbox:  make(chan Msg, 64),
		view:     session.View(),
		poll:     session.PollState(),
		watchers: make(map[int]chan models.ViewModel),
		done:     make(chan struct{}),
	}
}

// Start launches the event loop. It stops when ctx is cancelled or Stop is
// called.
func (r *Runner) Start(ctx context.Context) {
	r.ctx, r.cancel = context.WithCancel(ctx)
	go r.loop()
}

// Stop ends the event loop and waits for it to exit. In-flight calls and
// timers are cancelled.
func (r *Runner) Stop() {
	r.once.Do(func() {
		if r.cancel != nil {
			r.cancel()
			<-r.done
		}
	})
}

// Send posts msg to the event loop.
func (r *Runner) Send(msg Msg) error {
	if r.ctx == nil || r.ctx.Err() != nil {
		return ErrRunnerStopped
	}
	select {
	case r.mailbox <- msg:
		return nil
	case <-r.ctx.Done():
		return ErrRunnerStopped
	}
}

// View returns the latest published view model.
func (r *Runner) View() models.ViewModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneViewModel(r.view)
}

// PollState returns the latest published polling bookkeeping.
func (r *Runner) PollState() PollState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.poll
}

// Watch returns a channel that receives the view model after each change.
// Slow readers only see the latest revision. Call the returned func to stop
// watching.
func (r *Runner) Watch() (<-chan models.ViewModel, func()) {
	ch := make(chan models.ViewModel, 1)
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.watchers[id] = ch
	r.mu.Unlock()
	return ch, func() {
		r.mu.Lock()
		delete(r.watchers, id)
		r.mu.Unlock()
	}
}

// WaitFor blocks until the view model satisfies pred or ctx ends.
func (r *Runner) WaitFor(ctx context.Context, pred func(models.ViewModel) bool) (models.ViewModel, error) {
	ch, stop := r.Watch()
	defer stop()
	if vm := r.View(); pred(vm) {
		return vm, nil
	}
	for {
		select {
		case vm := <-ch:
			if pred(vm) {
				return vm, nil
			}
		case <-ctx.Done():
			return r.View(), ctx.Err()
		}
	}
}

func (r *Runner) loop() {
	defer close(r.done)
	defer r.session.Close()
	for {
		select {
		case <-r.ctx.Done():
			return
		case msg := <-r.mailbox:
			cmds := r.session.Update(msg)
			r.publish()
			for _, cmd := range cmds {
				go r.exec(cmd)
			}
		}
	}
}

func (r *Runner) exec(cmd Cmd) {
	msg := cmd()
	if msg == nil {
		return
	}
	select {
	case r.mailbox <- msg:
	case <-r.ctx.Done():
	}
}

func (r *Runner) publish() {
	vm := r.session.View()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.poll = r.session.PollState()
	if vm.Revision == r.view.Revision {
		return
	}
	r.view = vm
	for _, ch := range r.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- cloneViewModel(vm)
	}
}
