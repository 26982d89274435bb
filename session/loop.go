package session

import "sync"

// Loop runs posted functions one at a time on a single goroutine. Post
// never blocks, so device, focus and catalog callbacks can hand work to
// the loop from any goroutine, including the loop itself.
type Loop struct {
	mu      sync.Mutex
	tasks   []func()
	stopped bool

	wake chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewLoop returns a loop that is not running yet.
func NewLoop() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
}

// Start launches the loop goroutine.
func (l *Loop) Start() {
	l.wg.Add(1)
	go l.run()
}

// Post queues fn. It returns false once the loop is stopped.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Stop runs the functions already posted and waits for the goroutine to
// exit. It must not be called from the loop itself.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.mu.Unlock()

	close(l.stop)
	l.wg.Wait()
}

func (l *Loop) run() {
	defer l.wg.Done()
	for {
		select {
		case <-l.stop:
			l.drain()
			return
		case <-l.wake:
			l.drain()
		}
	}
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		tasks := l.tasks
		l.tasks = nil
		l.mu.Unlock()

		if len(tasks) == 0 {
			return
		}
		for _, fn := range tasks {
			fn()
		}
	}
}
